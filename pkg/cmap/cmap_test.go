package cmap

import (
	"fmt"
	"sort"
	"sync"
	"testing"
)

func TestNewWithShards(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{in: 4, want: 4},
		{in: 32, want: 32},
		{in: 0, want: DefaultShardCount},
		{in: 10, want: DefaultShardCount},
		{in: -1, want: DefaultShardCount},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			if got := NewWithShards[int](tt.in).ShardCount(); got != tt.want {
				t.Errorf("ShardCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSetGetDelete(t *testing.T) {
	m := New[int]()
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("a", 3)

	if v, ok := m.Get("a"); !ok || v != 3 {
		t.Errorf("Get(a) = %d, %v", v, ok)
	}
	if m.Count() != 2 {
		t.Errorf("Count() = %d, want 2", m.Count())
	}

	m.Delete("a")
	if m.Has("a") {
		t.Error("a should be deleted")
	}

	m.Clear()
	if m.Count() != 0 {
		t.Errorf("Count() after Clear = %d", m.Count())
	}
}

func TestApply(t *testing.T) {
	m := New[int]()
	keepMax := func(v int) func(int, bool) (int, bool) {
		return func(cur int, ok bool) (int, bool) {
			if ok && cur >= v {
				return cur, false
			}
			return v, true
		}
	}

	if !m.Apply("k", keepMax(5)) {
		t.Error("first Apply should change the map")
	}
	if m.Apply("k", keepMax(3)) {
		t.Error("lower value should be rejected")
	}
	if !m.Apply("k", keepMax(9)) {
		t.Error("higher value should be accepted")
	}
	if v, _ := m.Get("k"); v != 9 {
		t.Errorf("Get(k) = %d, want 9", v)
	}
}

func TestRangeKeysSnapshot(t *testing.T) {
	m := New[string]()
	for i := 0; i < 50; i++ {
		m.Set(fmt.Sprintf("key-%02d", i), fmt.Sprint(i))
	}

	keys := m.Keys()
	sort.Strings(keys)
	if len(keys) != 50 || keys[0] != "key-00" || keys[49] != "key-49" {
		t.Errorf("Keys() = %v", keys)
	}
	if len(m.Values()) != 50 {
		t.Errorf("Values() len = %d", len(m.Values()))
	}

	snap := m.Snapshot()
	m.Set("key-00", "changed")
	if snap["key-00"] != "0" {
		t.Error("Snapshot should be independent of later writes")
	}

	count := 0
	m.Range(func(key, value string) bool {
		count++
		return count < 10
	})
	if count != 10 {
		t.Errorf("Range stopped at %d, want 10", count)
	}
}

func TestConcurrentApply(t *testing.T) {
	m := New[int]()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				m.Apply(fmt.Sprintf("k%d", i%10), func(cur int, _ bool) (int, bool) {
					return cur + 1, true
				})
			}
		}()
	}
	wg.Wait()

	total := 0
	m.Range(func(_ string, v int) bool {
		total += v
		return true
	})
	if total != 8000 {
		t.Errorf("total = %d, want 8000", total)
	}
}
