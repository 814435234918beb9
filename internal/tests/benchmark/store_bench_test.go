package benchmark

import (
	"context"
	"fmt"
	"testing"
)

func BenchmarkStorePut_InMemory(b *testing.B) {
	st := newStore(b, "")
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if err := st.Put(ctx, fmt.Sprintf("key-%d", i%10000), "value"); err != nil {
			b.Fatalf("Put: %v", err)
		}
	}
}

func BenchmarkStorePut_Badger(b *testing.B) {
	st := newStore(b, b.TempDir())
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if err := st.Put(ctx, fmt.Sprintf("key-%d", i%10000), "value"); err != nil {
			b.Fatalf("Put: %v", err)
		}
	}
}

func BenchmarkStoreGet(b *testing.B) {
	runWithKeyCounts(b, KeyCounts, func(b *testing.B, count int) {
		st := newStore(b, "")
		prefill(b, st, count)

		b.ResetTimer()
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			if _, ok := st.Get(fmt.Sprintf("key-%06d", i%count)); !ok {
				b.Fatal("missing key")
			}
		}
	})
}

func BenchmarkStoreGet_Parallel(b *testing.B) {
	st := newStore(b, "")
	prefill(b, st, 10000)

	b.ResetTimer()
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			st.Get(fmt.Sprintf("key-%06d", i%10000))
			i++
		}
	})
}

func BenchmarkStoreAll(b *testing.B) {
	runWithKeyCounts(b, KeyCounts, func(b *testing.B, count int) {
		st := newStore(b, "")
		prefill(b, st, count)
		reportMemory(b, "prefilled")

		b.ResetTimer()
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			if snap := st.All(); len(snap) != count {
				b.Fatalf("All() = %d keys, want %d", len(snap), count)
			}
		}
	})
}
