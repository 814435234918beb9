package buildinfo

import (
	"runtime"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()
	if info.Version == "" || info.Commit == "" || info.BuildTime == "" {
		t.Errorf("Get() = %+v, want every field populated", info)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
}

func TestGet_Injected(t *testing.T) {
	oldVersion, oldCommit := Version, Commit
	t.Cleanup(func() { Version, Commit = oldVersion, oldCommit })

	Version = "v1.2.3"
	Commit = "abc1234"
	info := Get()
	if info.Version != "v1.2.3" || info.Commit != "abc1234" {
		t.Errorf("Get() = %+v, want injected values", info)
	}
}

func TestString(t *testing.T) {
	s := String()
	if !strings.HasPrefix(s, "meshkv-node ") {
		t.Errorf("String() = %q, want meshkv-node prefix", s)
	}
	if !strings.Contains(s, "built at") {
		t.Errorf("String() = %q, want build time", s)
	}
}
