package engine

import (
	"context"
	"testing"

	"github.com/wippyai/lazyjit/errors"
)

func TestConfig_MemoryLimitPages(t *testing.T) {
	tests := []struct {
		limit   string
		want    uint32
		wantErr bool
	}{
		{"", 0, false},
		{"100", 1, false},
		{"64KiB", 1, false},
		{"65k", 2, false},
		{"16MiB", 256, false},
		{"1g", 16384, false},
		{"4GiB", 65536, false},
		{"5g", 0, true},
		{"lots", 0, true},
	}
	for _, tt := range tests {
		cfg := Config{MemoryLimit: tt.limit}
		got, err := cfg.memoryLimitPages()
		if (err != nil) != tt.wantErr {
			t.Errorf("memoryLimitPages(%q) error = %v", tt.limit, err)
			continue
		}
		if got != tt.want {
			t.Errorf("memoryLimitPages(%q) = %d, want %d", tt.limit, got, tt.want)
		}
	}
}

func TestConfig_RuntimeConfig(t *testing.T) {
	for _, b := range []Backend{"", BackendAuto, BackendCompiler, BackendInterpreter} {
		if _, _, err := (Config{Backend: b}).runtimeConfig(); err != nil {
			t.Errorf("backend %q: %v", b, err)
		}
	}

	_, _, err := (Config{Backend: "jit"}).runtimeConfig()
	if !errors.Is(err, errors.PhaseSubmit, errors.KindInvalidInput) {
		t.Errorf("unknown backend error = %v", err)
	}
	_, _, err = (Config{MemoryLimit: "huge"}).runtimeConfig()
	if !errors.Is(err, errors.PhaseSubmit, errors.KindInvalidInput) {
		t.Errorf("bad memory limit error = %v", err)
	}

	dir := t.TempDir()
	_, cache, err := (Config{CompilationCacheDir: dir}).runtimeConfig()
	if err != nil || cache == nil {
		t.Fatalf("cache = %v, %v", cache, err)
	}
	cache.Close(context.Background())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Backend != BackendAuto || cfg.TrampolinesPerBlock <= 0 {
		t.Errorf("DefaultConfig() = %+v", cfg)
	}
}
