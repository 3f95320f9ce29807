package engine

import (
	"fmt"

	"github.com/docker/go-units"
	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/lazyjit/codegen"
	"github.com/wippyai/lazyjit/errors"
	"github.com/wippyai/lazyjit/host"
	"github.com/wippyai/lazyjit/orc"
)

// Backend selects how wazero executes linked code.
type Backend string

const (
	// BackendAuto uses the native compiler where wazero supports the host
	// platform and the interpreter elsewhere.
	BackendAuto        Backend = "auto"
	BackendCompiler    Backend = "compiler"
	BackendInterpreter Backend = "interpreter"
)

// wasmPageSize is the size of a WebAssembly memory page.
const wasmPageSize = 64 * 1024

// maxMemoryPages is the largest memory a 32-bit wasm module can address.
const maxMemoryPages = 65536

// Config holds configuration for engine creation
type Config struct {
	// Generator compiles IR modules. nil means codegen.New().
	Generator codegen.Generator

	// Host is the host process symbol table consulted after the JIT'd
	// modules and the runtime overrides. nil means host.Process(nil).
	Host *host.SymbolTable

	// Logger overrides the package logger for this engine.
	Logger *zap.Logger

	// Target describes symbol mangling.
	Target codegen.Target

	// Backend selects native compilation or interpretation.
	Backend Backend

	// MemoryLimit caps the linear memory of linked modules, as a human
	// readable size such as "64MiB". Empty means the wazero default (4GiB).
	MemoryLimit string

	// CompilationCacheDir persists wazero's native code between runs.
	CompilationCacheDir string

	// TrampolinesPerBlock is the compile callback pool growth step.
	TrampolinesPerBlock int
}

// DefaultConfig returns the configuration for the host platform.
func DefaultConfig() Config {
	return Config{
		Target:              codegen.Host(),
		Backend:             BackendAuto,
		TrampolinesPerBlock: orc.DefaultTrampolinesPerBlock,
	}
}

// memoryLimitPages converts MemoryLimit to wasm pages, rounding up.
func (c Config) memoryLimitPages() (uint32, error) {
	if c.MemoryLimit == "" {
		return 0, nil
	}
	bytes, err := units.RAMInBytes(c.MemoryLimit)
	if err != nil {
		return 0, err
	}
	if bytes <= 0 {
		return 0, fmt.Errorf("memory limit must be positive, got %q", c.MemoryLimit)
	}
	pages := (bytes + wasmPageSize - 1) / wasmPageSize
	if pages > maxMemoryPages {
		return 0, fmt.Errorf("memory limit %q exceeds %s", c.MemoryLimit, units.BytesSize(maxMemoryPages*wasmPageSize))
	}
	return uint32(pages), nil
}

// runtimeConfig builds the wazero runtime configuration. The returned cache
// is nil unless CompilationCacheDir is set, and must be closed with the
// runtime.
func (c Config) runtimeConfig() (wazero.RuntimeConfig, wazero.CompilationCache, error) {
	var rc wazero.RuntimeConfig
	switch c.Backend {
	case "", BackendAuto:
		rc = wazero.NewRuntimeConfig()
	case BackendCompiler:
		rc = wazero.NewRuntimeConfigCompiler()
	case BackendInterpreter:
		rc = wazero.NewRuntimeConfigInterpreter()
	default:
		return nil, nil, errors.InvalidInput(errors.PhaseSubmit, fmt.Sprintf("unknown backend %q", c.Backend))
	}

	pages, err := c.memoryLimitPages()
	if err != nil {
		return nil, nil, errors.Wrap(errors.PhaseSubmit, errors.KindInvalidInput, err, "memory limit")
	}
	if pages > 0 {
		rc = rc.WithMemoryLimitPages(pages)
	}

	var cache wazero.CompilationCache
	if c.CompilationCacheDir != "" {
		cache, err = wazero.NewCompilationCacheWithDir(c.CompilationCacheDir)
		if err != nil {
			return nil, nil, errors.Wrap(errors.PhaseSubmit, errors.KindInvalidInput, err, "compilation cache")
		}
		rc = rc.WithCompilationCache(cache)
	}
	return rc, cache, nil
}
