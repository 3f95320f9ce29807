package codegen

import (
	"runtime"
	"strings"
)

// Target describes the code generation target.
type Target struct {
	// Name identifies the target in logs.
	Name string
	// GlobalPrefix is prepended to every symbol name in generated objects,
	// as the platform's object format does for C symbols.
	GlobalPrefix string
}

// Host returns the target of the running process.
func Host() Target {
	t := Target{Name: runtime.GOOS + "/" + runtime.GOARCH}
	if runtime.GOOS == "darwin" || runtime.GOOS == "ios" {
		t.GlobalPrefix = "_"
	}
	return t
}

// Mangle returns the object-level name of an IR symbol.
func (t Target) Mangle(name string) string {
	return t.GlobalPrefix + name
}

// Demangle strips the global prefix. It reports false when name does not
// carry the prefix.
func (t Target) Demangle(name string) (string, bool) {
	if t.GlobalPrefix == "" {
		return name, true
	}
	return strings.CutPrefix(name, t.GlobalPrefix)
}
