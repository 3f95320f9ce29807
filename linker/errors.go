package linker

import (
	"github.com/wippyai/lazyjit/errors"
)

// Link stages reported in instantiation errors.
const (
	stageHostImports = "host imports"
	stageRewrite     = "import rewrite"
	stageCompile     = "compile module"
	stageInstantiate = "instantiate"
	stageExports     = "map exports"
	stageRelocate    = "relocate"
)

// linkError reports a failure at one stage of linking module.
func linkError(module, stage string, cause error) *errors.Error {
	return errors.New(errors.PhaseLink, errors.KindInstantiation).
		Module(module).
		Detail("%s failed", stage).
		Cause(cause).
		Build()
}

// lookupError reports a resolver failure for one symbol.
func lookupError(module, symbol string, cause error) *errors.Error {
	return errors.New(errors.PhaseLink, errors.KindUnresolvedSymbol).
		Module(module).
		Symbol(symbol).
		Detail("resolver failed").
		Cause(cause).
		Build()
}

// globalImportError reports a global import bound to something other than
// a wasm global.
func globalImportError(module, symbol, detail string) *errors.Error {
	return errors.New(errors.PhaseLink, errors.KindUnsupported).
		Module(module).
		Symbol(symbol).
		Detail("%s", detail).
		Build()
}
