package orc

import (
	"fmt"

	"github.com/wippyai/lazyjit/errors"
)

func errUnknownHandle(h ModuleHandle) error {
	return errors.NotFound(errors.PhaseLookup, "module handle", fmt.Sprint(uint64(h)))
}

// errSymbolMissing reports a symbol the name table promised but the emitted
// object does not define.
func errSymbolMissing(module, name string) error {
	return errors.New(errors.PhaseLookup, errors.KindNotFound).
		Module(module).
		Symbol(name).
		Detail("symbol missing from emitted module").
		Build()
}

func errArity(name string, want, got int) error {
	return errors.New(errors.PhaseRun, errors.KindTypeMismatch).
		Symbol(name).
		Detail("expected %d arguments, got %d", want, got).
		Build()
}
