package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in the layer stack the error occurred
type Phase string

const (
	PhaseSubmit   Phase = "submit"   // module handed to the engine
	PhaseCompile  Phase = "compile"  // IR to object code
	PhaseLink     Phase = "link"     // object code to executable code
	PhaseLookup   Phase = "lookup"   // symbol resolution
	PhaseRun      Phase = "run"      // calls into generated code
	PhaseTeardown Phase = "teardown" // destructors at engine close
	PhaseLoad     Phase = "load"     // module files
	PhaseHost     Phase = "host"     // host symbol registration
)

// Kind categorizes the error
type Kind string

const (
	KindCompileFailure   Kind = "compile_failure"
	KindUnresolvedSymbol Kind = "unresolved_symbol"
	KindDuplicateFire    Kind = "duplicate_fire"
	KindModuleFailed     Kind = "module_failed"
	KindInvalidInput     Kind = "invalid_input"
	KindNotFound         Kind = "not_found"
	KindClosed           Kind = "closed"
	KindTypeMismatch     Kind = "type_mismatch"
	KindRegistration     Kind = "registration"
	KindUnsupported      Kind = "unsupported"
	KindInstantiation    Kind = "instantiation"
)

// Error is the structured error type used throughout the engine
type Error struct {
	Cause   error
	Phase   Phase
	Kind    Kind
	Module  string
	Symbol  string
	Detail  string
	Symbols []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Module != "" {
		b.WriteString(" in ")
		b.WriteString(e.Module)
	}

	if e.Symbol != "" {
		b.WriteString(" at ")
		b.WriteString(e.Symbol)
	}

	if len(e.Symbols) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Symbols, ", "))
	}

	if e.Detail != "" {
		if len(e.Symbols) > 0 {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Is reports whether err or any error it wraps is an *Error with the given
// phase and kind.
func Is(err error, phase Phase, kind Kind) bool {
	return stderrors.Is(err, &Error{Phase: phase, Kind: kind})
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// there is none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Module sets the module name
func (b *Builder) Module(name string) *Builder {
	b.err.Module = name
	return b
}

// Symbol sets the symbol name
func (b *Builder) Symbol(name string) *Builder {
	b.err.Symbol = name
	return b
}

// Symbols sets a list of offending symbol names
func (b *Builder) Symbols(names ...string) *Builder {
	b.err.Symbols = names
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// CompileFailure creates a code generation error for one module
func CompileFailure(module, symbol string, cause error) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindCompileFailure,
		Module: module,
		Symbol: symbol,
		Cause:  cause,
	}
}

// Unresolved creates a link error listing symbols no resolver could satisfy
func Unresolved(module string, symbols []string) *Error {
	return &Error{
		Phase:   PhaseLink,
		Kind:    KindUnresolvedSymbol,
		Module:  module,
		Symbols: symbols,
	}
}

// DuplicateFire reports a second rewrite of an already rewritten stub.
// It indicates a broken single-fire invariant, not a recoverable condition.
func DuplicateFire(symbol string) *Error {
	return &Error{
		Phase:  PhaseRun,
		Kind:   KindDuplicateFire,
		Symbol: symbol,
		Detail: "stub pointer already rewritten",
	}
}

// ModuleFailed reports use of a module whose compilation failed earlier
func ModuleFailed(module string, cause error) *Error {
	return &Error{
		Phase:  PhaseLookup,
		Kind:   KindModuleFailed,
		Module: module,
		Detail: "module unusable after earlier failure",
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Closed reports an operation on an engine that was already torn down
func Closed(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: "engine is closed",
	}
}

// Registration creates a host registration error
func Registration(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindRegistration,
		Symbol: name,
		Detail: "register host symbol",
		Cause:  cause,
	}
}

// Unsupported creates an unsupported feature error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Load creates a module file loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidInput,
		Detail: detail,
		Cause:  cause,
	}
}
