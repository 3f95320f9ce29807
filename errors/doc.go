// Package errors provides structured error types for the lazyjit engine.
//
// Errors are categorized by Phase (where in the layer stack the error
// occurred) and Kind (error category). The Error type carries the symbol and
// module involved, a human-readable detail and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLink, errors.KindUnresolvedSymbol).
//		Module("demo.addTen").
//		Symbol("ten").
//		Detail("no definition in JIT, overrides or host").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Unresolved("demo.addTen", []string{"ten"})
//	err := errors.CompileFailure("demo.ten", "ten", cause)
//
// All errors implement the standard error interface and support errors.Is/As.
// Two *Error values match under errors.Is when Phase and Kind are equal.
package errors
