// Package host exposes Go functions to JIT'd code as if they were symbols
// exported by the host process.
//
// Functions take and return 32- and 64-bit integers, optionally preceded by
// a context.Context and followed by an error:
//
//	t := host.NewSymbolTable()
//	t.Register("triple", func(x int64) int64 { return 3 * x })
//
// Process returns the table the engine uses by default, holding the small
// C runtime subset that example programs call.
package host
