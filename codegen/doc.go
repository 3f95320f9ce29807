// Package codegen lowers IR modules to relocatable objects.
//
// The generator is a pure function of (module, target): it type checks every
// defined function, assigns wasm indices, and encodes the module as a
// WebAssembly binary whose undefined references are imports from
// object.PlaceholderModule. Symbol names are mangled with the target's
// global prefix.
//
//	gen := codegen.New()
//	obj, err := gen.Compile(m, codegen.Host())
//
// Counting wraps any Generator and records how many times each module was
// compiled:
//
//	counter := codegen.NewCounting(codegen.New())
//	...
//	counter.Count("demo/addTen")
package codegen
