// Package lazyjit is a lazily compiling JIT for a small integer IR.
//
// Modules are added as a whole but nothing is compiled up front: every
// function is replaced by a stub that compiles it the first time it is
// called, links it against the rest of the engine and patches the stub so
// later calls go straight to native code.
//
// # Architecture Overview
//
//	lazyjit/
//	├── ir/          Modules, functions, globals, expressions; YAML loader
//	├── codegen/     Lowers IR functions to WebAssembly objects
//	├── object/      Compiled object files: definitions, imports, relocations
//	├── linker/      Instantiates objects in wazero, binds undefined symbols
//	├── orc/         Layers: compile, lazy emit, compile-on-demand; callbacks,
//	│                stubs, constructors, runtime overrides, address space
//	├── host/        Host process symbols callable from JIT'd code
//	├── engine/      Facade wiring the layers together
//	├── debuginfo/   Debug metadata report
//	├── errors/      Structured errors with phase and kind
//	└── cmd/lazyjit  Command line driver
//
// # Quick Start
//
//	eng, err := engine.New(ctx, engine.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer eng.Close(ctx)
//
//	if _, err := eng.AddModule(ctx, mod); err != nil {
//		return err
//	}
//	sym, ok, err := eng.FindSymbol(ctx, "main")
//	addr, err := sym.Address(ctx)
//	results, err := eng.Call(ctx, addr)
//
// # Symbol Resolution
//
// A reference from compiled code resolves, in order, against the
// definitions of every module added to the engine, the runtime overrides
// (__dso_handle, __cxa_atexit) and the host symbol table.
package lazyjit
