// Package engine is the embedder-facing lazy JIT.
//
// An Engine owns a wazero runtime, an address space and the orc layer
// stack. Modules are added as IR; every defined function is replaced by a
// stub and compiled, alone, the first time it is called:
//
//	e, err := engine.New(ctx, engine.DefaultConfig())
//	h, err := e.AddModule(ctx, m)
//	sym, ok, err := e.FindSymbolIn(ctx, h, "main")
//	addr, _ := sym.Address(ctx)
//	res, err := e.Call(ctx, addr)
//	err = e.Close(ctx)
//
// # Symbol Resolution
//
// Undefined references of an added module are resolved, in order, against
// the functions and globals of every module already added, the runtime
// overrides (__cxa_atexit, __dso_handle) and the host symbol table
// (Config.Host). Resolving a function of another module does not compile
// it; its stub does, when called.
//
// # Constructors And Destructors
//
// AddModule runs the module's constructors, by ascending priority, before
// it returns. Close runs destructors registered through __cxa_atexit, most
// recent first, then each module's destructor list, last module first.
// A module whose constructor fails is marked failed and its destructors
// never run.
//
// # Thread Safety
//
// Engine methods are safe for concurrent use. Concurrent calls to the same
// uncompiled function compile it once; the other callers wait.
package engine
