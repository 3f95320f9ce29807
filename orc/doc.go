// Package orc implements lazy, compile-on-demand JIT compilation.
//
// Modules flow through a stack of layers:
//
//	CompileOnDemandLayer   one partition per function, behind indirect stubs
//	LazyEmittingLayer      emit a module when a symbol's address is needed
//	CompileLayer           codegen.Generator then ObjectLinker, once per module
//
// Every address handed out (compiled functions, stubs, compile callback
// trampolines, host functions and data cells) lives in an AddressSpace.
// Calling a stub of a function that was never called runs its compile
// callback, which compiles only that function and rewrites the stub to
// point at the result.
//
// Symbols are searched by mangled name. Resolver is the hook through which
// a layer finds symbols it does not define; the engine chains the
// compile-on-demand layer, RuntimeOverrides and the host process table.
package orc
