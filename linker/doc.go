// Package linker turns relocatable objects into executable code on wazero.
//
// Linking an object:
//
//  1. Resolves every undefined symbol through the caller's resolver. All
//     misses are reported together as one unresolved-symbol error.
//  2. Binds function and address-of imports to a per-link host module whose
//     handlers transfer control through the address space. Symbol addresses
//     are read when an import is first called, so linking never forces a
//     lazy symbol.
//  3. Points global imports at the instance that defines the global.
//  4. Compiles and instantiates the rewritten module, maps its exports into
//     the address space and applies data relocations.
//
// # Example
//
//	l := linker.New(runtime, space, linker.Options{Session: id})
//	linked, err := l.Link(ctx, obj, resolver)
//	sym, ok := linked.FindSymbol("addTen", true)
//
// # Thread Safety
//
// Linker is safe for concurrent use.
package linker
