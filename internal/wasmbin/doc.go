// Package wasmbin encodes and rewrites the WebAssembly binaries used as
// relocatable objects.
//
// # Encoding
//
// LEB128 integers:
//
//	buf = wasmbin.AppendULEB128(buf, 300)
//	buf = wasmbin.AppendSLEB128(buf, int64(-100))
//
// # Building
//
// Modules are assembled section by section. Imports must be declared before
// any definition so that index spaces stay stable:
//
//	b := wasmbin.NewBuilder()
//	ten := b.ImportFunc("env", "ten", wasmbin.FuncType{Results: []api.ValueType{api.ValueTypeI32}})
//	var c wasmbin.Code
//	c.Call(ten).End()
//	f := b.AddFunc(wasmbin.FuncType{Results: []api.ValueType{api.ValueTypeI32}}, nil, c.Bytes())
//	b.ExportFunc("callTen", f)
//	bin := b.Build()
//
// # Rewriting
//
// Import module names are placeholders until link time:
//
//	out, err := wasmbin.RewriteImportModules(bin, func(imp wasmbin.Import) string { ... })
//
// This package is internal to the code generator and linker.
package wasmbin
