// Package ir defines the in-memory intermediate representation consumed by
// the lazyjit engine.
//
// A Module is a translation unit: a set of functions (definitions and
// declarations), integer global data, constructor and destructor lists and
// optional debug metadata. Function bodies are typed expression trees:
//
//	m := ir.NewModule("demo")
//	m.AddFunction(&ir.Function{Name: "ten", Result: ir.I32, Body: ir.ConstI32(10)})
//	m.AddFunction(&ir.Function{
//		Name:   "addTen",
//		Params: []ir.Type{ir.I32},
//		Result: ir.I32,
//		Body:   ir.Add(ir.Arg(0), ir.Call("ten")),
//	})
//
// Expression values are immutable once built and may be shared between
// modules; Clone copies the module structure but not the trees.
//
// # Module files
//
// DecodeYAML reads a module from its YAML encoding (see yaml.go). This is a
// structured serialization of the same data model, not a textual language.
package ir
