package orc

import (
	"context"

	"github.com/wippyai/lazyjit/codegen"
	"github.com/wippyai/lazyjit/ir"
)

// ObjectLayer compiles and links a module as soon as it is added.
// CompileLayer implements it.
type ObjectLayer interface {
	Target() codegen.Target
	Add(ctx context.Context, m *ir.Module, r Resolver) (ModuleHandle, error)
	FindSymbolIn(h ModuleHandle, name string, exportedOnly bool) (Symbol, bool)
}

// EmittingLayer records modules and emits them on request.
// LazyEmittingLayer implements it.
type EmittingLayer interface {
	Target() codegen.Target
	Add(m *ir.Module, r Resolver) ModuleHandle
	Emit(ctx context.Context, h ModuleHandle) error
	Remove(h ModuleHandle)
	FindSymbolIn(h ModuleHandle, name string, exportedOnly bool) (Symbol, bool)
}

var (
	_ ObjectLayer   = (*CompileLayer)(nil)
	_ EmittingLayer = (*LazyEmittingLayer)(nil)
)
