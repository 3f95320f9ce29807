package main

import (
	"context"
	"fmt"
	"os"

	"github.com/wippyai/lazyjit/engine"
	"github.com/wippyai/lazyjit/ir"
	"github.com/wippyai/lazyjit/orc"
)

func loadModule(path string) (*ir.Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := ir.DecodeYAML(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func loadModules(paths []string) ([]*ir.Module, error) {
	mods := make([]*ir.Module, 0, len(paths))
	for _, p := range paths {
		m, err := loadModule(p)
		if err != nil {
			return nil, err
		}
		mods = append(mods, m)
	}
	return mods, nil
}

// addModules adds mods to eng, one logical module each, or all of them as
// a single module set.
func addModules(ctx context.Context, eng *engine.Engine, mods []*ir.Module, asSet bool) ([]orc.ModuleHandle, error) {
	if asSet {
		h, err := eng.AddModuleSet(ctx, mods...)
		if err != nil {
			return nil, err
		}
		return []orc.ModuleHandle{h}, nil
	}
	handles := make([]orc.ModuleHandle, 0, len(mods))
	for _, m := range mods {
		h, err := eng.AddModule(ctx, m)
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// findFunction returns the definition of name among mods.
func findFunction(mods []*ir.Module, name string) *ir.Function {
	for _, m := range mods {
		if f := m.Function(name); f != nil && !f.IsDeclaration() {
			return f
		}
	}
	return nil
}

// formatResult renders a raw result word according to t.
func formatResult(t ir.Type, word uint64) string {
	switch t {
	case ir.I32:
		return fmt.Sprint(int32(uint32(word)))
	case ir.I64:
		return fmt.Sprint(int64(word))
	}
	return ""
}
