package linker

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/lazyjit/errors"
	"github.com/wippyai/lazyjit/internal/wasmbin"
	"github.com/wippyai/lazyjit/object"
	"github.com/wippyai/lazyjit/orc"
)

// Options configures linker behavior.
type Options struct {
	// Session prefixes the wazero module names of linked objects so that
	// several engines can share one runtime.
	Session string
}

// DefaultOptions returns default linker configuration.
func DefaultOptions() Options {
	return Options{Session: "lazyjit"}
}

// Linker links objects into a wazero runtime and maps their symbols into an
// address space.
type Linker struct {
	runtime wazero.Runtime
	space   *orc.AddressSpace
	options Options
	seq     atomic.Uint64
}

// New creates a Linker.
func New(rt wazero.Runtime, space *orc.AddressSpace, opts Options) *Linker {
	if opts.Session == "" {
		opts.Session = DefaultOptions().Session
	}
	return &Linker{runtime: rt, space: space, options: opts}
}

func (l *Linker) instanceName(module string) string {
	return fmt.Sprintf("%s/%s#%d", l.options.Session, module, l.seq.Add(1))
}

var i64Result = []api.ValueType{api.ValueTypeI64}

// Link implements orc.ObjectLinker.
func (l *Linker) Link(ctx context.Context, obj *object.Object, r orc.Resolver) (*orc.LinkedObject, error) {
	if r == nil {
		r = orc.NullResolver
	}
	name := l.instanceName(obj.Module)
	log := Logger().With(zap.String("module", obj.Module), zap.String("instance", name))

	resolved, err := l.resolve(ctx, obj, r)
	if err != nil {
		return nil, err
	}

	owners, err := l.globalOwners(ctx, obj, resolved)
	if err != nil {
		return nil, err
	}

	// Filled once the instance exists; import handlers only run after that.
	local := make(map[string]orc.TargetAddress, len(obj.Symbols))

	hostName := name + ".imports"
	host, err := l.instantiateHostImports(ctx, hostName, obj, resolved, local)
	if err != nil {
		return nil, linkError(obj.Module, stageHostImports, err)
	}
	cleanup := func() {
		if host != nil {
			_ = host.Close(ctx)
		}
	}

	wasm, err := wasmbin.RewriteImportModules(obj.Wasm, func(imp wasmbin.Import) string {
		if imp.Kind == wasmbin.KindGlobal {
			return owners[imp.Name]
		}
		return hostName
	})
	if err != nil {
		cleanup()
		return nil, linkError(obj.Module, stageRewrite, err)
	}

	compiled, err := l.runtime.CompileModule(ctx, wasm)
	if err != nil {
		cleanup()
		return nil, linkError(obj.Module, stageCompile, err)
	}
	inst, err := l.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		cleanup()
		return nil, linkError(obj.Module, stageInstantiate, err)
	}

	syms := make([]orc.Symbol, 0, len(obj.Symbols))
	for _, s := range obj.Symbols {
		var addr orc.TargetAddress
		flags := symbolFlags(s)
		if s.Kind == object.KindData {
			addr, err = l.space.MapGlobal(s.Name, inst, s.Name)
			if err != nil {
				return nil, linkError(obj.Module, stageExports, err)
			}
		} else {
			addr = l.space.MapWasmFunc(s.Name, inst, s.Name)
		}
		local[s.Name] = addr
		syms = append(syms, orc.NewSymbol(s.Name, addr, flags))
	}

	for _, rel := range obj.Relocations {
		if err := l.relocate(ctx, inst, rel, local, resolved); err != nil {
			return nil, linkError(obj.Module, stageRelocate, err)
		}
	}

	log.Debug("linked object",
		zap.Int("symbols", len(syms)),
		zap.Int("imports", len(obj.Imports)),
		zap.Int("relocations", len(obj.Relocations)))

	return orc.NewLinkedObject(obj.Module, name, syms), nil
}

// resolve looks up every undefined symbol of obj. All misses are collected
// before failing.
func (l *Linker) resolve(ctx context.Context, obj *object.Object, r orc.Resolver) (map[string]orc.Symbol, error) {
	undefined := obj.Undefined()
	resolved := make(map[string]orc.Symbol, len(undefined))
	var missing []string
	for _, name := range undefined {
		sym, ok, err := r.FindSymbol(ctx, name)
		if err != nil {
			return nil, lookupError(obj.Module, name, err)
		}
		if !ok {
			missing = append(missing, name)
			continue
		}
		resolved[name] = sym
	}
	if len(missing) > 0 {
		return nil, errors.Unresolved(obj.Module, missing)
	}
	return resolved, nil
}

// globalOwners maps each global import field to the instance exporting it.
func (l *Linker) globalOwners(ctx context.Context, obj *object.Object, resolved map[string]orc.Symbol) (map[string]string, error) {
	owners := make(map[string]string)
	for _, imp := range obj.Imports {
		if imp.Kind != object.ImportGlobal {
			continue
		}
		addr, err := resolved[imp.Symbol].Address(ctx)
		if err != nil {
			return nil, lookupError(obj.Module, imp.Symbol, err)
		}
		region, ok := l.space.Lookup(addr)
		if !ok || region.Kind != orc.EntryData || region.Instance == "" {
			return nil, globalImportError(obj.Module, imp.Symbol, "global is not backed by a wasm global")
		}
		if region.Export != imp.Field {
			return nil, globalImportError(obj.Module, imp.Symbol,
				fmt.Sprintf("global exported as %q", region.Export))
		}
		owners[imp.Field] = region.Instance
	}
	return owners, nil
}

func (l *Linker) instantiateHostImports(ctx context.Context, hostName string, obj *object.Object, resolved map[string]orc.Symbol, local map[string]orc.TargetAddress) (api.Module, error) {
	builder := l.runtime.NewHostModuleBuilder(hostName)
	count := 0
	for _, imp := range obj.Imports {
		switch imp.Kind {
		case object.ImportFunc:
			builder.NewFunctionBuilder().
				WithGoModuleFunction(l.callHandler(resolved[imp.Symbol], len(imp.Signature.Params)),
					imp.Signature.Params, imp.Signature.Results).
				WithName(imp.Symbol).
				Export(imp.Field)
			count++
		case object.ImportAddress:
			builder.NewFunctionBuilder().
				WithGoModuleFunction(l.addressHandler(imp.Symbol, resolved, local), nil, i64Result).
				WithName(imp.Field).
				Export(imp.Field)
			count++
		}
	}
	if count == 0 {
		return nil, nil
	}
	return builder.Instantiate(ctx)
}

// callHandler forwards an imported call to the symbol's current address.
// Failures panic; wazero turns the panic into an error of the outer call.
func (l *Linker) callHandler(sym orc.Symbol, params int) api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		addr, err := sym.Address(ctx)
		if err != nil {
			panic(err)
		}
		args := make([]uint64, params)
		copy(args, stack[:params])
		results, err := l.space.Call(ctx, addr, args...)
		if err != nil {
			panic(err)
		}
		copy(stack, results)
	}
}

func (l *Linker) addressHandler(name string, resolved map[string]orc.Symbol, local map[string]orc.TargetAddress) api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		if addr, ok := local[name]; ok {
			stack[0] = uint64(addr)
			return
		}
		addr, err := resolved[name].Address(ctx)
		if err != nil {
			panic(err)
		}
		stack[0] = uint64(addr)
	}
}

func (l *Linker) relocate(ctx context.Context, inst api.Module, rel object.Relocation, local map[string]orc.TargetAddress, resolved map[string]orc.Symbol) error {
	addr, ok := local[rel.Symbol]
	if !ok {
		var err error
		if addr, err = resolved[rel.Symbol].Address(ctx); err != nil {
			return err
		}
	}
	g, ok := inst.ExportedGlobal(rel.Global).(api.MutableGlobal)
	if !ok {
		return fmt.Errorf("global %q is not a mutable export", rel.Global)
	}
	g.Set(uint64(addr))
	return nil
}

func symbolFlags(s object.Symbol) orc.SymbolFlags {
	var f orc.SymbolFlags
	if s.Exported {
		f |= orc.FlagExported
	}
	if s.Weak {
		f |= orc.FlagWeak
	}
	if s.Kind == object.KindData {
		f |= orc.FlagData
	} else {
		f |= orc.FlagCallable
	}
	return f
}
