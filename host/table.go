package host

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/lazyjit/errors"
	"github.com/wippyai/lazyjit/object"
)

var (
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

// Func is a registered host function.
type Func struct {
	fn        reflect.Value
	name      string
	signature object.Signature
	params    []reflect.Type
	withCtx   bool
	withErr   bool
}

// Name returns the symbol name the function was registered under.
func (f *Func) Name() string { return f.name }

// Signature returns the function's wasm signature.
func (f *Func) Signature() object.Signature { return f.signature }

// Call invokes the function with raw words, as an address-space call would.
func (f *Func) Call(ctx context.Context, args []uint64) (results []uint64, err error) {
	if len(args) != len(f.params) {
		return nil, errors.New(errors.PhaseRun, errors.KindTypeMismatch).
			Symbol(f.name).
			Detail("expected %d arguments, got %d", len(f.params), len(args)).
			Build()
	}

	in := make([]reflect.Value, 0, len(args)+1)
	if f.withCtx {
		in = append(in, reflect.ValueOf(ctx))
	}
	for i, t := range f.params {
		in = append(in, decodeArg(t, args[i]))
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.PhaseRun, errors.KindInvalidInput).
				Symbol(f.name).
				Detail("host function panicked: %v", r).
				Build()
		}
	}()
	out := f.fn.Call(in)

	if f.withErr {
		if e, _ := out[len(out)-1].Interface().(error); e != nil {
			return nil, e
		}
		out = out[:len(out)-1]
	}
	results = make([]uint64, len(out))
	for i, v := range out {
		results[i] = encodeResult(v)
	}
	return results, nil
}

func decodeArg(t reflect.Type, v uint64) reflect.Value {
	switch t.Kind() {
	case reflect.Int32:
		return reflect.ValueOf(api.DecodeI32(v)).Convert(t)
	case reflect.Uint32:
		return reflect.ValueOf(api.DecodeU32(v)).Convert(t)
	case reflect.Int64:
		return reflect.ValueOf(int64(v)).Convert(t)
	default:
		return reflect.ValueOf(v).Convert(t)
	}
}

func encodeResult(v reflect.Value) uint64 {
	switch v.Kind() {
	case reflect.Int32:
		return api.EncodeI32(int32(v.Int()))
	case reflect.Uint32:
		return api.EncodeU32(uint32(v.Uint()))
	case reflect.Int64:
		return uint64(v.Int())
	default:
		return v.Uint()
	}
}

func valueType(t reflect.Type) (api.ValueType, bool) {
	switch t.Kind() {
	case reflect.Int32, reflect.Uint32:
		return api.ValueTypeI32, true
	case reflect.Int64, reflect.Uint64:
		return api.ValueTypeI64, true
	}
	return 0, false
}

// newFunc validates fn and builds its wrapper.
func newFunc(name string, fn any) (*Func, error) {
	rv := reflect.ValueOf(fn)
	if !rv.IsValid() || rv.Kind() != reflect.Func {
		return nil, fmt.Errorf("handler must be a function, got %T", fn)
	}
	rt := rv.Type()
	if rt.IsVariadic() {
		return nil, fmt.Errorf("variadic functions are not supported")
	}

	f := &Func{fn: rv, name: name}
	first := 0
	if rt.NumIn() > 0 && rt.In(0) == ctxType {
		f.withCtx = true
		first = 1
	}
	for i := first; i < rt.NumIn(); i++ {
		vt, ok := valueType(rt.In(i))
		if !ok {
			return nil, fmt.Errorf("parameter %d has unsupported type %s", i, rt.In(i))
		}
		f.params = append(f.params, rt.In(i))
		f.signature.Params = append(f.signature.Params, vt)
	}

	last := rt.NumOut()
	if last > 0 && rt.Out(last-1) == errType {
		f.withErr = true
		last--
	}
	if last > 1 {
		return nil, fmt.Errorf("at most one result is supported, got %d", last)
	}
	for i := 0; i < last; i++ {
		vt, ok := valueType(rt.Out(i))
		if !ok {
			return nil, fmt.Errorf("result has unsupported type %s", rt.Out(i))
		}
		f.signature.Results = append(f.signature.Results, vt)
	}
	return f, nil
}

// SymbolTable maps symbol names to host functions. Registration happens
// before the table is handed to an engine; lookups may run concurrently.
type SymbolTable struct {
	funcs map[string]*Func
	mu    sync.RWMutex
}

// NewSymbolTable creates an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{funcs: make(map[string]*Func)}
}

// Register adds fn under name, replacing any earlier registration.
func (t *SymbolTable) Register(name string, fn any) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseHost, "symbol name cannot be empty")
	}
	f, err := newFunc(name, fn)
	if err != nil {
		return errors.Registration(name, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.funcs[name] = f
	return nil
}

// MustRegister is Register that panics on error.
func (t *SymbolTable) MustRegister(name string, fn any) {
	if err := t.Register(name, fn); err != nil {
		panic(err)
	}
}

// Explicit lets a value passed to RegisterMethods name its symbols itself.
type Explicit interface {
	Symbols() map[string]any
}

// RegisterMethods registers every exported method of h. Method names are
// converted to snake_case: PutChar becomes put_char, ReadHTTPHeader becomes
// read_http_header. When h implements Explicit, its Symbols map is used
// instead.
func (t *SymbolTable) RegisterMethods(h any) error {
	if e, ok := h.(Explicit); ok {
		syms := e.Symbols()
		names := make([]string, 0, len(syms))
		for name := range syms {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := t.Register(name, syms[name]); err != nil {
				return err
			}
		}
		return nil
	}

	rv := reflect.ValueOf(h)
	rt := rv.Type()
	for i := 0; i < rt.NumMethod(); i++ {
		m := rt.Method(i)
		if !m.IsExported() {
			continue
		}
		if err := t.Register(toSnakeCase(m.Name), rv.Method(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the function registered under name.
func (t *SymbolTable) Lookup(name string) (*Func, bool) {
	if t == nil {
		return nil, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.funcs[name]
	return f, ok
}

// Names returns every registered name, sorted.
func (t *SymbolTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.funcs))
	for name := range t.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered functions.
func (t *SymbolTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.funcs)
}

// toSnakeCase converts PascalCase to snake_case.
// Handles acronyms: GetHTTPURL -> get_httpurl, HTTPServer -> http_server
func toSnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if !unicode.IsUpper(r) {
			b.WriteRune(r)
			continue
		}

		end := i + 1
		for end < len(runes) && unicode.IsUpper(runes[end]) {
			end++
		}
		// Last uppercase before lowercase starts next word
		if end > i+1 && end < len(runes) && unicode.IsLower(runes[end]) {
			end--
		}

		if i > 0 {
			b.WriteByte('_')
		}
		for j := i; j < end; j++ {
			b.WriteRune(unicode.ToLower(runes[j]))
		}
		i = end - 1
	}
	return b.String()
}
