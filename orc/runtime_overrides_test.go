package orc

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"go.uber.org/multierr"

	"github.com/wippyai/lazyjit/codegen"
	"github.com/wippyai/lazyjit/errors"
)

func TestRuntimeOverrides_Symbols(t *testing.T) {
	tests := []struct {
		target codegen.Target
		atexit string
		dso    string
	}{
		{codegen.Target{}, "__cxa_atexit", "__dso_handle"},
		{codegen.Target{GlobalPrefix: "_"}, "___cxa_atexit", "___dso_handle"},
	}
	for _, tt := range tests {
		as := NewAddressSpace()
		ro := NewRuntimeOverrides(as, tt.target)

		fn, ok := ro.SearchOverrides(tt.atexit)
		if !ok || !fn.IsCallable() {
			t.Errorf("SearchOverrides(%s) = %v, %v", tt.atexit, fn.Flags(), ok)
		}
		dso, ok := ro.SearchOverrides(tt.dso)
		if !ok || !dso.IsData() {
			t.Errorf("SearchOverrides(%s) = %v, %v", tt.dso, dso.Flags(), ok)
		}
		addr, _ := dso.Address(context.Background())
		if v, err := as.Read(addr); err != nil || TargetAddress(v) != addr {
			t.Errorf("__dso_handle holds %#x, %v; want its own address %s", v, err, addr)
		}

		if _, ok := ro.SearchOverrides("printf"); ok {
			t.Error("SearchOverrides(printf) found a symbol")
		}
		if _, ok, err := ro.FindSymbol(context.Background(), tt.atexit); !ok || err != nil {
			t.Errorf("FindSymbol(%s) = %v, %v", tt.atexit, ok, err)
		}
	}
}

func TestRuntimeOverrides_RunDestructors(t *testing.T) {
	ctx := context.Background()
	as := NewAddressSpace()
	ro := NewRuntimeOverrides(as, codegen.Target{})

	var ran []uint64
	dtor := as.MapFunc("dtor", EntryFunc, func(_ context.Context, args []uint64) ([]uint64, error) {
		ran = append(ran, args[0])
		if args[0] == 2 {
			return nil, fmt.Errorf("dtor %d failed", args[0])
		}
		return nil, nil
	})

	atexit, _ := ro.SearchOverrides(CXAAtExit)
	addr, _ := atexit.Address(ctx)
	for arg := uint64(1); arg <= 3; arg++ {
		res, err := as.Call(ctx, addr, uint64(dtor), arg, 0)
		if err != nil || res[0] != 0 {
			t.Fatalf("__cxa_atexit = %v, %v", res, err)
		}
	}
	if ro.Pending() != 3 {
		t.Fatalf("Pending = %d", ro.Pending())
	}

	err := ro.RunDestructors(ctx)
	if n := len(multierr.Errors(err)); n != 1 {
		t.Errorf("got %d errors: %v", n, err)
	}
	if want := []uint64{3, 2, 1}; !reflect.DeepEqual(ran, want) {
		t.Errorf("ran = %v, want %v", ran, want)
	}

	ran = nil
	if err := ro.RunDestructors(ctx); err != nil || len(ran) != 0 {
		t.Errorf("second run: %v, ran %v", err, ran)
	}
}

func TestRuntimeOverrides_AtExitArity(t *testing.T) {
	as := NewAddressSpace()
	ro := NewRuntimeOverrides(as, codegen.Target{})
	atexit, _ := ro.SearchOverrides(CXAAtExit)
	addr, _ := atexit.Address(context.Background())

	_, err := as.Call(context.Background(), addr, 1)
	if !errors.Is(err, errors.PhaseRun, errors.KindTypeMismatch) {
		t.Errorf("error = %v", err)
	}
}
