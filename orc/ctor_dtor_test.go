package orc

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"go.uber.org/multierr"

	"github.com/wippyai/lazyjit/codegen"
	"github.com/wippyai/lazyjit/ir"
)

// tableLayer materializes names from a fixed map and records calls.
type tableLayer struct {
	addrs map[string]TargetAddress
}

func (l tableLayer) Materialize(_ context.Context, _ ModuleHandle, name string) (TargetAddress, error) {
	addr, ok := l.addrs[name]
	if !ok {
		return 0, fmt.Errorf("no symbol %s", name)
	}
	return addr, nil
}

func recordingSpace(names ...string) (*AddressSpace, tableLayer, *[]string) {
	as := NewAddressSpace()
	layer := tableLayer{addrs: make(map[string]TargetAddress)}
	var calls []string
	for _, n := range names {
		n := n
		layer.addrs[n] = as.MapFunc(n, EntryFunc, func(context.Context, []uint64) ([]uint64, error) {
			calls = append(calls, n)
			if n == "fail" || n == "_fail" {
				return nil, fmt.Errorf("%s failed", n)
			}
			return nil, nil
		})
	}
	return as, layer, &calls
}

func TestCtorDtorRunner_Order(t *testing.T) {
	list := []ir.Structor{
		{Function: "late", Priority: ir.DefaultPriority},
		{Function: "first", Priority: 1},
		{Function: "second", Priority: 100},
		{Function: "early", Priority: 0},
		{Function: "third", Priority: 100},
	}

	r := NewCtorDtorRunner(list, codegen.Target{}, 7)
	want := []string{"early", "first", "second", "third", "late"}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	if r.Handle() != 7 || r.Len() != 5 {
		t.Errorf("handle = %d, len = %d", r.Handle(), r.Len())
	}

	prefixed := NewCtorDtorRunner(list[:2], codegen.Target{GlobalPrefix: "_"}, 7)
	if got := prefixed.Names(); !reflect.DeepEqual(got, []string{"_first", "_late"}) {
		t.Errorf("mangled Names() = %v", got)
	}
}

func TestDtorRunner_ReverseOrder(t *testing.T) {
	tests := []struct {
		name string
		list []ir.Structor
		want []string
	}{
		{
			name: "same priority",
			list: []ir.Structor{
				{Function: "d1", Priority: ir.DefaultPriority},
				{Function: "d2", Priority: ir.DefaultPriority},
			},
			want: []string{"d2", "d1"},
		},
		{
			name: "mixed priorities",
			list: []ir.Structor{
				{Function: "late", Priority: ir.DefaultPriority},
				{Function: "first", Priority: 1},
				{Function: "second", Priority: 100},
				{Function: "third", Priority: 100},
			},
			want: []string{"late", "third", "second", "first"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewDtorRunner(tt.list, codegen.Target{}, 1).Names(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Names() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCtorDtorRunner_RunViaLayer(t *testing.T) {
	as, layer, calls := recordingSpace("a", "b", "fail", "c")
	r := NewCtorDtorRunner([]ir.Structor{
		{Function: "a", Priority: 1},
		{Function: "b", Priority: 2},
		{Function: "fail", Priority: 3},
		{Function: "c", Priority: 4},
	}, codegen.Target{}, 1)

	if err := r.RunViaLayer(context.Background(), layer, as); err == nil {
		t.Fatal("RunViaLayer succeeded")
	}
	if want := []string{"a", "b", "fail"}; !reflect.DeepEqual(*calls, want) {
		t.Errorf("calls = %v, want %v", *calls, want)
	}
}

func TestCtorDtorRunner_RunAllViaLayer(t *testing.T) {
	as, layer, calls := recordingSpace("a", "fail", "c")
	r := NewCtorDtorRunner([]ir.Structor{
		{Function: "a", Priority: 1},
		{Function: "fail", Priority: 2},
		{Function: "missing", Priority: 3},
		{Function: "c", Priority: 4},
	}, codegen.Target{}, 1)

	err := r.RunAllViaLayer(context.Background(), layer, as)
	if n := len(multierr.Errors(err)); n != 2 {
		t.Errorf("got %d errors: %v", n, err)
	}
	if want := []string{"a", "fail", "c"}; !reflect.DeepEqual(*calls, want) {
		t.Errorf("calls = %v, want %v", *calls, want)
	}
}

func TestCtorDtorRunner_Empty(t *testing.T) {
	r := NewCtorDtorRunner(nil, codegen.Target{}, 1)
	if err := r.RunViaLayer(context.Background(), tableLayer{}, NewAddressSpace()); err != nil {
		t.Errorf("empty runner: %v", err)
	}
}
