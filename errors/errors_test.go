package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseLink,
				Kind:   KindUnresolvedSymbol,
				Module: "demo.addTen",
				Symbol: "addTen",
				Detail: "fallback chain exhausted",
			},
			contains: []string{"[link]", "unresolved_symbol", "demo.addTen", "addTen", "fallback chain exhausted"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseLookup,
				Kind:  KindNotFound,
			},
			contains: []string{"[lookup]", "not_found"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseCompile,
				Kind:   KindCompileFailure,
				Detail: "unknown callee",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[compile]", "compile_failure", "unknown callee", "caused by", "underlying error"},
		},
		{
			name:     "symbol list",
			err:      Unresolved("m", []string{"a", "b"}),
			contains: []string{"[link]", "in m", "a, b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := CompileFailure("m.f", "f", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if err.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}
}

func TestError_Is(t *testing.T) {
	a := New(PhaseLink, KindUnresolvedSymbol).Symbol("x").Build()
	b := New(PhaseLink, KindUnresolvedSymbol).Symbol("y").Build()
	c := New(PhaseCompile, KindUnresolvedSymbol).Build()

	if !errors.Is(a, b) {
		t.Error("same phase and kind should match")
	}
	if errors.Is(a, c) {
		t.Error("different phase should not match")
	}

	wrapped := Wrap(PhaseSubmit, KindModuleFailed, a, "add module")
	if !errors.Is(wrapped, b) {
		t.Error("errors.Is should walk the cause chain")
	}
}

func TestBuilder(t *testing.T) {
	err := New(PhaseRun, KindDuplicateFire).
		Module("m").
		Symbol("f").
		Symbols("g", "h").
		Detail("fired %d times", 2).
		Build()

	if err.Module != "m" || err.Symbol != "f" {
		t.Errorf("unexpected module/symbol: %q/%q", err.Module, err.Symbol)
	}
	if len(err.Symbols) != 2 {
		t.Errorf("Symbols = %v", err.Symbols)
	}
	if err.Detail != "fired 2 times" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		err   *Error
		phase Phase
		kind  Kind
	}{
		{DuplicateFire("f"), PhaseRun, KindDuplicateFire},
		{ModuleFailed("m", nil), PhaseLookup, KindModuleFailed},
		{NotFound(PhaseLookup, "symbol", "f"), PhaseLookup, KindNotFound},
		{InvalidInput(PhaseSubmit, "nil module"), PhaseSubmit, KindInvalidInput},
		{Closed(PhaseSubmit), PhaseSubmit, KindClosed},
		{Registration("abs", nil), PhaseHost, KindRegistration},
		{Unsupported(PhaseCompile, "f32"), PhaseCompile, KindUnsupported},
		{Load("read", nil), PhaseLoad, KindInvalidInput},
	}
	for _, tt := range tests {
		if tt.err.Phase != tt.phase || tt.err.Kind != tt.kind {
			t.Errorf("%v: got %s/%s, want %s/%s", tt.err, tt.err.Phase, tt.err.Kind, tt.phase, tt.kind)
		}
	}
}

func TestIsAndKindOf(t *testing.T) {
	inner := CompileFailure("m", "f", fmt.Errorf("bad"))
	outer := ModuleFailed("m", inner)
	wrapped := fmt.Errorf("context: %w", outer)

	if !Is(wrapped, PhaseLookup, KindModuleFailed) {
		t.Error("Is should match the outer error")
	}
	if !Is(wrapped, PhaseCompile, KindCompileFailure) {
		t.Error("Is should match the wrapped cause")
	}
	if Is(wrapped, PhaseLink, KindUnresolvedSymbol) {
		t.Error("Is matched an unrelated kind")
	}
	if got := KindOf(wrapped); got != KindModuleFailed {
		t.Errorf("KindOf = %q", got)
	}
	if got := KindOf(fmt.Errorf("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q", got)
	}
}
