package host

import (
	"fmt"
	"io"
	"os"
)

// stdlib is the process runtime subset available to JIT'd code.
type stdlib struct {
	out io.Writer
}

func (s stdlib) Abs(x int32) int32 {
	if x < 0 {
		return -x
	}
	return x
}

func (s stdlib) Labs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

// Putchar writes the low byte of c.
func (s stdlib) Putchar(c int32) (int32, error) {
	if _, err := s.out.Write([]byte{byte(c)}); err != nil {
		return -1, err
	}
	return c, nil
}

// Putchard writes c as a character and returns 0.
func (s stdlib) Putchard(c int64) (int64, error) {
	_, err := fmt.Fprintf(s.out, "%c", rune(c))
	return 0, err
}

// Printd writes x in decimal followed by a newline and returns 0.
func (s stdlib) Printd(x int64) (int64, error) {
	_, err := fmt.Fprintf(s.out, "%d\n", x)
	return 0, err
}

// Process returns a table with abs, labs, putchar, putchard and printd.
// Output goes to out, or to standard output when out is nil.
func Process(out io.Writer) *SymbolTable {
	if out == nil {
		out = os.Stdout
	}
	t := NewSymbolTable()
	if err := t.RegisterMethods(stdlib{out: out}); err != nil {
		panic(err)
	}
	return t
}
