package debuginfo

import (
	"bufio"
	"fmt"
	"io"

	"github.com/wippyai/lazyjit/ir"
)

// Print writes the debug-info report of m to w.
func Print(w io.Writer, m *ir.Module) error {
	f := NewFinder()
	f.ProcessModule(m)
	return f.Print(w)
}

// Print writes a report of everything collected to w, one line per node:
//
//	Compile unit: DW_LANG_C99 from /src/app.c
//	Subprogram: main from /src/app.c:3 ('main')
//	Global variable: counter from /src/app.c:1
//	Type: int DW_ATE_signed
func (f *Finder) Print(w io.Writer) error {
	bw := bufio.NewWriter(w)

	for _, cu := range f.units {
		bw.WriteString("Compile unit: ")
		if lang, ok := LanguageString(cu.Language); ok {
			bw.WriteString(lang)
		} else {
			fmt.Fprintf(bw, "unknown-language(%d)", cu.Language)
		}
		printFile(bw, cu.File, 0)
		bw.WriteByte('\n')
	}

	for _, sp := range f.subprograms {
		bw.WriteString("Subprogram: " + sp.Name)
		printFile(bw, sp.File, sp.Line)
		printLinkageName(bw, sp.LinkageName)
		bw.WriteByte('\n')
	}

	for _, g := range f.globals {
		bw.WriteString("Global variable: " + g.Name)
		printFile(bw, g.File, g.Line)
		printLinkageName(bw, g.LinkageName)
		bw.WriteByte('\n')
	}

	for _, t := range f.types {
		bw.WriteString("Type:")
		if t.Name != "" {
			bw.WriteString(" " + t.Name)
		}
		printFile(bw, t.File, t.Line)
		bw.WriteByte(' ')
		if t.IsBasic() {
			if enc, ok := EncodingString(t.Encoding); ok {
				bw.WriteString(enc)
			} else {
				fmt.Fprintf(bw, "unknown-encoding(%d)", t.Encoding)
			}
		} else {
			if tag, ok := TagString(t.Tag); ok {
				bw.WriteString(tag)
			} else {
				fmt.Fprintf(bw, "unknown-tag(%d)", t.Tag)
			}
		}
		if t.IsComposite() && t.Identifier != "" {
			fmt.Fprintf(bw, " (identifier: '%s')", t.Identifier)
		}
		bw.WriteByte('\n')
	}

	return bw.Flush()
}

func printFile(w *bufio.Writer, file ir.DIFile, line uint32) {
	if file.Filename == "" {
		return
	}
	w.WriteString(" from ")
	if file.Directory != "" {
		w.WriteString(file.Directory + "/")
	}
	w.WriteString(file.Filename)
	if line != 0 {
		fmt.Fprintf(w, ":%d", line)
	}
}

func printLinkageName(w *bufio.Writer, name string) {
	if name != "" {
		fmt.Fprintf(w, " ('%s')", name)
	}
}
