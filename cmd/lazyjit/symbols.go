package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/wippyai/lazyjit/engine"
	"github.com/wippyai/lazyjit/host"
	"github.com/wippyai/lazyjit/ir"
)

type symbolsOptions struct {
	*rootOptions
	Set     bool
	Regions bool
}

func newSymbolsCommand(root *rootOptions) *cobra.Command {
	opts := &symbolsOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "symbols <module.yaml>...",
		Short: "List the definitions of modules and where they resolve",
		Long: `Add modules to an engine and list each definition with its linkage and
resolved address. Nothing is compiled: functions resolve to their stubs.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return listSymbols(cmd, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.Set, "set", false, "add all modules as one module set")
	cmd.Flags().BoolVar(&opts.Regions, "regions", false, "also print the address space")

	return cmd
}

func listSymbols(cmd *cobra.Command, opts *symbolsOptions, files []string) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	mods, err := loadModules(files)
	if err != nil {
		return err
	}

	cfg := opts.config()
	cfg.Host = host.Process(io.Discard)
	eng, err := engine.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := eng.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if _, err := addModules(ctx, eng, mods, opts.Set); err != nil {
		return err
	}

	for _, m := range mods {
		fmt.Fprintf(out, "module %s\n", m.Name)
		for _, f := range m.Functions {
			if f.IsDeclaration() {
				continue
			}
			if err := printSymbol(ctx, out, eng, "func", f.Name, f.Linkage); err != nil {
				return err
			}
		}
		for _, g := range m.Globals {
			if g.Extern {
				continue
			}
			if err := printSymbol(ctx, out, eng, "global", g.Name, g.Linkage); err != nil {
				return err
			}
		}
	}

	if opts.Regions {
		fmt.Fprintln(out, "regions")
		for _, r := range eng.Regions() {
			fmt.Fprintf(out, "  %s\n", r)
		}
	}
	return nil
}

func printSymbol(ctx context.Context, w io.Writer, eng *engine.Engine, kind, name string, linkage ir.Linkage) error {
	if linkage == ir.Internal {
		fmt.Fprintf(w, "  %-6s %-20s %-8s -\n", kind, name, linkage)
		return nil
	}
	sym, ok, err := eng.FindSymbol(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(w, "  %-6s %-20s %-8s unresolved\n", kind, name, linkage)
		return nil
	}
	addr, err := sym.Address(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  %-6s %-20s %-8s %s %s\n", kind, name, linkage, addr, sym.Flags())
	return nil
}
