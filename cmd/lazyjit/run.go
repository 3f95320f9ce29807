package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dc0d/onexit"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/lazyjit/engine"
	"github.com/wippyai/lazyjit/host"
	"github.com/wippyai/lazyjit/ir"
)

type runOptions struct {
	*rootOptions
	Entry string
	Set   bool
	Stats bool
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "run <module.yaml>... [-- args...]",
		Short: "Load modules, call the entry function and print its result",
		Long: `Load one or more IR modules, run their constructors, call the entry
function with the integer arguments after "--", print the result and run
destructors.

Example:
  lazyjit run testdata/hello.yaml -- 12
  lazyjit run --set --entry main a.yaml b.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, callArgs := args, []string(nil)
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				files, callArgs = args[:dash], args[dash:]
			}
			if len(files) == 0 {
				return fmt.Errorf("no module files given")
			}
			return runModules(cmd, opts, files, callArgs)
		},
	}

	cmd.Flags().StringVar(&opts.Entry, "entry", "main", "function to call")
	cmd.Flags().BoolVar(&opts.Set, "set", false, "add all modules as one module set")
	cmd.Flags().BoolVar(&opts.Stats, "stats", false, "print compile statistics after the call")

	return cmd
}

func parseArgs(args []string) ([]uint64, error) {
	words := make([]uint64, len(args))
	for i, a := range args {
		v, err := strconv.ParseInt(a, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %q is not an integer", i, a)
		}
		words[i] = uint64(v)
	}
	return words, nil
}

func runModules(cmd *cobra.Command, opts *runOptions, files, callArgs []string) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	words, err := parseArgs(callArgs)
	if err != nil {
		return err
	}
	mods, err := loadModules(files)
	if err != nil {
		return err
	}

	entry := findFunction(mods, opts.Entry)
	if entry == nil {
		return fmt.Errorf("entry function %q is not defined", opts.Entry)
	}
	if len(entry.Params) != len(words) {
		return fmt.Errorf("%s takes %d arguments, got %d", opts.Entry, len(entry.Params), len(words))
	}

	cfg := opts.config()
	cfg.Host = host.Process(out)
	eng, err := engine.New(ctx, cfg)
	if err != nil {
		return err
	}
	onexit.Register(func() {
		if cerr := eng.Close(context.Background()); cerr != nil {
			opts.log.Warn("teardown on exit", zap.Error(cerr))
		}
	})
	defer func() {
		if cerr := eng.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if _, err := addModules(ctx, eng, mods, opts.Set); err != nil {
		return err
	}

	sym, ok, err := eng.FindSymbol(ctx, opts.Entry)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("entry function %q is not exported", opts.Entry)
	}
	addr, err := sym.Address(ctx)
	if err != nil {
		return err
	}

	results, err := eng.Call(ctx, addr, words...)
	if err != nil {
		return fmt.Errorf("call %s: %w", opts.Entry, err)
	}
	if len(results) > 0 && entry.Result != ir.Void {
		fmt.Fprintln(out, formatResult(entry.Result, results[0]))
	}

	if opts.Stats {
		st := eng.Stats()
		fmt.Fprintf(out, "stubs: %d, fired: %d, partitions: %d\n", st.Stubs, st.Fired, st.Partitions)
	}
	return nil
}
