package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/lazyjit/engine"
	"github.com/wippyai/lazyjit/linker"
	"github.com/wippyai/lazyjit/orc"
)

// rootOptions holds flags shared by every command.
type rootOptions struct {
	log         *zap.Logger
	Backend     string
	MemoryLimit string
	CacheDir    string
	Prefix      string
	Verbose     bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{log: zap.NewNop()}

	cmd := &cobra.Command{
		Use:   "lazyjit",
		Short: "Run IR modules, compiling each function on first call",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !opts.Verbose {
				return nil
			}
			log, err := zap.NewDevelopment()
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			opts.log = log
			orc.SetLogger(log.Named("orc"))
			linker.SetLogger(log.Named("linker"))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "log engine activity to stderr")
	flags.StringVar(&opts.Backend, "backend", string(engine.BackendAuto), "execution backend (auto|compiler|interpreter)")
	flags.StringVar(&opts.MemoryLimit, "memory-limit", "", "linear memory cap, e.g. 64MiB")
	flags.StringVar(&opts.CacheDir, "cache-dir", "", "directory for the native code cache")
	flags.StringVar(&opts.Prefix, "global-prefix", "", "override the target's symbol prefix")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newSymbolsCommand(opts))
	cmd.AddCommand(newDebugInfoCommand(opts))
	cmd.AddCommand(newReplCommand(opts))

	return cmd
}

// config maps the flags onto an engine configuration.
func (o *rootOptions) config() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.Logger = o.log
	cfg.Backend = engine.Backend(o.Backend)
	cfg.MemoryLimit = o.MemoryLimit
	cfg.CompilationCacheDir = o.CacheDir
	if o.Prefix != "" {
		cfg.Target.GlobalPrefix = o.Prefix
	}
	return cfg
}
