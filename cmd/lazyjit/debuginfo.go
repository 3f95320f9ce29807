package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wippyai/lazyjit/debuginfo"
)

func newDebugInfoCommand(_ *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "debuginfo <module.yaml>...",
		Short: "Print the debug metadata of modules",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for i, path := range args {
				m, err := loadModule(path)
				if err != nil {
					return err
				}
				if len(args) > 1 {
					if i > 0 {
						fmt.Fprintln(out)
					}
					fmt.Fprintf(out, "; %s\n", m.Name)
				}
				if err := debuginfo.Print(out, m); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
