package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"go.alt-gnome.ru/capyscript/internal/scriptfile"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check FILE...",
		Short: "Validate script files without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var invalid int
			for _, path := range args {
				f, err := scriptfile.Load(path)
				if err != nil {
					invalid++
					fmt.Fprintf(cmd.OutOrStdout(), "invalid %v\n", err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "valid   %s: %s, %d steps\n", path, f.Command, len(f.Steps))
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d scripts are invalid", invalid, len(args))
			}
			return nil
		},
	}
}
