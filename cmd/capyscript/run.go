package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"go.alt-gnome.ru/capyscript"
	"go.alt-gnome.ru/capyscript/internal/scriptfile"
	"go.alt-gnome.ru/capyscript/providers/local"
	"go.alt-gnome.ru/capyscript/providers/tty"
)

func newRunCmd(logger func(io.Writer) *slog.Logger) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "run FILE...",
		Short: "Run script files against their commands",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger(cmd.ErrOrStderr())

			var failed int
			for _, path := range args {
				start := time.Now()
				if err := runFile(cmd, path, timeout, log); err != nil {
					failed++
					log.Error("script failed", "file", path, "error", err)
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s (%s)\n", path, time.Since(start).Round(time.Millisecond))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s (%s)\n", path, time.Since(start).Round(time.Millisecond))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scripts failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "default timeout for scripts that do not set one")
	return cmd
}

func runFile(cmd *cobra.Command, path string, timeout time.Duration, log *slog.Logger) error {
	f, err := scriptfile.Load(path)
	if err != nil {
		return err
	}
	if f.Timeout.Duration == 0 {
		f.Timeout.Duration = timeout
	}

	var p capyscript.Provider = local.Provider()
	if f.Provider == "tty" {
		p = tty.Provider()
	}

	r := capyscript.NewRunner(p, capyscript.WithLogger(log.With("file", path)))
	return f.Build(r).Done(cmd.Context())
}
