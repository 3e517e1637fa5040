package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/js-playground/internal/config"
	"github.com/sakif/js-playground/internal/executor"
	"github.com/sakif/js-playground/internal/executor/javascript"
	"github.com/sakif/js-playground/internal/executor/typescript"
)

// errProgramFailed is returned after the failure message has been printed,
// so main only sets the exit code.
var errProgramFailed = errors.New("program failed")

type rootOptions struct {
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "playctl",
		Short:         "Run JS playground programs locally",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "debug, info, warn or error")

	root.AddCommand(newRunCmd(opts), newLanguagesCmd(opts))
	return root
}

func (o *rootOptions) logger(w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(o.logLevel)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// newEngine registers the in-process languages only; the Docker-backed
// one needs a daemon and a pool, which a one-shot command should not pay for.
func newEngine(logger *slog.Logger, timeout time.Duration) (*executor.Engine, error) {
	cfg := executor.DefaultConfig()
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	return executor.NewEngine(cfg, logger, []executor.Handler{
		javascript.New(javascript.DefaultConfig(), logger),
		typescript.New(),
	})
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		lang    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Run a program and print its console output",
		Long: `Runs the program in file, or stdin when no file is given.
Output lines go to stdout. On failure the message goes to stderr
and the exit code is 1.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := readSource(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			logger, err := opts.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			engine, err := newEngine(logger, timeout)
			if err != nil {
				return err
			}

			res, err := engine.Execute(cmd.Context(), executor.ExecutionRequest{Code: source, Language: lang})
			if err != nil {
				return err
			}
			if !res.OK() {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", res.Kind, res.Error)
				return errProgramFailed
			}
			_, err = io.WriteString(cmd.OutOrStdout(), res.Text())
			return err
		},
	}

	cmd.Flags().StringVarP(&lang, "lang", "l", javascript.Language, "language id")
	cmd.Flags().DurationVar(&timeout, "timeout", executor.DefaultConfig().Timeout, "execution time budget")
	return cmd
}

func newLanguagesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List the language ids playctl can run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := opts.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			engine, err := newEngine(logger, 0)
			if err != nil {
				return err
			}
			for _, l := range engine.Languages() {
				fmt.Fprintln(cmd.OutOrStdout(), l)
			}
			return nil
		},
	}
}

func readSource(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(stdin)
		return string(b), err
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", args[0], err)
	}
	return string(b), nil
}

