package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/gdrive-upload/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// skipConfigAnnotation marks commands that must run without a valid config
// file (logout only needs the data directory).
const skipConfigAnnotation = "skipConfig"

// CLIFlags holds the persistent flag values.
type CLIFlags struct {
	ConfigPath string
	DataDir    string
	Verbose    bool
	Quiet      bool
}

// CLIContext is built once per invocation by the root pre-run and handed to
// subcommands through the command context.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Resolved
	Logger *slog.Logger
	Stdout io.Writer
	Stderr io.Writer
}

type cliContextKey struct{}

// mustCLIContext returns the CLIContext stored by the root pre-run. It
// panics when called outside a command, which is a programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("CLIContext missing from command context")
	}

	return cc
}

func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:   "gdrive-upload",
		Short: "Resumable Google Drive uploader",
		Long: `Upload large files to Google Drive in resumable chunks and share them by link.

Interrupted uploads survive restarts: run 'gdrive-upload resume' (or keep
'gdrive-upload watch' running) to finish them where they stopped.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc := &CLIContext{
				Flags:  flags,
				Stdout: cmd.OutOrStdout(),
				Stderr: cmd.ErrOrStderr(),
			}

			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				if cmd.Annotations[skipConfigAnnotation] != "true" {
					return err
				}

				cfg = fallbackConfig(flags)
			}

			cc.Cfg = cfg
			cc.Logger = buildLogger(cc.Stderr, cfg, flags)

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flags.DataDir, "data-dir", "", "directory for the token and upload state")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newPendingCmd())
	cmd.AddCommand(newCancelCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newWatchCmd())

	return cmd
}

// loadConfig resolves the effective configuration. Command-local flags that
// override config values are read here so the merged result is validated
// once.
func loadConfig(cmd *cobra.Command, flags CLIFlags) (*config.Resolved, error) {
	cli := config.CLIOverrides{
		ConfigPath: flags.ConfigPath,
		DataDir:    flags.DataDir,
	}

	if f := cmd.Flags().Lookup("chunk-size"); f != nil && f.Changed {
		cli.ChunkSize = f.Value.String()
	}

	if f := cmd.Flags().Lookup("feed-addr"); f != nil && f.Changed {
		cli.FeedAddr = f.Value.String()
	}

	if f := cmd.Flags().Lookup("direct-link"); f != nil && f.Changed {
		v := f.Value.String() == "true"
		cli.DirectLink = &v
	}

	if f := cmd.Flags().Lookup("no-share"); f != nil && f.Changed {
		v := f.Value.String() == "true"
		cli.NoShare = &v
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return resolved, nil
}

// fallbackConfig is used by commands that tolerate a broken config file.
func fallbackConfig(flags CLIFlags) *config.Resolved {
	dataDir := flags.DataDir
	if dataDir == "" {
		dataDir = os.Getenv(config.EnvDataDir)
	}

	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}

	return &config.Resolved{DataDir: dataDir}
}

// buildLogger creates the process logger. The config-file level is the
// baseline; --verbose and --quiet override it. Format "auto" picks text
// for a terminal and JSON otherwise.
func buildLogger(w io.Writer, cfg *config.Resolved, flags CLIFlags) *slog.Logger {
	level := slog.LevelInfo
	format := "auto"

	if cfg != nil {
		switch strings.ToLower(cfg.LogLevel) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}

		if cfg.LogFormat != "" {
			format = strings.ToLower(cfg.LogFormat)
		}
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == "json" || (format == "auto" && !isTerminal(w)) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
