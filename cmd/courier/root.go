package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/lattiq/courier"
)

var rootCmd = &cobra.Command{
	Use:           "courier",
	Short:         "Send mail and manage list subscriptions",
	Long:          "courier dispatches email through the drivers configured in a YAML file and manages mailing list members.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", envOr("COURIER_CONFIG", "courier.yaml"), "Path to the YAML configuration file")
	rootCmd.PersistentFlags().String("log-file", "", "Write logs to this file (rotated) instead of stderr")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(subscribeCmd)
	rootCmd.AddCommand(unsubscribeCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads the configuration file and builds the logger shared by every
// subcommand.
func setup(cmd *cobra.Command) (*courier.MapSource, *slog.Logger, error) {
	logger, err := newLogger(cmd)
	if err != nil {
		return nil, nil, err
	}

	path, _ := cmd.Flags().GetString("config")
	src, err := courier.LoadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	return src, logger, nil
}

func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	levelName, _ := cmd.Flags().GetString("log-level")
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", levelName)
	}

	var out io.Writer = os.Stderr
	if file, _ := cmd.Flags().GetString("log-file"); file != "" {
		out = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
	}

	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})), nil
}

// printError reports a failed operation and returns an error for cobra.
func printError(cmd *cobra.Command, operation string, rec *courier.ErrorRecord) error {
	if rec == nil {
		return fmt.Errorf("%s failed", operation)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s failed: %s (code %d)\n", operation, rec.Message, rec.Code)
	return fmt.Errorf("%s failed", operation)
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
