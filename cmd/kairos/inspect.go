package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rodrigorodrigues/kairos/internal/config"
	"github.com/rodrigorodrigues/kairos/internal/scheduler"
	"github.com/rodrigorodrigues/kairos/internal/timespec"
	logx "github.com/rodrigorodrigues/kairos/pkg/logx"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the resolved timeline as JSON without running it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.NewConfigManager(cfgPath).Load()
		if err != nil {
			return err
		}
		return printTimeline(cmd.OutOrStdout(), cfg, cliLogger(cmd))
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config file and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.NewConfigManager(cfgPath).Load()
		if err != nil {
			return err
		}
		s, err := resolveTimeline(cfg, cliLogger(cmd))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %d frame(s)\n", len(s.Frames()))
		return nil
	},
}

var durationCmd = &cobra.Command{
	Use:   "duration <text>...",
	Short: "Convert ISO-8601 style durations (P1DT2H, T30M) to milliseconds",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printDurations(cmd.OutOrStdout(), args, cliLogger(cmd))
	},
}

// cliLogger reports resolver diagnostics on the command's stderr.
func cliLogger(cmd *cobra.Command) logx.Logger {
	return logx.NewConsole(cmd.ErrOrStderr(), logLevel).With(logx.String("cmd", cmd.Name()))
}

// resolveTimeline builds a scheduler that is never started.
func resolveTimeline(cfg *config.Config, log logx.Logger) (*scheduler.Scheduler, error) {
	off := false
	return scheduler.New(scheduler.Config{
		Times:     cfg.Timeline.Times,
		Frames:    cfg.Timeline.Frames,
		AutoStart: &off,
		Timezone:  cfg.Timeline.Timezone,
	}, scheduler.WithLogger(log))
}

func printTimeline(w io.Writer, cfg *config.Config, log logx.Logger) error {
	s, err := resolveTimeline(cfg, log)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s.Snapshot())
}

func printDurations(w io.Writer, args []string, log logx.Logger) error {
	var bad []string
	for _, a := range args {
		ms, err := timespec.ParseDuration(a)
		if err != nil {
			log.Debug("duration rejected", logx.String("text", a), logx.Err(err))
			bad = append(bad, a)
			continue
		}
		fmt.Fprintf(w, "%s\t%d\n", a, ms)
	}
	if len(bad) > 0 {
		return fmt.Errorf("invalid duration(s): %s", strings.Join(bad, ", "))
	}
	return nil
}
