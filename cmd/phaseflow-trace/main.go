// Command phaseflow-trace renders a JSON trace file recorded by a
// Dispatcher constructed with WithTracing.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/go-lsutils/phaseflow/core/dispatch"
)

// cliConfig holds env-driven defaults layered under the command's argument, loaded
// the same way the teacher loads its own process config: an optional .env
// file for local overrides, then real environment variables on top.
type cliConfig struct {
	TraceFile string `env:"PHASEFLOW_TRACE_FILE"`
	NoColor   bool   `env:"PHASEFLOW_TRACE_NO_COLOR"`
}

func loadConfig() (cliConfig, error) {
	_ = godotenv.Load() // optional; absence of a .env file is not an error

	var cfg cliConfig
	if err := env.Parse(&cfg); err != nil {
		return cliConfig{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rootCmd := &cobra.Command{
		Use:   "phaseflow-trace",
		Short: "Inspect phaseflow dispatch traces",
	}

	showCmd := &cobra.Command{
		Use:   "show [file]",
		Short: "Render a recorded trace as a timeline",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfg.TraceFile
			if len(args) > 0 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no trace file given and PHASEFLOW_TRACE_FILE is unset")
			}
			return showTrace(path, cfg.NoColor)
		},
	}
	rootCmd.AddCommand(showCmd)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

var (
	eventIDStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#333333", Dark: "#EEEEEE"})
	stageStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5FAFFF")).Width(12)
	handlerStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#CCCCCC"}).Width(38)

	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#59C46F"))
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E05561"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#E0B341"))
	threwStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E05561"))
)

func showTrace(path string, noColor bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read trace file: %w", err)
	}

	var tr dispatch.Trace
	if err := json.Unmarshal(data, &tr); err != nil {
		return fmt.Errorf("parse trace file: %w", err)
	}

	fmt.Println(render(eventIDStyle, "event "+tr.EventID(), noColor))

	entries := tr.Entries()
	if len(entries) == 0 {
		fmt.Println("  (no handler invocations recorded)")
		return nil
	}

	for i, e := range entries {
		line := fmt.Sprintf("%3d  %s %s %s",
			i+1,
			render(stageStyle, e.Stage.String(), noColor),
			render(handlerStyle, e.HandlerID+" ("+e.Priority.String()+")", noColor),
			render(resultStyle(e), e.Result.String(), noColor),
		)
		if e.Threw {
			line += " " + render(threwStyle, "[panic]", noColor)
		}
		line += "  " + e.At.Format("15:04:05.000")
		fmt.Println(line)
	}
	return nil
}

// render applies style unless noColor was requested via
// PHASEFLOW_TRACE_NO_COLOR, in which case it returns text unstyled.
func render(style lipgloss.Style, text string, noColor bool) string {
	if noColor {
		return text
	}
	return style.Render(text)
}

func resultStyle(e dispatch.TraceEntry) lipgloss.Style {
	switch e.Result {
	case dispatch.ResultSuccess, dispatch.ResultSkipRemaining:
		return successStyle
	case dispatch.ResultFailure, dispatch.ResultCancelled:
		return failureStyle
	case dispatch.ResultWaiting:
		return warnStyle
	default:
		return lipgloss.NewStyle()
	}
}
