// parley is an MCP stdio server that lets a language model ask a human for
// input, choices, confirmations, and acknowledgements through interactive
// terminal prompts.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"parley/internal/call"
	"parley/internal/color"
	"parley/internal/config"
	"parley/internal/dispatch"
	"parley/internal/mcpserver"
	"parley/internal/spawn"
	"parley/internal/surface"
)

const version = "0.1.0"

func main() {
	if err := run(os.Args, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet(args[0], flag.ContinueOnError)
	flags.SetOutput(stderr)

	var (
		showVersion = flags.Bool("version", false, "Show version information")
		showHelp    = flags.Bool("help", false, "Show help information")
		configPath  = flags.String("config", "", "Path to YAML config file")
		strategy    = flags.String("strategy", "", "Presentation strategy (thread, subprocess)")
		executor    = flags.String("executor", "", "Path to the prompt executor binary (subprocess strategy)")
		logLevel    = flags.String("log-level", "", "Log level (debug, info, warn, error)")
		colorMode   = flags.String("color", "", "Control color output (auto, always, never)")
	)

	if err := flags.Parse(args[1:]); err != nil {
		return err
	}

	if *showVersion {
		_, _ = fmt.Fprintf(stdout, "parley version %s\n", version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Flags win over config file and environment.
	if *strategy != "" {
		cfg.Strategy = *strategy
	}
	if *executor != "" {
		cfg.ExecutorPath = *executor
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *colorMode != "" {
		cfg.Color = *colorMode
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if *showHelp {
		printHelp(stdout, cfg.Color)
		return nil
	}

	color.ConfigureProfile(cfg.Color)

	// stdout carries the MCP transport; everything human-readable goes to
	// stderr.
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))

	var runner dispatch.Runner
	switch cfg.Strategy {
	case config.StrategySubprocess:
		runner = spawn.New(cfg.ExecutorPath, spawn.WithLogger(logger))
	default:
		runner = surface.New()
	}

	// The run ceiling sits above the ask ceiling so a prompt the human is
	// still answering survives its caller's timeout, while a hung surface is
	// eventually killed.
	d := dispatch.New(runner,
		dispatch.WithLogger(logger),
		dispatch.WithStartupTimeout(cfg.StartupTimeout),
		dispatch.WithRunTimeout(cfg.AskTimeout+time.Minute),
	)
	defer d.Stop()

	asker := call.New(d,
		call.WithTimeout(cfg.AskTimeout),
		call.WithLogger(logger),
	)

	srv := mcpserver.New(asker, version,
		mcpserver.WithStrategy(cfg.Strategy),
		mcpserver.WithLogger(logger),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve()
	}()

	logger.Info("serving", "strategy", cfg.Strategy, "version", version)
	select {
	case sig := <-sigChan:
		logger.Info("shutting down", "signal", sig.String())
		return nil
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printHelp(w io.Writer, colorMode string) {
	useColors := color.Enabled(colorMode)

	var mdRenderer *glamour.TermRenderer
	if useColors {
		var err error
		mdRenderer, err = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(0),
		)
		if err != nil {
			mdRenderer = nil
		}
	}

	renderMarkdown := func(text string) string {
		if mdRenderer == nil {
			return text
		}
		rendered, err := mdRenderer.Render(text)
		if err != nil {
			return text
		}
		return strings.TrimSpace(rendered)
	}

	titleStyle := lipgloss.NewStyle().Bold(true).MarginBottom(1)
	sectionStyle := lipgloss.NewStyle().Bold(true).MarginTop(1)
	optionStyle := lipgloss.NewStyle()
	descStyle := lipgloss.NewStyle()

	if useColors {
		titleStyle = titleStyle.Foreground(lipgloss.Color("6"))
		sectionStyle = sectionStyle.Foreground(lipgloss.Color("3"))
		optionStyle = optionStyle.Foreground(lipgloss.Color("2"))
		descStyle = descStyle.Foreground(lipgloss.Color("7"))
	}

	title := titleStyle.Render("parley - Human-in-the-loop MCP server")

	usage := lipgloss.JoinVertical(lipgloss.Left,
		sectionStyle.Render("Usage:"),
		"  parley [options]",
	)

	description := lipgloss.JoinVertical(lipgloss.Left,
		sectionStyle.Render("Description:"),
		descStyle.Render("  Parley serves MCP tools over stdio that pause the model and ask a"),
		descStyle.Render("  human: free-form input, choices, multi-line text, confirmations, and"),
		descStyle.Render("  informational messages. Prompts render as interactive terminal forms,"),
		descStyle.Render("  either in-process or in a spawned executor (parley-prompt)."),
	)

	options := lipgloss.JoinVertical(lipgloss.Left,
		sectionStyle.Render("Options:"),
		fmt.Sprintf("  %s         Show this help message", optionStyle.Render("--help")),
		fmt.Sprintf("  %s      Show version information", optionStyle.Render("--version")),
		fmt.Sprintf("  %s       Path to YAML config file", optionStyle.Render("--config")),
		fmt.Sprintf("  %s     Presentation strategy (thread, subprocess)", optionStyle.Render("--strategy")),
		fmt.Sprintf("  %s     Path to the prompt executor binary", optionStyle.Render("--executor")),
		fmt.Sprintf("  %s    Log level (debug, info, warn, error)", optionStyle.Render("--log-level")),
		fmt.Sprintf("  %s        Control color output (auto, always, never)", optionStyle.Render("--color")),
	)

	toolsBlock := `~~~
get_user_input            Ask for text, an integer, or a float
get_user_choice           Ask to pick one or more choices
get_multiline_input       Ask for longer, multi-line text
show_confirmation_dialog  Ask a Yes/No question
show_info_message         Show a message to acknowledge
health_check              Report server status and strategy
~~~`

	tools := lipgloss.JoinVertical(lipgloss.Left,
		sectionStyle.Render("Tools:"),
		renderMarkdown(toolsBlock),
	)

	configBlock := `~~~yaml
log_level: info
strategy: subprocess
executor_path: /usr/local/bin/parley-prompt
ask_timeout: 5m
startup_timeout: 5s
color: auto
~~~`

	configSection := lipgloss.JoinVertical(lipgloss.Left,
		sectionStyle.Render("Config file:"),
		"  Settings load from the YAML file, then PARLEY_* environment",
		"  variables, then flags:",
		"",
		renderMarkdown(configBlock),
	)

	help := lipgloss.JoinVertical(lipgloss.Left,
		title,
		usage,
		description,
		options,
		tools,
		configSection,
	)

	_, _ = fmt.Fprintln(w, help)
}
