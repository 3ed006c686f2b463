package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/jmelis/sotto/internal/analytics"
	"github.com/jmelis/sotto/internal/config"
	"github.com/jmelis/sotto/internal/dispatch"
	"github.com/jmelis/sotto/internal/history"
	"github.com/jmelis/sotto/internal/orchestrator"
	"github.com/jmelis/sotto/internal/provider"
	"github.com/jmelis/sotto/internal/registry"
	"github.com/jmelis/sotto/internal/session"
)

const version = "0.3.0"

func main() {
	configFlag := flag.String("config", "", "Path to config file")
	modeFlag := flag.StringP("mode", "m", "dictation", "Session mode: dictation, command, or write")
	providerFlag := flag.String("provider", "", "Override the default provider for this run")
	modelFlag := flag.String("model", "", "Override the selected model for this run")
	presetFlag := flag.String("preset", "", "Use a saved prompt preset")
	deliveryFlag := flag.String("delivery", "", "Delivery method: typed, clipboard, or history")
	logLevelFlag := flag.String("log-level", "", "Log level: debug, info, warn, or error")
	versionFlag := flag.BoolP("version", "V", false, "Print version and exit")
	helpFlag := flag.BoolP("help", "h", false, "Show help")

	flag.Usage = showHelp
	flag.Parse()

	if *helpFlag {
		showHelp()
		os.Exit(0)
	}
	if *versionFlag {
		fmt.Printf("sotto %s\n", version)
		os.Exit(0)
	}

	// A .env next to the working directory lets users keep provider keys out
	// of the config file itself.
	_ = godotenv.Load()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fatal("config error: %s", err)
	}
	applyOverrides(cfg, *providerFlag, *modelFlag)
	setupLogging(cfg, *logLevelFlag)

	args := flag.Args()
	if len(args) > 0 {
		switch args[0] {
		case "providers":
			cmdProviders(cfg)
			return
		case "models":
			cmdModels(cfg)
			return
		case "doctor":
			cmdDoctor(cfg, *configFlag)
			return
		case "history":
			cmdHistory(cfg, args[1:])
			return
		case "config":
			if len(args) > 1 && args[1] == "show" {
				cmdConfigShow(cfg)
				return
			}
			fatal("usage: sotto config show")
		case "presets":
			cmdPresets()
			return
		case "help":
			showHelp()
			return
		case "run":
			args = args[1:]
		}
	}

	cmdRun(cfg, *modeFlag, *presetFlag, *deliveryFlag, args)
}

// cmdRun drives one full session over a transcript taken from the command
// line or from stdin when input is piped in.
func cmdRun(cfg *config.Config, modeStr, preset, delivery string, args []string) {
	mode, err := session.ParseMode(modeStr)
	if err != nil {
		fatal("%s", err)
	}

	transcript := strings.TrimSpace(strings.Join(args, " "))
	if transcript == "" && !isTerminal() {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fatal("read stdin: %s", err)
		}
		transcript = strings.TrimSpace(string(data))
	}
	if transcript == "" {
		fatal("nothing to process: pass a transcript (sotto \"some words\") or pipe one on stdin")
	}

	if delivery != "" {
		if err := overrideDelivery(cfg, mode, delivery); err != nil {
			fatal("%s", err)
		}
	}

	settings := config.NewStore(cfg)
	if preset != "" {
		p, err := config.LoadPromptPreset(preset)
		if err != nil {
			fatal("%s", err)
		}
		settings = settings.WithPrompt(p.Prompt)
		if p.Mode != "" && !flag.CommandLine.Changed("mode") {
			if m, err := session.ParseMode(p.Mode); err == nil {
				mode = m
			}
		}
	}

	client := provider.NewClient(cfg.RequestTimeout())
	sender := provider.WithRetry(client, cfg.Retry.MaxAttempts)

	tools := hostTools()
	orch := orchestrator.New(sender, tools, tools.Defs(), &orchestrator.Config{
		MaxRounds: cfg.Modes.Command.MaxRounds,
		Logger:    slog.Default(),
	})

	var recorder session.Recorder
	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg.HistoryPath())
		if err != nil {
			slog.Warn("session history disabled", "error", err)
		} else {
			defer store.Close()
			recorder = store
		}
	}

	var sink analytics.Sink = analytics.NopSink{}
	if cfg.Analytics {
		sink = analytics.NewLogSink(slog.Default())
	}

	ctrl, err := session.NewController(session.Config{
		Transcriber: session.StaticTranscriber{Text: transcript},
		Sender:      sender,
		Commands:    orch,
		Dispatcher:  dispatch.NewStandard(os.Stdout),
		Settings:    settings,
		Analytics:   sink,
		Recorder:    recorder,
		Logger:      slog.Default(),
	})
	if err != nil {
		fatal("%s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := ctrl.Begin(ctx, mode); err != nil {
		fatal("%s", err)
	}
	res, err := ctrl.Complete()
	if err != nil {
		fatal("%s", err)
	}

	if store != nil {
		if _, err := store.Trim(context.Background(), cfg.History.Keep); err != nil {
			slog.Warn("trimming session history failed", "error", err)
		}
	}

	slog.Debug("session finished",
		"session", res.SessionID,
		"mode", res.Mode,
		"provider", res.Provider,
		"model", res.Model,
		"duration", res.Duration,
	)
}

// applyOverrides points the config at a different provider or model for a
// single invocation. The result goes back through Validate so a typo fails
// the same way a bad config file would.
func applyOverrides(cfg *config.Config, providerName, model string) {
	if providerName == "" && model == "" {
		return
	}
	if providerName != "" {
		cfg.DefaultProvider = providerName
	}
	if model != "" {
		want := registry.NormalizeKey(cfg.DefaultProvider)
		for name, p := range cfg.Providers {
			if registry.NormalizeKey(name) == want {
				p.Model = model
				cfg.Providers[name] = p
			}
		}
	}
	if err := cfg.Validate(); err != nil {
		fatal("config error: %s", err)
	}
}

func overrideDelivery(cfg *config.Config, mode session.Mode, method string) error {
	switch dispatch.Method(method) {
	case dispatch.MethodTyped, dispatch.MethodClipboard, dispatch.MethodHistoryOnly:
	default:
		return fmt.Errorf("unknown delivery method %q (want typed, clipboard, or history)", method)
	}
	switch mode {
	case session.ModeDictation:
		cfg.Modes.Dictation.Delivery = method
	case session.ModeCommand:
		cfg.Modes.Command.Delivery = method
	case session.ModeWrite:
		cfg.Modes.Write.Delivery = method
	}
	return nil
}

func setupLogging(cfg *config.Config, override string) {
	level := cfg.LogLevel
	if override != "" {
		level = override
	}
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// isTerminal reports whether stdin is connected to a terminal rather than a
// pipe or file.
func isTerminal() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return true
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func showHelp() {
	fmt.Print(`sotto - voice transcript pipeline for dictation, commands, and drafting

USAGE:
  sotto [flags] [transcript...]    Run a session over a transcript
  sotto <command> [args]           Run a management command
  echo "words" | sotto [flags]     Read the transcript from stdin

COMMANDS:
  run [transcript...]    Process a transcript (the default action)
  providers              List configured providers
  models                 List the models each provider serves
  doctor                 Check provider connectivity and configuration
  history [n|clear]      Show recent sessions, or clear them
  config show            Print the effective configuration as YAML
  presets                List saved prompt presets
  help                   Show this help

FLAGS:
  -m, --mode <mode>        dictation (default), command, or write
      --provider <name>    Override the default provider for this run
      --model <name>       Override the selected model for this run
      --preset <name>      Use a saved prompt preset
      --delivery <method>  typed, clipboard, or history
      --config <path>      Config file (default: ~/.config/sotto/config.yaml)
      --log-level <level>  debug, info, warn, or error
  -V, --version            Print version and exit
  -h, --help               Show this help

EXAMPLES:
  sotto "so basically i think we should um ship it on tuesday"
  echo "hello world" | sotto
  sotto -m command "put the current time on my clipboard"
  sotto -m write --delivery clipboard "a short email declining the invite"
  sotto --provider groq --model llama-3.3-70b-versatile "quick note to self"
  sotto doctor
`)
}
