package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jmelis/sotto/internal/config"
	"github.com/jmelis/sotto/internal/health"
	"github.com/jmelis/sotto/internal/history"
	"github.com/jmelis/sotto/internal/provider"
	"github.com/jmelis/sotto/internal/registry"
)

func cmdProviders(cfg *config.Config) {
	defaultKey := registry.NormalizeKey(cfg.DefaultProvider)

	fmt.Println("Configured providers:")
	fmt.Println()
	for _, prof := range cfg.Profiles() {
		marker := " "
		if prof.Key == defaultKey {
			marker = "*"
		}
		model := prof.SelectedModel
		if model == "" {
			model = "(no model selected)"
		}
		fmt.Printf("  %s %-24s %-32s %s\n", marker, prof.Key, model, prof.BaseURL)
	}
	fmt.Println()
	fmt.Println("* default provider")
}

// cmdModels asks every provider for its model list and flags selected models
// that the provider no longer serves.
func cmdModels(cfg *config.Config) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := provider.NewClient(cfg.RequestTimeout())

	available := make(map[string][]string)
	selected := make(map[string]string)

	for _, prof := range cfg.Profiles() {
		if prof.SelectedModel != "" {
			selected[prof.Key] = prof.SelectedModel
		}

		models, err := client.ListModels(ctx, prof)
		if err != nil {
			fmt.Printf("%s: %s\n\n", prof.Display(), err)
			continue
		}
		available[prof.Key] = models

		fmt.Printf("%s (%d models)\n", prof.Display(), len(models))
		for _, m := range models {
			marker := "  "
			if m == prof.SelectedModel {
				marker = "* "
			}
			fmt.Printf("  %s%s\n", marker, m)
		}
		fmt.Println()
	}

	// Selections pointing at models a reachable provider no longer serves
	// are stale; unreachable providers are skipped since their selection may
	// still be fine.
	kept := registry.Reconcile(available, selected)
	for key, model := range selected {
		if _, ok := kept[key]; ok {
			continue
		}
		if _, reachable := available[key]; reachable {
			fmt.Printf("note: selected model %q is no longer served by %s\n", model, key)
		}
	}
}

func cmdDoctor(cfg *config.Config, configPath string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("sotto doctor")
	fmt.Println()

	if configPath != "" {
		fmt.Printf("  config: %s\n", configPath)
	} else {
		fmt.Println("  config: defaults plus any config.yaml found in the search path")
	}
	fmt.Printf("  default provider: %s\n", registry.NormalizeKey(cfg.DefaultProvider))
	fmt.Printf("  history: %s\n", historySummary(cfg))
	fmt.Println()

	client := provider.NewClient(cfg.RequestTimeout())
	statuses := health.CheckAll(ctx, client, cfg.Profiles())

	healthy := 0
	for _, s := range statuses {
		if s.Reachable {
			healthy++
			fmt.Printf("  ✓ %-24s %d models, %s\n", s.Name, len(s.Models), s.Latency.Round(time.Millisecond))
		} else {
			fmt.Printf("  ✗ %-24s %s\n", s.Name, s.Error)
		}
	}
	fmt.Println()

	if prof, err := cfg.DefaultProfile(); err == nil && prof.SelectedModel != "" {
		if err := health.CheckModel(ctx, client, prof, prof.SelectedModel); err != nil {
			fmt.Printf("  ✗ default model: %s\n", err)
		} else {
			fmt.Printf("  ✓ default model: %s on %s\n", prof.SelectedModel, prof.Display())
		}
		fmt.Println()
	}

	fmt.Printf("%d of %d providers reachable\n", healthy, len(statuses))
	if healthy == 0 {
		os.Exit(1)
	}
}

func historySummary(cfg *config.Config) string {
	if !cfg.History.Enabled {
		return "disabled"
	}
	return fmt.Sprintf("%s (keep %d)", cfg.HistoryPath(), cfg.History.Keep)
}

func cmdHistory(cfg *config.Config, args []string) {
	if !cfg.History.Enabled {
		fatal("session history is disabled in the configuration")
	}

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		fatal("open history: %s", err)
	}
	defer store.Close()

	ctx := context.Background()

	limit := 20
	if len(args) > 0 {
		if args[0] == "clear" {
			removed, err := store.Trim(ctx, 0)
			if err != nil {
				fatal("clear history: %s", err)
			}
			fmt.Printf("removed %d entries\n", removed)
			return
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			fatal("usage: sotto history [n|clear]")
		}
		limit = n
	}

	entries, err := store.List(ctx, limit)
	if err != nil {
		fatal("list history: %s", err)
	}
	if len(entries) == 0 {
		fmt.Println("no sessions recorded yet")
		return
	}

	for _, e := range entries {
		fmt.Printf("%s  %-9s %-9s %s/%s\n",
			e.CreatedAt.Format("2006-01-02 15:04"),
			e.Mode, e.Method, e.Provider, e.Model,
		)
		fmt.Printf("    in:  %s\n", truncate(e.Transcript, 100))
		fmt.Printf("    out: %s\n", truncate(e.Result, 100))
	}
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func cmdConfigShow(cfg *config.Config) {
	data, err := cfg.YAML()
	if err != nil {
		fatal("%s", err)
	}
	fmt.Print(string(data))
}

func cmdPresets() {
	names, err := config.ListPromptPresets()
	if err != nil {
		fatal("list presets: %s", err)
	}
	if len(names) == 0 {
		fmt.Println("no prompt presets saved")
		dir, err := config.GetPromptsDir()
		if err == nil {
			fmt.Printf("drop .yaml files into %s to add some\n", dir)
		}
		return
	}
	for _, name := range names {
		p, err := config.LoadPromptPreset(name)
		if err != nil {
			fmt.Printf("  %-20s (unreadable: %s)\n", name, err)
			continue
		}
		desc := p.Description
		if desc == "" {
			desc = truncate(p.Prompt, 60)
		}
		fmt.Printf("  %-20s %s\n", name, desc)
	}
}
