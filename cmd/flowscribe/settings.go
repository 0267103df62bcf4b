package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dukex/flowscribe/pkg/settings"
	"github.com/urfave/cli/v3"
)

func settingsCommand() *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Show or update stored credentials",
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show stored settings with keys masked",
				Action: withApp(showSettings),
			},
			{
				Name:  "set",
				Usage: "Validate and store credentials; only pairs that validate are saved",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "n8n-url", Usage: "n8n base URL"},
					&cli.StringFlag{Name: "n8n-api-key", Usage: "n8n API key"},
					&cli.StringFlag{Name: "openrouter-key", Usage: "OpenRouter API key"},
					&cli.StringFlag{Name: "model", Usage: "Model identifier validated with the key"},
				},
				Action: withApp(setSettings),
			},
		},
	}
}

func showSettings(ctx context.Context, _ *cli.Command, a *app) error {
	service, err := a.settings()
	if err != nil {
		return err
	}

	view := service.Load(ctx)

	printField(a.out, "n8n base URL", view.N8nBaseURL)
	printField(a.out, "n8n API key", view.N8nAPIKey)
	_, _ = fmt.Fprintf(a.out, "%-16s %t\n", "n8n validated", view.N8nValid)
	printField(a.out, "OpenRouter key", view.LLMKey)
	printField(a.out, "model", view.LLMModel)
	_, _ = fmt.Fprintf(a.out, "%-16s %t\n", "LLM validated", view.LLMValid)
	_, _ = fmt.Fprintf(a.out, "%-16s %s\n", "key mode", a.config.KeyMode())

	return nil
}

func setSettings(ctx context.Context, command *cli.Command, a *app) error {
	service, err := a.settings()
	if err != nil {
		return err
	}

	candidates := settings.Candidates{}

	for flag, field := range map[string]*settings.Field{
		"n8n-url":        &candidates.N8nBaseURL,
		"n8n-api-key":    &candidates.N8nAPIKey,
		"openrouter-key": &candidates.LLMKey,
		"model":          &candidates.LLMModel,
	} {
		if command.IsSet(flag) {
			*field = settings.Edit(command.String(flag))
		}
	}

	report, err := service.Save(ctx, candidates)
	if err != nil {
		return fmt.Errorf("failed to store settings: %w", err)
	}

	if !report.Attempted() {
		_, _ = fmt.Fprintln(a.out, "nothing to validate")
	}

	printOutcome(a.out, "n8n", report.Automation)
	printOutcome(a.out, "OpenRouter", report.LLM)

	return nil
}

func printField(w io.Writer, label string, field settings.Field) {
	value := field.Value
	if value == "" {
		value = "(not set)"
	}

	_, _ = fmt.Fprintf(w, "%-16s %s\n", label, value)
}

func printOutcome(w io.Writer, label string, outcome settings.Outcome) {
	switch {
	case outcome.Status == settings.StatusNotAttempted:
		return
	case outcome.Valid():
		_, _ = fmt.Fprintf(w, "%s: valid, saved\n", label)
	default:
		_, _ = fmt.Fprintf(w, "%s: %s (%s), previous values kept\n", label, outcome.Error, outcome.Status)
	}
}
