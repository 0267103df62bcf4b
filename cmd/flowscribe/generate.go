package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/flowscribe/pkg/conversation"
	"github.com/dukex/flowscribe/pkg/models"
	"github.com/urfave/cli/v3"
)

var errNoWorkflow = errors.New("a workflow id is required")

func generateCommand(panel models.Panel) *cli.Command {
	command := &cli.Command{
		ArgsUsage: "<workflow-id>",
		Flags:     optionFlags(panel),
		Action: withApp(func(ctx context.Context, command *cli.Command, a *app) error {
			return generate(ctx, command, a, panel)
		}),
	}

	if panel == models.PanelDocs {
		command.Name = "docs"
		command.Usage = "Generate documentation for a workflow"
	} else {
		command.Name = "explain"
		command.Usage = "Explain a workflow"
	}

	return command
}

func optionFlags(panel models.Panel) []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:  "model",
			Usage: "Model identifier; defaults to the stored model",
		},
	}

	if panel == models.PanelDocs {
		return append(flags, &cli.StringFlag{
			Name:    "doc-type",
			Aliases: []string{"t"},
			Usage:   "Documentation type (basic_tech_doc, extended_tech_doc, ops_runbook, qa_checklist)",
			Value:   models.DocTypeBasicTech.Wire(),
		})
	}

	return append(flags,
		&cli.StringFlag{
			Name:    "audience",
			Aliases: []string{"a"},
			Usage:   "Audience (engineer, manager, newbie)",
			Value:   models.AudienceEngineer.Wire(),
		},
		&cli.StringFlag{
			Name:    "mode",
			Aliases: []string{"m"},
			Usage:   "Mode (explanation, weak_points, executions_summary, q&a_only)",
			Value:   models.ModeExplanation.Wire(),
		},
	)
}

// parseOptions reads the option flags of command.
func parseOptions(command *cli.Command, panel models.Panel) (conversation.Options, error) {
	options := conversation.DefaultOptions()
	options.Model = strings.TrimSpace(command.String("model"))

	var err error

	if panel == models.PanelDocs {
		options.DocType, err = models.ParseDocType(command.String("doc-type"))

		return options, err
	}

	options.Audience, err = models.ParseAudience(command.String("audience"))
	if err != nil {
		return options, err
	}

	options.Mode, err = models.ParseMode(command.String("mode"))

	return options, err
}

func generate(ctx context.Context, command *cli.Command, a *app, panel models.Panel) error {
	id := strings.TrimSpace(command.Args().First())
	if id == "" {
		return errNoWorkflow
	}

	options, err := parseOptions(command, panel)
	if err != nil {
		return err
	}

	controller, err := a.controller(panel, options)
	if err != nil {
		return err
	}

	if err := controller.Select(ctx, id); err != nil {
		return fmt.Errorf("failed to load workflow %s: %w", id, err)
	}

	if err := controller.Generate(ctx); err != nil {
		return err
	}

	_, _ = fmt.Fprintln(a.out, controller.Document())

	for _, message := range controller.Transcript() {
		_, _ = fmt.Fprintf(a.out, "\n[%s] %s\n", message.Role, message.Content)
	}

	return nil
}
