package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dukex/flowscribe/pkg/credentials"
	"github.com/dukex/flowscribe/pkg/models"
	"github.com/urfave/cli/v3"
)

var errNoModel = errors.New("a model id is required")

func modelsCommand() *cli.Command {
	return &cli.Command{
		Name:   "models",
		Usage:  "List known models, marking the selected one",
		Action: withApp(listModels),
		Commands: []*cli.Command{
			{
				Name:      "select",
				Usage:     "Store the model used with the validated key",
				ArgsUsage: "<model-id>",
				Action:    withApp(selectModel),
			},
		},
	}
}

func currentModel(ctx context.Context, a *app) string {
	if model, ok := a.store.Get(ctx, credentials.KeyOpenRouterModel); ok && model != "" {
		return model
	}

	return models.DefaultModel
}

func listModels(ctx context.Context, _ *cli.Command, a *app) error {
	current := currentModel(ctx, a)

	table := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(table, "\tID\tNAME\tPROVIDER")

	for _, model := range models.KnownModels {
		marker := ""
		if model.ID == current {
			marker = "*"
		}

		_, _ = fmt.Fprintf(table, "%s\t%s\t%s\t%s\n", marker, model.ID, model.Label, model.Provider)
	}

	if _, known := models.FindModel(current); !known {
		_, _ = fmt.Fprintf(table, "*\t%s\t(custom)\t\n", current)
	}

	return table.Flush()
}

func selectModel(ctx context.Context, command *cli.Command, a *app) error {
	id := strings.TrimSpace(command.Args().First())
	if id == "" {
		return errNoModel
	}

	service, err := a.settings()
	if err != nil {
		return err
	}

	if err := service.SelectModel(ctx, id); err != nil {
		return fmt.Errorf("failed to store model: %w", err)
	}

	if _, known := models.FindModel(id); !known {
		_, _ = fmt.Fprintf(a.out, "%s is not a known model; stored anyway\n", id)

		return nil
	}

	_, _ = fmt.Fprintf(a.out, "model set to %s\n", id)

	return nil
}
