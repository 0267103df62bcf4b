package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dukex/flowscribe/pkg/catalog"
	"github.com/dukex/flowscribe/pkg/events"
	"github.com/dukex/flowscribe/pkg/models"
	"github.com/urfave/cli/v3"
)

func workflowsCommand() *cli.Command {
	return &cli.Command{
		Name:    "workflows",
		Aliases: []string{"wf"},
		Usage:   "Browse the workflow catalog",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List the workflows eligible for explanation",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "Keep re-listing on the refresh schedule until interrupted",
					},
				},
				Action: withApp(listWorkflows),
			},
		},
	}
}

func listWorkflows(ctx context.Context, command *cli.Command, a *app) error {
	client, err := a.catalog()
	if err != nil {
		return err
	}

	if !command.Bool("watch") {
		summaries, err := client.ListDefinitions(ctx)
		if err != nil {
			return err
		}

		printSummaries(a.out, summaries)

		return nil
	}

	schedule := a.config.Catalog.RefreshSchedule
	if schedule == "" {
		schedule = "@every 1m"
	}

	refresher, err := catalog.NewRefresher(client, schedule, a.logger)
	if err != nil {
		return err
	}

	refresher.OnChange(func(summaries []models.WorkflowSummary) {
		printSummaries(a.out, summaries)

		_ = a.bus.Publish(ctx, "", events.CatalogRefreshed{
			BaseEvent: events.NewBaseEvent(events.CatalogRefreshedEvent, "", ""),
			Count:     len(summaries),
		})
	})

	if err := refresher.Start(ctx); err != nil {
		return err
	}
	defer refresher.Stop()

	<-ctx.Done()

	return nil
}

func printSummaries(w io.Writer, summaries []models.WorkflowSummary) {
	if len(summaries) == 0 {
		_, _ = fmt.Fprintln(w, "No workflows found. Tag a workflow to make it eligible.")

		return
	}

	table := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(table, "ID\tNAME\tACTIVE")

	for _, summary := range summaries {
		_, _ = fmt.Fprintf(table, "%s\t%s\t%t\n", summary.ID, summary.Name, summary.Active)
	}

	_ = table.Flush()
}
