package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/dukex/flowscribe/pkg/conversation"
	"github.com/dukex/flowscribe/pkg/docdiff"
	"github.com/dukex/flowscribe/pkg/events"
	"github.com/dukex/flowscribe/pkg/models"
	"github.com/urfave/cli/v3"
)

const sessionHelp = `Type a message to chat about the current document, or a command:
  /select <id>        load a workflow into both panels
  /list               list workflows
  /panel explain|docs switch panel
  /generate           generate the document for the current panel
  /audience <value>   engineer, manager, newbie
  /mode <value>       explanation, weak_points, executions_summary, q&a_only
  /doctype <value>    basic_tech_doc, extended_tech_doc, ops_runbook, qa_checklist
  /model <id>         model for this session
  /show               print the document
  /history            print the chat transcript
  /edit               replace the document; end input with a single "."
  /quit               leave`

var errUnknownCommand = errors.New("unknown command, type /help")

// lockedWriter serializes writes from the prompt loop and event handlers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.w.Write(p)
}

type session struct {
	app         *app
	out         io.Writer
	in          *bufio.Scanner
	verbose     bool
	showDiff    bool
	panel       models.Panel
	controllers map[models.Panel]*conversation.Controller
}

func sessionCommand() *cli.Command {
	return &cli.Command{
		Name:      "session",
		Usage:     "Interactive explain/document/chat loop",
		ArgsUsage: "[workflow-id]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "panel",
				Usage: "Starting panel (explain, docs)",
				Value: string(models.PanelExplain),
			},
			&cli.BoolFlag{
				Name:  "diff",
				Usage: "Print a line diff whenever a chat reply changes the document",
			},
		},
		Action: withApp(runSession),
	}
}

func runSession(ctx context.Context, command *cli.Command, a *app) error {
	panel, err := models.ParsePanel(command.String("panel"))
	if err != nil {
		return err
	}

	reader := command.Root().Reader
	if reader == nil {
		reader = os.Stdin
	}

	s := &session{
		app:         a,
		out:         &lockedWriter{w: a.out},
		in:          bufio.NewScanner(reader),
		verbose:     command.Bool("verbose"),
		showDiff:    command.Bool("diff"),
		panel:       panel,
		controllers: map[models.Panel]*conversation.Controller{},
	}

	for _, p := range []models.Panel{models.PanelExplain, models.PanelDocs} {
		controller, err := a.controller(p, conversation.DefaultOptions())
		if err != nil {
			return err
		}

		s.controllers[p] = controller
	}

	if err := s.subscribe(ctx); err != nil {
		return err
	}

	if id := command.Args().First(); id != "" {
		s.report(s.selectWorkflow(ctx, id))
	}

	return s.loop(ctx)
}

func (s *session) subscribe(ctx context.Context) error {
	handlers := map[events.EventType]func(any){
		events.DocumentReplacedEvent: func(event any) {
			replaced := event.(*events.DocumentReplaced)
			if replaced.Source == events.SourceUserEdit {
				return
			}

			s.printf("(%s document: +%d -%d lines)\n", replaced.Panel, replaced.Diff.Added, replaced.Diff.Removed)
		},
		events.ResultDiscardedEvent: func(event any) {
			discarded := event.(*events.ResultDiscarded)
			s.printf("(discarded a late %s reply for %s)\n", discarded.Action, discarded.WorkflowID)
		},
	}

	for eventType, handle := range handlers {
		err := s.app.bus.Handle(eventType, func(_ context.Context, event any) error {
			handle(event)

			return nil
		})
		if err != nil {
			return err
		}
	}

	return s.app.bus.Subscribe(ctx)
}

func (s *session) loop(ctx context.Context) error {
	s.printf("%s\n", sessionHelp)

	for ctx.Err() == nil {
		s.printf("%s> ", s.panel)

		if !s.in.Scan() {
			return s.in.Err()
		}

		line := strings.TrimSpace(s.in.Text())
		if line == "" {
			continue
		}

		quit, err := s.handle(ctx, line)
		s.report(err)

		if quit {
			return nil
		}
	}

	return nil
}

func (s *session) handle(ctx context.Context, line string) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		return false, s.chat(ctx, line)
	}

	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)
	controller := s.controllers[s.panel]

	switch name {
	case "quit", "exit":
		return true, nil
	case "help":
		s.printf("%s\n", sessionHelp)
	case "panel":
		panel, err := models.ParsePanel(arg)
		if err != nil {
			return false, err
		}

		s.panel = panel
	case "select":
		return false, s.selectWorkflow(ctx, arg)
	case "list":
		return false, s.list(ctx)
	case "generate":
		if err := controller.Generate(ctx); err != nil {
			return false, err
		}

		s.printf("%s\n", controller.Document())
	case "audience", "mode", "doctype", "model":
		return false, s.setOption(controller, name, arg)
	case "show":
		s.printf("%s\n", controller.Document())
	case "history":
		for _, message := range controller.Transcript() {
			s.printf("[%s] %s\n", message.Role, message.Content)
		}
	case "edit":
		return false, controller.EditDocument(ctx, s.readBlock())
	default:
		return false, errUnknownCommand
	}

	return false, nil
}

func (s *session) chat(ctx context.Context, input string) error {
	controller := s.controllers[s.panel]
	before := controller.Document()

	if err := controller.SendChat(ctx, input); err != nil {
		return err
	}

	transcript := controller.Transcript()
	s.printf("%s\n", transcript[len(transcript)-1].Content)

	if s.showDiff {
		if diff := docdiff.Compute(before, controller.Document()); diff.Changed() {
			s.printf("%s", diff.Render(2))
		}
	}

	return nil
}

func (s *session) selectWorkflow(ctx context.Context, id string) error {
	if id == "" {
		return errNoWorkflow
	}

	// Both panels follow the selection even when one fetch fails.
	var errs []error
	for _, panel := range []models.Panel{models.PanelExplain, models.PanelDocs} {
		errs = append(errs, s.controllers[panel].Select(ctx, id))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	_, name := s.controllers[s.panel].Selection()
	s.printf("selected %s (%s)\n", id, name)

	return nil
}

func (s *session) list(ctx context.Context) error {
	client, err := s.app.catalog()
	if err != nil {
		return err
	}

	summaries, err := client.ListDefinitions(ctx)
	if err != nil {
		return err
	}

	printSummaries(s.out, summaries)

	return nil
}

func (s *session) setOption(controller *conversation.Controller, name, value string) error {
	options := controller.Options()

	var err error

	switch name {
	case "audience":
		options.Audience, err = models.ParseAudience(value)
	case "mode":
		options.Mode, err = models.ParseMode(value)
	case "doctype":
		options.DocType, err = models.ParseDocType(value)
	case "model":
		options.Model = value
	}

	if err != nil {
		return err
	}

	controller.SetOptions(options)
	s.printf("%s set to %s\n", name, value)

	return nil
}

// readBlock reads lines up to a line holding a single ".".
func (s *session) readBlock() string {
	var lines []string

	for s.in.Scan() {
		line := s.in.Text()
		if line == "." {
			break
		}

		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

func (s *session) report(err error) {
	if err != nil {
		reportError(s.out, err, s.verbose)
	}
}

func (s *session) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format, args...)
}
