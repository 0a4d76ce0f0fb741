package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/retailbot/support-widget/internal/config"
	"github.com/retailbot/support-widget/internal/logging"
	"github.com/retailbot/support-widget/internal/model/assistant"
	"github.com/retailbot/support-widget/internal/model/chat"
	"github.com/retailbot/support-widget/internal/service/engine"
	"github.com/retailbot/support-widget/internal/service/fallback"
	"github.com/retailbot/support-widget/internal/service/notify"
)

type options struct {
	noDelay     bool
	useFallback bool
	verbose     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "chatrepl",
		Short: "Talk to the support assistant from a terminal",
		Long: `Runs a single support session against stdin and stdout.

Commands inside the session:
  /reset  start a new conversation
  /quit   leave`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&opts.noDelay, "no-delay", false, "reply immediately instead of simulating typing")
	cmd.Flags().BoolVar(&opts.useFallback, "fallback", false, "use the configured generative fallback provider")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log engine activity to stderr")
	return cmd
}

func run(ctx context.Context, opts options, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logCfg := cfg.Log
	if !opts.verbose {
		logCfg.Level = "error"
	}
	logger := logging.NewWithOutput(logCfg, os.Stderr)
	profile := assistant.Default()

	var responder fallback.Responder
	if opts.useFallback {
		responder, err = fallback.NewFromConfig(ctx, cfg.Fallback, profile, cfg.Engine.HistoryLimit, logging.Component(logger, "fallback"))
		if err != nil {
			return err
		}
		if responder == nil {
			return fmt.Errorf("--fallback requires FALLBACK_PROVIDER to be set")
		}
	}

	engineOpts := engine.Options{
		Responder:       responder,
		ThinkingDelay:   cfg.Engine.ThinkingDelay,
		ThinkingJitter:  cfg.Engine.ThinkingJitter,
		EscalationDelay: cfg.Engine.EscalationDelay,
		FallbackTimeout: cfg.Fallback.Timeout,
		HistoryLimit:    cfg.Engine.HistoryLimit,
		Notifier:        notify.NewLogNotifier(logging.Component(logger, "notify")),
		Profile:         profile,
		Logger:          logging.Component(logger, "engine"),
	}
	if opts.noDelay {
		engineOpts.ThinkingDelay = 0
		engineOpts.ThinkingJitter = 0
		engineOpts.EscalationDelay = 0
	}

	return newSession(engine.New(engineOpts), profile, newStyles(), out).loop(in)
}

type session struct {
	engine  *engine.Engine
	profile assistant.Profile
	styles  styles
	out     io.Writer
	settled chan chat.State
}

func newSession(eng *engine.Engine, profile assistant.Profile, st styles, out io.Writer) *session {
	return &session{
		engine:  eng,
		profile: profile,
		styles:  st,
		out:     out,
		settled: make(chan chat.State, 4),
	}
}

func (s *session) loop(in io.Reader) error {
	defer s.engine.Close()

	snapshot, unsubscribe := s.engine.Subscribe(s.onEvent)
	defer unsubscribe()
	s.printSnapshot(snapshot)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, s.styles.user.Render("> "))
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}

		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			if !s.engine.Reset() {
				fmt.Fprintln(s.out, s.styles.hint.Render("Please wait for the current reply before starting over."))
			}
			continue
		}

		if !s.engine.Submit(text) {
			fmt.Fprintln(s.out, s.styles.hint.Render("The assistant is not taking messages right now. Type /reset to start over."))
			continue
		}
		if state := s.waitSettled(); state == chat.StateEscalated {
			fmt.Fprintln(s.out, s.styles.hint.Render("You are now connected to the agent queue. Type /reset to start over or /quit to leave."))
		}
	}
}

// waitSettled blocks until the engine is ready for input or has handed off.
func (s *session) waitSettled() chat.State {
	for {
		state := <-s.settled
		if state == chat.StateIdle || state == chat.StateEscalated {
			return state
		}
	}
}

func (s *session) onEvent(ev engine.Event) {
	switch ev.Type {
	case engine.EventMessage:
		if !ev.Message.IsUser() {
			fmt.Fprint(s.out, s.styles.formatMessage(s.profile.Name, *ev.Message))
		}
	case engine.EventState:
		if ev.State != chat.StateIdle {
			fmt.Fprintln(s.out, s.styles.formatStatus(ev.State))
		}
		select {
		case s.settled <- ev.State:
		default:
		}
	case engine.EventReset:
		s.printSnapshot(*ev.Snapshot)
	}
}

func (s *session) printSnapshot(snapshot engine.Snapshot) {
	fmt.Fprintln(s.out, s.styles.status.Render(fmt.Sprintf("%s • %s • %s", s.profile.Title, snapshot.State.Status(), time.Now().Format("15:04"))))
	for _, msg := range snapshot.Messages {
		fmt.Fprint(s.out, s.styles.formatMessage(s.profile.Name, msg))
	}
}
