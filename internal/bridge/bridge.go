// Package bridge routes workspace messages. Bang commands drive the
// project workflow; everything else typed in a bound or adopted thread
// is fed into that thread's assistant session, and the session's
// response is posted back.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/akd-tools/sdd-bridge/internal/metrics"
	"github.com/akd-tools/sdd-bridge/internal/provision"
	"github.com/akd-tools/sdd-bridge/internal/registry"
	"github.com/akd-tools/sdd-bridge/internal/session"
	"github.com/akd-tools/sdd-bridge/internal/slack"
	"github.com/akd-tools/sdd-bridge/internal/workflow"
)

// Engine is the workflow surface the bridge drives.
type Engine interface {
	StartProject(ctx context.Context, name, description string) (workflow.AdvanceResult, error)
	Advance(ctx context.Context, contextID string) (workflow.AdvanceResult, error)
	Adopt(contextID, project string) (workflow.Stage, error)
	Status() (map[string]workflow.Stage, error)
	WorkDir(contextID string) (string, error)
}

// SessionManager is the session surface the bridge drives.
type SessionManager interface {
	Ensure(ctx context.Context, contextID, dir string) (int, bool, error)
	Deliver(contextID, text string) error
	Capture(contextID string) (string, error)
	CollectResponse(ctx context.Context, contextID, before string) (string, error)
	Kill(contextID string) error
	List() ([]session.Status, error)
}

// Notifier posts replies back into the workspace.
type Notifier interface {
	Send(ctx context.Context, channelID, threadTS, text string) error
}

// Bridge implements the message router.
type Bridge struct {
	engine   Engine
	sessions SessionManager
	notify   Notifier
	policy   AccessPolicy
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// New creates a bridge.
func New(engine Engine, sessions SessionManager, notify Notifier, policy AccessPolicy, m *metrics.Metrics, logger zerolog.Logger) *Bridge {
	if policy == nil {
		policy = AllowAll()
	}
	return &Bridge{
		engine:   engine,
		sessions: sessions,
		notify:   notify,
		policy:   policy,
		metrics:  m,
		logger:   logger.With().Str("component", "bridge").Logger(),
	}
}

// threadOf picks the conversation thread a message belongs to. A
// message outside a thread starts one rooted at itself.
func threadOf(threadTS, messageTS string) string {
	if threadTS != "" {
		return threadTS
	}
	return messageTS
}

// HandleMessage routes one inbound message.
func (b *Bridge) HandleMessage(ctx context.Context, channelID, userID, text, threadTS, messageTS string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if !b.policy.Allowed(userID) {
		b.logger.Warn().Str("user", userID).Str("channel", channelID).Msg("message from unauthorized user dropped")
		return
	}

	thread := threadOf(threadTS, messageTS)
	contextID := workflow.ContextID(channelID, thread)

	if cmd, ok := slack.ParseCommand(text); ok {
		b.handleCommand(ctx, cmd, channelID, thread, contextID)
		return
	}

	// a bare message outside any thread is ambient channel chatter
	if threadTS == "" {
		return
	}
	b.routeToSession(ctx, channelID, thread, contextID, text)
}

func (b *Bridge) handleCommand(ctx context.Context, cmd slack.Command, channelID, thread, contextID string) {
	switch cmd.Name {
	case "idea":
		if len(cmd.Args) == 0 {
			b.reply(ctx, channelID, thread, "usage: !idea <name> <description>")
			return
		}
		res, err := b.engine.StartProject(ctx, cmd.Args[0], cmd.Rest)
		if err != nil {
			b.replyErr(ctx, channelID, thread, "could not start project", err)
			return
		}
		b.reply(ctx, channelID, thread, fmt.Sprintf("project %s started, follow along in its %s thread", res.Project, workflow.StageIdea.Channel()))

	case "complete":
		start := time.Now()
		res, err := b.engine.Advance(ctx, contextID)
		if b.metrics != nil {
			b.metrics.AdvanceDuration.Observe(time.Since(start).Seconds())
		}
		if err != nil {
			if b.metrics != nil {
				b.metrics.StageAdvances.WithLabelValues("", "error").Inc()
				if errors.Is(err, provision.ErrWorkspaceExists) {
					b.metrics.ProvisionsTotal.WithLabelValues("conflict").Inc()
				}
			}
			b.replyErr(ctx, channelID, thread, "could not complete this stage", err)
			return
		}
		if b.metrics != nil {
			b.metrics.StageAdvances.WithLabelValues(string(res.To), "ok").Inc()
			b.metrics.GitOutcomes.WithLabelValues(gitOutcomeLabel(res)).Inc()
			if res.Provisioning != nil {
				b.metrics.ProvisionsTotal.WithLabelValues("ok").Inc()
			}
		}
		b.reply(ctx, channelID, thread, formatAdvance(res))

	case "status":
		status, err := b.engine.Status()
		if err != nil {
			b.replyErr(ctx, channelID, thread, "could not read project status", err)
			return
		}
		b.reply(ctx, channelID, thread, formatStatus(status))

	case "sessions":
		list, err := b.sessions.List()
		if err != nil {
			b.replyErr(ctx, channelID, thread, "could not list sessions", err)
			return
		}
		b.reply(ctx, channelID, thread, formatSessions(list))

	case "kill":
		if err := b.sessions.Kill(contextID); err != nil {
			b.replyErr(ctx, channelID, thread, "could not kill session", err)
			return
		}
		if b.metrics != nil {
			b.metrics.SessionsKilled.Inc()
		}
		b.reply(ctx, channelID, thread, "session closed")

	case "join":
		if len(cmd.Args) != 1 {
			b.reply(ctx, channelID, thread, "usage: !join <project>")
			return
		}
		stage, err := b.engine.Adopt(contextID, cmd.Args[0])
		if err != nil {
			b.replyErr(ctx, channelID, thread, "could not join project", err)
			return
		}
		b.reply(ctx, channelID, thread, fmt.Sprintf("thread joined to %s (stage %s)", cmd.Args[0], stage))

	default:
		b.reply(ctx, channelID, thread, fmt.Sprintf("unknown command !%s", cmd.Name))
	}
}

// routeToSession feeds text into the thread's session, spawning one on
// first contact, and posts the session's response back when it settles.
func (b *Bridge) routeToSession(ctx context.Context, channelID, thread, contextID, text string) {
	before, err := b.sessions.Capture(contextID)
	if errors.Is(err, registry.ErrNotFound) {
		// an adopted or restarted thread has a binding but no live
		// session; spawn it in the project's working directory
		dir := ""
		if d, derr := b.engine.WorkDir(contextID); derr == nil {
			dir = d
		}
		if _, created, eerr := b.sessions.Ensure(ctx, contextID, dir); eerr != nil {
			b.routed("error")
			b.replyErr(ctx, channelID, thread, "could not start a session for this thread", eerr)
			return
		} else if created && b.metrics != nil {
			b.metrics.SessionsStarted.Inc()
		}
		before, err = b.sessions.Capture(contextID)
	}
	if err != nil {
		b.routed("error")
		b.logger.Error().Err(err).Str("context", contextID).Msg("failed to snapshot session")
		return
	}

	if err := b.sessions.Deliver(contextID, text); err != nil {
		b.routed("error")
		b.replyErr(ctx, channelID, thread, "could not reach the session", err)
		return
	}
	b.routed("ok")

	go func() {
		resp, err := b.sessions.CollectResponse(context.Background(), contextID, before)
		if err != nil {
			b.logger.Warn().Err(err).Str("context", contextID).Msg("failed to collect session response")
		}
		if resp == "" {
			return
		}
		if err := b.notify.Send(context.Background(), channelID, thread, clip(resp)); err != nil {
			b.logger.Error().Err(err).Str("context", contextID).Msg("failed to post session response")
		}
	}()
}

func (b *Bridge) routed(result string) {
	if b.metrics != nil {
		b.metrics.MessagesRouted.WithLabelValues(result).Inc()
	}
}

func (b *Bridge) reply(ctx context.Context, channelID, thread, text string) {
	if err := b.notify.Send(ctx, channelID, thread, text); err != nil {
		b.logger.Error().Err(err).Str("channel", channelID).Msg("failed to reply")
	}
}

func (b *Bridge) replyErr(ctx context.Context, channelID, thread, msg string, err error) {
	b.logger.Error().Err(err).Str("channel", channelID).Msg(msg)
	b.reply(ctx, channelID, thread, fmt.Sprintf(":x: %s: %v", msg, err))
}

func gitOutcomeLabel(res workflow.AdvanceResult) string {
	if res.Git.Halt != "" {
		return string(res.Git.Halt)
	}
	return "pushed"
}

func formatAdvance(res workflow.AdvanceResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, ":white_check_mark: %s completed the %s phase, next up: %s", res.Project, res.From, res.To.Channel())
	switch {
	case !res.Git.Committed:
		sb.WriteString("\n(no changes to record for this phase)")
	case !res.Git.Pushed:
		fmt.Fprintf(&sb, "\n:warning: the phase commit could not be pushed: %s", res.Git.Diagnostic)
	}
	if res.Provisioning != nil {
		fmt.Fprintf(&sb, "\nworkspace: %s\nrepository: %s", res.Provisioning.Dir, res.Provisioning.RepoURL)
		if !res.Provisioning.Pushed {
			fmt.Fprintf(&sb, "\n:warning: the initial push failed, the workspace is local only: %s", res.Provisioning.PushDiagnostic)
		}
	}
	return sb.String()
}

func formatStatus(status map[string]workflow.Stage) string {
	if len(status) == 0 {
		return "no projects yet"
	}
	names := make([]string, 0, len(status))
	for name := range status {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("projects:")
	for _, name := range names {
		fmt.Fprintf(&sb, "\n• %s: %s", name, status[name])
	}
	return sb.String()
}

func formatSessions(list []session.Status) string {
	if len(list) == 0 {
		return "no sessions"
	}
	var sb strings.Builder
	sb.WriteString("sessions:")
	for _, s := range list {
		state := "alive"
		if !s.Alive {
			state = "dead"
		}
		fmt.Fprintf(&sb, "\n• %s (%s, %s)", s.Name, s.ContextID, state)
	}
	return sb.String()
}

func clip(s string) string {
	const max = 3500
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n…(truncated)"
}
