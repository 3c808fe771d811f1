// Package heartbeat runs the autonomous tick loop: on each interval it
// scans KB-08 inboxes for waiting agents, auto-replies to the oldest
// queued message (or, absent one, runs a background task from the
// Pneuma background-task key), and logs a Chronos reflection event.
package heartbeat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pagi/internal/logging"
	"pagi/internal/store"
)

var log = logging.Get(logging.CategoryHeartbeat)

// DefaultTickInterval avoids slamming any downstream LLM API.
const DefaultTickInterval = 5 * time.Second

// Responder generates a reply for an inbox message or background task.
// The kernel wires this to its LLM collaborator; tests can stub it.
type Responder interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Service runs the tick loop against a knowledge store.
type Service struct {
	st       *store.Store
	resp     Responder
	interval time.Duration
}

func NewService(st *store.Store, resp Responder, interval time.Duration) *Service {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Service{st: st, resp: resp, interval: interval}
}

// Run blocks until ctx is cancelled, ticking at s.interval.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	log.Infof("heartbeat started, tick interval %s", s.interval)

	for {
		select {
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				log.Warnf("daemon tick failed: %v", err)
			}
		case <-ctx.Done():
			log.Infof("heartbeat shutting down: %v", ctx.Err())
			return
		}
	}
}

// Tick runs a single pass over every agent that has at least one inbox/
// key in KB-08. An agent with only a background task and no inbox key is
// not visited.
func (s *Service) Tick(ctx context.Context) error {
	agentIDs, err := s.st.ListInboxAgentIDs()
	if err != nil {
		return fmt.Errorf("list inbox agents: %w", err)
	}

	for _, agentID := range agentIDs {
		if err := s.tickAgent(ctx, agentID); err != nil {
			log.Warnf("tick for agent %s failed: %v", agentID, err)
		}
	}
	return nil
}

func (s *Service) tickAgent(ctx context.Context, agentID string) error {
	messages, err := s.st.GetAgentMessages(agentID, 1)
	if err != nil {
		return fmt.Errorf("get agent messages: %w", err)
	}

	if len(messages) > 0 {
		msg := messages[0]
		prompt := fmt.Sprintf(
			"You are agent_id=%s. You have a new inbox message. Message payload: %s\n\nRespond appropriately.",
			agentID, msg.Body)
		generated, genErr := s.generate(ctx, prompt)
		if genErr != nil {
			generated = fmt.Sprintf("[heartbeat] generation failed: %v", genErr)
		}
		if err := s.st.PushAgentMessage(agentID, uuid.NewString(), time.Now().UnixMilli(), generated); err != nil {
			return fmt.Errorf("push reply: %w", err)
		}
		rec := store.NewEventRecord(time.Now().UnixMilli(), "heartbeat", "auto-replied to inbox message").WithOutcome("auto_reply_sent")
		return s.st.AppendChronosEvent(rec)
	}

	task, ok := s.st.GetBackgroundTask(agentID)
	if !ok || task == "" {
		return nil
	}
	prompt := fmt.Sprintf("You are agent_id=%s. Background task: %s\n\nProvide a short status update.", agentID, task)
	generated, genErr := s.generate(ctx, prompt)
	if genErr != nil {
		return fmt.Errorf("generate background update: %w", genErr)
	}
	rec := store.NewEventRecord(time.Now().UnixMilli(), "heartbeat", "background task update: "+generated).WithOutcome("background_task_ticked")
	return s.st.AppendChronosEvent(rec)
}

func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	if s.resp == nil {
		return "", fmt.Errorf("no responder configured")
	}
	return s.resp.Generate(ctx, prompt)
}
