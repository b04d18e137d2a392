package notification

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"txwizard/domain/wizard"
	"txwizard/infrastructure/messaging"
)

// Notifier delivers a message to the owner of a wizard (email, push, chat).
type Notifier interface {
	SendMessage(ctx context.Context, recipient, message string) error
}

// Subscriber is the consuming side of the message bus.
type Subscriber interface {
	Subscribe(routingKey string, handler messaging.EventHandler) error
}

// DedupCapacity is how many recent event ids are remembered for
// redelivery checks. Older ids are evicted least recently used first.
const DedupCapacity = 10000

// Service tells users how their submissions ended.
type Service struct {
	notifier  Notifier
	logger    *zap.Logger
	processed *lru.Cache[string, struct{}]
}

func NewService(notifier Notifier, logger *zap.Logger) *Service {
	return newService(notifier, logger, DedupCapacity)
}

func newService(notifier Notifier, logger *zap.Logger, capacity int) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if capacity <= 0 {
		capacity = DedupCapacity
	}
	// lru.New only fails for a non-positive size.
	processed, _ := lru.New[string, struct{}](capacity)
	return &Service{
		notifier:  notifier,
		logger:    logger.Named("notification"),
		processed: processed,
	}
}

// Start subscribes to submission outcomes on the bus.
func (s *Service) Start(bus Subscriber) error {
	for _, t := range []wizard.EventType{wizard.EventSubmissionSucceeded, wizard.EventSubmissionFailed} {
		if err := bus.Subscribe(string(t), s.handleMessage); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", t, err)
		}
	}
	s.logger.Info("notification service started, listening for events")
	return nil
}

func (s *Service) handleMessage(ctx context.Context, body []byte) error {
	ev, err := messaging.Decode(body)
	if err != nil {
		// A malformed message will not improve on redelivery.
		s.logger.Error("dropping undecodable message", zap.Error(err))
		return nil
	}
	return s.HandleEvent(ctx, ev)
}

// HandleEvent notifies on submission outcomes and ignores other events.
// Redelivered events are skipped by event id.
func (s *Service) HandleEvent(ctx context.Context, ev wizard.Event) error {
	var message string
	switch ev.Type {
	case wizard.EventSubmissionSucceeded:
		message = succeededMessage(ev)
	case wizard.EventSubmissionFailed:
		message = failedMessage(ev)
	default:
		return nil
	}

	if s.processed.Contains(ev.EventID) {
		s.logger.Debug("event already processed, skipping notification", zap.String("event_id", ev.EventID))
		return nil
	}

	if err := s.notifier.SendMessage(ctx, ev.WizardID, message); err != nil {
		s.logger.Warn("failed to send notification", zap.String("wizard_id", ev.WizardID), zap.Error(err))
		return fmt.Errorf("failed to send notification: %w", err)
	}

	s.processed.Add(ev.EventID, struct{}{})
	s.logger.Info("notification sent", zap.String("wizard_id", ev.WizardID), zap.String("event_type", string(ev.Type)))
	return nil
}

func succeededMessage(ev wizard.Event) string {
	msg := fmt.Sprintf("Submission completed\n\nFlow: %s\nWizard: %s", ev.Flow, ev.WizardID)
	r := ev.State.Receipt
	if r == nil {
		return msg
	}
	msg += "\nReference: " + r.Reference
	if d := r.Derived; d.Available {
		msg += fmt.Sprintf("\nTotal: %s %s", d.Total.String(), d.TotalUnit)
	}
	return msg
}

func failedMessage(ev wizard.Event) string {
	f := ev.State.Failure
	if f == nil {
		return fmt.Sprintf("Submission failed\n\nFlow: %s\nWizard: %s", ev.Flow, ev.WizardID)
	}
	hint := "Your request was declined. Change it and submit again."
	if f.Retryable {
		hint = "Something went wrong on our side. You may retry."
	}
	return fmt.Sprintf("Submission failed\n\nFlow: %s\nWizard: %s\nReason: %s\n\n%s", ev.Flow, ev.WizardID, f.Reason, hint)
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n LogNotifier) SendMessage(_ context.Context, recipient, message string) error {
	n.Logger.Info("notification", zap.String("to", recipient), zap.String("message", message))
	return nil
}
