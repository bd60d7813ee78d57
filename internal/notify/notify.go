package notify

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/AbduElrahman2001/BALHA/internal/models"
	"github.com/AbduElrahman2001/BALHA/internal/queue"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	ErrMissingFields = errors.New("turn, sender phone and message are required")
	ErrProvider      = errors.New("notification provider failed")
)

const DefaultMessage = "دورك، احضر خلال 15 دقيقة"

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

type Request struct {
	TurnID      int64  `json:"turn_id"`
	SenderPhone string `json:"sender_phone"`
	Message     string `json:"message"`
}

type Notification struct {
	ID        string    `json:"notification_id"`
	TurnID    int64     `json:"turn_id"`
	Recipient string    `json:"recipient"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	Provider  string    `json:"provider"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// TurnLookup is the part of the queue manager the notifier reads.
type TurnLookup interface {
	Status(id int64) (models.Turn, error)
}

// Recorder counts notification outcomes.
type Recorder interface {
	RecordNotification(status string)
}

const DefaultMaxAttempts = 3

type Notifier struct {
	turns       TurnLookup
	provider    Provider
	recorder    Recorder
	maxAttempts int
	clock       func() time.Time
	logger      *logrus.Logger
}

type Options struct {
	Recorder Recorder
	// MaxAttempts bounds provider calls per notification. Zero means
	// DefaultMaxAttempts.
	MaxAttempts int
	Clock       func() time.Time
	Logger      *logrus.Logger
}

func New(turns TurnLookup, provider Provider, options Options) *Notifier {
	n := &Notifier{
		turns:       turns,
		provider:    provider,
		recorder:    options.Recorder,
		maxAttempts: options.MaxAttempts,
		clock:       options.Clock,
		logger:      options.Logger,
	}
	if n.maxAttempts <= 0 {
		n.maxAttempts = DefaultMaxAttempts
	}
	if n.clock == nil {
		n.clock = func() time.Time { return time.Now().UTC() }
	}
	if n.logger == nil {
		n.logger = logrus.StandardLogger()
	}
	return n
}

// Send renders the message for a waiting turn and hands it to the provider.
// A provider failure still returns the failed Notification alongside
// ErrProvider.
func (n *Notifier) Send(ctx context.Context, req Request) (Notification, error) {
	sender := strings.TrimSpace(req.SenderPhone)
	message := strings.TrimSpace(req.Message)
	if message == "" {
		message = DefaultMessage
	}
	if req.TurnID == 0 || sender == "" {
		return Notification{}, ErrMissingFields
	}

	turn, err := n.turns.Status(req.TurnID)
	if err != nil {
		return Notification{}, err
	}
	if !turn.IsWaiting() {
		return Notification{}, queue.ErrInvalidState
	}

	notification := Notification{
		ID:        uuid.NewString(),
		TurnID:    turn.ID,
		Recipient: turn.MobileNumber,
		Sender:    sender,
		Body:      renderTemplate(message, turn),
		Provider:  n.provider.Name(),
		Status:    StatusSent,
		SentAt:    n.clock(),
	}

	if providerErr := n.deliver(ctx, &notification); providerErr != nil {
		notification.Status = StatusFailed
		notification.Error = providerErr.Error()
		n.record(StatusFailed)
		n.logger.WithError(providerErr).WithFields(logrus.Fields{
			"turn_id":  turn.ID,
			"attempts": notification.Attempts,
		}).Warn("notification failed")
		return notification, errors.Wrap(ErrProvider, providerErr.Error())
	}
	n.record(StatusSent)
	n.logger.WithFields(logrus.Fields{
		"turn_id":         turn.ID,
		"notification_id": notification.ID,
		"attempts":        notification.Attempts,
	}).Info("notification sent")
	return notification, nil
}

// deliver calls the provider until it succeeds, maxAttempts is reached or ctx
// is done. It returns the last provider error.
func (n *Notifier) deliver(ctx context.Context, notification *Notification) error {
	var err error
	for notification.Attempts < n.maxAttempts {
		notification.Attempts++
		err = n.provider.Send(ctx, notification.Body, notification.Recipient, notification.Sender)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (n *Notifier) record(status string) {
	if n.recorder != nil {
		n.recorder.RecordNotification(status)
	}
}

func renderTemplate(template string, turn models.Turn) string {
	result := template
	result = strings.ReplaceAll(result, "{customer_name}", turn.CustomerName)
	result = strings.ReplaceAll(result, "{turn_number}", strconv.Itoa(turn.TurnNumber))
	result = strings.ReplaceAll(result, "{service}", models.ServiceLabel(turn.ServiceType))
	return result
}
