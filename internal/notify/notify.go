package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarn    Severity = "warn"
	SeverityError   Severity = "error"
)

// Message is a user-facing status notice. GiftID is zero when the
// notice is not about one particular gift.
type Message struct {
	ID        string    `json:"id"`
	Severity  Severity  `json:"severity"`
	Summary   string    `json:"summary"`
	Detail    string    `json:"detail"`
	GiftID    int64     `json:"giftId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewMessage(sev Severity, summary, detail string) Message {
	return Message{
		ID:        uuid.NewString(),
		Severity:  sev,
		Summary:   summary,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
}

// Sink accepts user-facing messages fire-and-forget: implementations
// never return delivery errors to the caller.
type Sink interface {
	Publish(ctx context.Context, msg Message)
}

// LogSink writes notifications to the structured log. Used when no
// broker is configured.
type LogSink struct {
	Log *slog.Logger
}

func (s *LogSink) Publish(_ context.Context, msg Message) {
	s.Log.Info("notification",
		"severity", msg.Severity,
		"summary", msg.Summary,
		"detail", msg.Detail,
		"gift_id", msg.GiftID,
	)
}
