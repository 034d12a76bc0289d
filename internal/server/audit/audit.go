// Package audit publishes authentication events. Emission is best effort:
// a failing sink is logged and never fails the request that produced the event.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/prashikshan/portal-auth/internal/logging"
)

type EventType string

const (
	UserRegistered    EventType = "user.registered"
	LoginSucceeded    EventType = "login.succeeded"
	LoginFailed       EventType = "login.failed"
	AccountLocked     EventType = "account.locked"
	TokenRefreshed    EventType = "token.refreshed"
	UserLoggedOut     EventType = "user.logged_out"
	UserStatusChanged EventType = "user.status_changed"
)

type Event struct {
	Type      EventType         `json:"type"`
	UserID    string            `json:"userId,omitempty"`
	Email     string            `json:"email,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

type Sink interface {
	Emit(ctx context.Context, e Event)
}

type Nop struct{}

func (Nop) Emit(context.Context, Event) {}

// LogSink writes events as structured log lines.
type LogSink struct {
	log logging.Logger
}

func NewLogSink(l logging.Logger) *LogSink {
	return &LogSink{log: l.With("module", "audit")}
}

func (s *LogSink) Emit(ctx context.Context, e Event) {
	s.log.Info(ctx, "audit event",
		"type", string(e.Type), "user_id", e.UserID, "email", e.Email, "reason", e.Reason)
}

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// NATSSink publishes each event as JSON on <prefix>.<type>.
type NATSSink struct {
	pub    Publisher
	prefix string
	log    logging.Logger
	now    func() time.Time
}

func NewNATSSink(pub Publisher, prefix string, l logging.Logger) *NATSSink {
	if prefix == "" {
		prefix = "auth"
	}
	return &NATSSink{pub: pub, prefix: prefix, log: l.With("module", "audit"), now: time.Now}
}

func (s *NATSSink) Subject(t EventType) string {
	return s.prefix + "." + string(t)
}

func (s *NATSSink) Emit(ctx context.Context, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		s.log.Error(ctx, "audit marshal failed", "type", string(e.Type), "error", err)
		return
	}
	if err := s.pub.Publish(s.Subject(e.Type), data); err != nil {
		s.log.Warn(ctx, "audit publish failed", "type", string(e.Type), "error", err)
	}
}

// Connect dials NATS with reconnects enabled for the life of the process.
func Connect(url string, l logging.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("portal-auth"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				l.Warn(context.Background(), "nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			l.Info(context.Background(), "nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
}
