package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prashikshan/portal-auth/internal/logging"
)

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func TestNATSSink_PublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	s := NewNATSSink(pub, "portal.auth", logging.Nop{})
	fixed := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	s.Emit(context.Background(), Event{Type: LoginFailed, UserID: "u-1", Email: "a@b.c", Reason: "bad_password"})

	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "portal.auth.login.failed", pub.subjects[0])

	var got Event
	require.NoError(t, json.Unmarshal(pub.payloads[0], &got))
	assert.Equal(t, LoginFailed, got.Type)
	assert.Equal(t, "u-1", got.UserID)
	assert.True(t, got.Timestamp.Equal(fixed))
}

func TestNATSSink_DefaultPrefix(t *testing.T) {
	s := NewNATSSink(&fakePublisher{}, "", logging.Nop{})
	assert.Equal(t, "auth.user.registered", s.Subject(UserRegistered))
}

func TestNATSSink_PublishErrorIsSwallowed(t *testing.T) {
	var buf bytes.Buffer
	s := NewNATSSink(&fakePublisher{err: errors.New("no responders")}, "auth", logging.NewJSON(&buf, "debug"))

	assert.NotPanics(t, func() {
		s.Emit(context.Background(), Event{Type: TokenRefreshed})
	})
	assert.Contains(t, buf.String(), "audit publish failed")
	assert.Contains(t, buf.String(), "no responders")
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(logging.NewJSON(&buf, "info"))

	s.Emit(context.Background(), Event{Type: AccountLocked, UserID: "u-9"})

	out := buf.String()
	assert.Contains(t, out, `"type":"account.locked"`)
	assert.Contains(t, out, `"user_id":"u-9"`)
	assert.Contains(t, out, `"module":"audit"`)
}
