package mailer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Send(context.Background(), MFACode("a@example.com", "482913", 10*time.Minute)))
		}()
	}
	wg.Wait()
	require.Len(t, r.Sent(), 10)
	assert.Len(t, r.SentTo("a@example.com", SUBJECT_MFA_CODE), 10)
	assert.Empty(t, r.SentTo("b@example.com", SUBJECT_MFA_CODE))

	r.Err = ErrRecorderFailure
	assert.ErrorIs(t, r.Send(context.Background(), Message{To: "a@example.com"}), ErrRecorderFailure)
	assert.Len(t, r.Sent(), 10)
}

func TestTemplates(t *testing.T) {
	code := MFACode("a@example.com", "482913", 10*time.Minute)
	assert.Equal(t, "a@example.com", code.To)
	assert.Contains(t, code.Body, "482913")
	assert.Contains(t, code.Body, "10 minutes")

	unlockAt := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
	locked := AccountLocked("a@example.com", unlockAt)
	assert.Equal(t, SUBJECT_ACCOUNT_LOCKED, locked.Subject)
	assert.Contains(t, locked.Body, unlockAt.Format(time.RFC1123))

	alert := SuspiciousActivity("a@example.com", 65, []string{"Login from different IP address", "Login from unusual location"})
	assert.Contains(t, alert.Body, "risk score 65")
	assert.Contains(t, alert.Body, "- Login from unusual location")
}

func TestSMTPMailerRender(t *testing.T) {
	m := &SMTPMailer{From: "SecureBidz <no-reply@securebidz.local>"}
	raw := string(m.render(Message{To: "a@example.com", Subject: "Hi", Body: "body"}))
	assert.Contains(t, raw, "From: SecureBidz <no-reply@securebidz.local>\r\n")
	assert.Contains(t, raw, "Subject: Hi\r\n")
	assert.Contains(t, raw, "\r\n\r\nbody")
	assert.Equal(t, "no-reply@securebidz.local", envelopeAddress(m.From))
	assert.Equal(t, "plain@example.com", envelopeAddress("plain@example.com"))
}

func TestSMTPMailerUnreachable(t *testing.T) {
	m := &SMTPMailer{Host: "127.0.0.1", Port: 1, Timeout: time.Second}
	err := m.Send(context.Background(), Message{To: "a@example.com", Subject: "Hi", Body: "body"})
	assert.Error(t, err)
}
