package dbhelper

import (
	"context"
	"testing"
	"time"

	"github.com/securebidz/apiv1/mailer"
	"github.com/securebidz/apiv1/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssessRisk(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.signup(t, "ann@example.com")
	audit := env.store.Audit

	home := models.RequestMeta{IPAddress: "198.51.100.1", Location: &models.Location{Country: "US", City: "New York"}}
	away := models.RequestMeta{IPAddress: "203.0.113.9", Location: &models.Location{Country: "DE", City: "Berlin"}}

	fresh := audit.AssessRisk(ctx, user.ID, home, models.AUDIT_LOGIN_SUCCESS)
	assert.Zero(t, fresh.RiskScore)
	assert.Empty(t, fresh.Reasons)
	assert.False(t, fresh.IsSuspicious)

	for i := 0; i < 3; i++ {
		audit.Record(ctx, user.ID, models.AUDIT_LOGIN_FAILED, models.Details{}, away, 30)
	}
	assert.Equal(t, 30, audit.AssessRisk(ctx, user.ID, home, models.AUDIT_LOGIN_SUCCESS).RiskScore)

	audit.Record(ctx, user.ID, models.AUDIT_LOGIN_SUCCESS, models.Details{}, home, 0)
	assert.Equal(t, 30, audit.AssessRisk(ctx, user.ID, home, models.AUDIT_LOGIN_SUCCESS).RiskScore)

	moved := audit.AssessRisk(ctx, user.ID, away, models.AUDIT_LOGIN_SUCCESS)
	assert.Equal(t, 65, moved.RiskScore)
	assert.True(t, moved.IsSuspicious)
	assert.ElementsMatch(t, []string{
		"Multiple failed login attempts",
		"Login from different IP address",
		"Login from unusual location",
	}, moved.Reasons)

	noGeo := away
	noGeo.Location = nil
	assert.Equal(t, 50, audit.AssessRisk(ctx, user.ID, noGeo, models.AUDIT_LOGIN_SUCCESS).RiskScore)

	for i := 0; i < 10; i++ {
		audit.Record(ctx, user.ID, models.AUDIT_BID_PLACED, models.Details{}, home, 0)
	}
	assert.Equal(t, 55, audit.AssessRisk(ctx, user.ID, home, models.AUDIT_BID_PLACED).RiskScore)
	assert.Equal(t, 30, audit.AssessRisk(ctx, user.ID, home, models.AUDIT_LOGIN_SUCCESS).RiskScore)

	// failures and bids age out of the window, the last login does not
	env.clock.Advance(61 * time.Minute)
	assert.Equal(t, 35, audit.AssessRisk(ctx, user.ID, away, models.AUDIT_BID_PLACED).RiskScore)
}

func TestSuspiciousLoginIsRecordedAndAlerted(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.signup(t, "ben@example.com")

	home := models.RequestMeta{IPAddress: "198.51.100.1"}
	away := models.RequestMeta{IPAddress: "203.0.113.9"}
	_, err := env.store.LoginUserWithPassword(ctx, user.Email, testPassword, home)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := env.store.LoginUserWithPassword(ctx, user.Email, "Wr0ng&Passw", away)
		require.Error(t, err)
	}

	env.clock.Advance(time.Minute)
	result, err := env.store.LoginUserWithPassword(ctx, user.Email, testPassword, away)
	require.NoError(t, err, "risk scoring never blocks a login")
	assert.Equal(t, 50, result.RiskScore)
	assert.EqualValues(t, 1, env.auditCount(t, user.ID, models.AUDIT_SUSPICIOUS_ACTIVITY))
	assert.Len(t, env.mail.SentTo(user.Email, mailer.SUBJECT_SUSPICIOUS), 1)

	entries, err := env.store.Audit.RecentEvents(ctx, AuditFilter{UserID: user.ID, Action: models.AUDIT_LOGIN_SUCCESS})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 50, entries[0].RiskScore)
	assert.Equal(t, "203.0.113.9", entries[0].IPAddress)
}

func TestRecordClampsRiskAndKeepsDetails(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	meta := models.RequestMeta{IPAddress: "192.0.2.1", UserAgent: "curl", Location: &models.Location{Country: "FR"}}

	env.store.Audit.Record(ctx, "", models.AUDIT_LOGIN_FAILED, models.Details{"reason": "User not found"}, meta, 250)

	entries, err := env.store.Audit.RecentEvents(ctx, AuditFilter{Action: models.AUDIT_LOGIN_FAILED})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].UserID)
	assert.Equal(t, 100, entries[0].RiskScore)
	assert.Equal(t, "User not found", entries[0].Details["reason"])
	assert.Equal(t, "FR", entries[0].Location.Country)
	assert.Equal(t, "curl", entries[0].UserAgent)
}
