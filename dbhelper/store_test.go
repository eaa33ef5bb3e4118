package dbhelper

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/securebidz/apiv1/mailer"
	"github.com/securebidz/apiv1/models"
	"github.com/securebidz/apiv1/utils"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "Tr0ub4dor&Zx"

var testMeta = models.RequestMeta{RequestID: "req-test", IPAddress: "203.0.113.7", UserAgent: "go-test"}

func TestMain(m *testing.M) {
	utils.PasswordHashRounds = bcrypt.MinCost
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	store *Store
	clock *testClock
	mail  *mailer.Recorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := OpenDB(utils.DBConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "securebidz.db")})
	require.NoError(t, err)
	require.NoError(t, InitDB(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	clock := &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	mail := &mailer.Recorder{}
	store := NewStore(db, mail, &utils.TokenIssuer{Secret: []byte("test-secret-that-is-long-enough")})
	store.Clock = clock.Now
	return &testEnv{store: store, clock: clock, mail: mail}
}

func (e *testEnv) signup(t *testing.T, email string) *models.User {
	t.Helper()
	user, token, err := e.store.CreateUser(context.Background(), "Test User", email, testPassword, testMeta)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	return user
}

func (e *testEnv) reload(t *testing.T, userID string) *models.User {
	t.Helper()
	user, err := e.store.findUser(context.Background(), userID)
	require.NoError(t, err)
	return user
}

func (e *testEnv) fund(t *testing.T, userID string, amount float64) {
	t.Helper()
	_, err := e.store.Deposit(context.Background(), userID, amount)
	require.NoError(t, err)
}

func (e *testEnv) auditCount(t *testing.T, userID string, action models.AuditAction) int64 {
	t.Helper()
	q := e.store.DB.Model(&models.AuditLog{}).Where("action = ?", action)
	if userID == "" {
		q = q.Where("user_id IS NULL")
	} else {
		q = q.Where("user_id = ?", userID)
	}
	var n int64
	require.NoError(t, q.Count(&n).Error)
	return n
}

var emailCodePattern = regexp.MustCompile(`verification code is: (\d{6})`)

// lastEmailCode pulls the newest code mailed to the given address.
func (e *testEnv) lastEmailCode(t *testing.T, to string) string {
	t.Helper()
	sent := e.mail.SentTo(to, mailer.SUBJECT_MFA_CODE)
	require.NotEmpty(t, sent, "no MFA code mailed to %s", to)
	match := emailCodePattern.FindStringSubmatch(sent[len(sent)-1].Body)
	require.Len(t, match, 2)
	return match[1]
}

func TestStoreNowIsUTCMilliseconds(t *testing.T) {
	env := newTestEnv(t)
	env.clock.now = time.Date(2024, 3, 1, 13, 0, 0, 123456789, time.FixedZone("CET", 3600))
	now := env.store.now()
	require.Equal(t, time.UTC, now.Location())
	require.Equal(t, 123000000, now.Nanosecond())
	require.Equal(t, 12, now.Hour())
}
