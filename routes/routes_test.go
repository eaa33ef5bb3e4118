package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/labstack/gommon/log"
	"github.com/securebidz/apiv1/dbhelper"
	"github.com/securebidz/apiv1/mailer"
	"github.com/securebidz/apiv1/middlewares"
	"github.com/securebidz/apiv1/models"
	"github.com/securebidz/apiv1/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "Tr0ub4dor&Zx"

func TestMain(m *testing.M) {
	utils.PasswordHashRounds = bcrypt.MinCost
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type testServer struct {
	router http.Handler
	api    *API
	mail   *mailer.Recorder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := dbhelper.OpenDB(utils.DBConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "api.db")})
	require.NoError(t, err)
	require.NoError(t, dbhelper.InitDB(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	tokens := &utils.TokenIssuer{Secret: []byte("routes-test-secret")}
	mail := &mailer.Recorder{}
	api := NewAPI(dbhelper.NewStore(db, mail, tokens), tokens)
	api.AuthLimit = middlewares.NewRateLimit(1000, time.Minute, utils.AUTH_RATE_LIMIT_ERROR)

	r := mux.NewRouter()
	r.StrictSlash(true)
	CreateRoutes(r, api)
	return &testServer{router: r, api: api, mail: mail}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.1:1234"
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func (s *testServer) signup(t *testing.T, name, email string) TokenResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": name, "email": email, "password": testPassword,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[TokenResponse](t, rec)
}

func TestSignupAndLogin(t *testing.T) {
	s := newTestServer(t)
	created := s.signup(t, "Ada", "ada@example.com")
	assert.NotEmpty(t, created.Token)
	assert.Equal(t, "ada@example.com", created.User.Email)
	assert.NotEmpty(t, created.User.ID)

	rec := s.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": "Ada", "email": "ADA@example.com", "password": testPassword,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "DUPLICATE_EMAIL", decode[middlewares.ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": "Weak", "email": "weak@example.com", "password": "weak",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	weak := decode[middlewares.ErrorResponse](t, rec)
	assert.Equal(t, "WEAK_PASSWORD", weak.Code)
	assert.Contains(t, weak.Violations, "Password must be at least 8 characters long")

	rec = s.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{"name": "NoMail", "password": testPassword})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[middlewares.ErrorResponse](t, rec).Violations, "email is required")

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": testPassword})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[TokenResponse](t, rec).Token)

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": "Wr0ng&Passw"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, utils.GENERIC_LOGIN_ERROR, decode[middlewares.ErrorResponse](t, rec).Error)
}

func TestLockedAccountGets423(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "Bo", "bo@example.com")
	for i := 0; i < utils.MAX_NUM_LOGIN_ATTEMPTS; i++ {
		rec := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "bo@example.com", "password": "Wr0ng&Passw"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}
	rec := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "bo@example.com", "password": testPassword})
	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.Equal(t, "ACCOUNT_LOCKED", decode[middlewares.ErrorResponse](t, rec).Code)
}

func TestAuthEndpointsAreRateLimited(t *testing.T) {
	s := newTestServer(t)
	s.api.AuthLimit = middlewares.NewRateLimit(2, time.Minute, utils.AUTH_RATE_LIMIT_ERROR)
	r := mux.NewRouter()
	CreateRoutes(r, s.api)
	s.router = r

	body := map[string]string{"email": "nobody@example.com", "password": testPassword}
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/auth/login", "", body).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/auth/login", "", body).Code)
	rec := s.do(t, http.MethodPost, "/api/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestForwardedForDoesNotEvadeAuthLimit(t *testing.T) {
	s := newTestServer(t)
	s.api.AuthLimit = middlewares.NewRateLimit(5, 15*time.Minute, utils.AUTH_RATE_LIMIT_ERROR)
	r := mux.NewRouter()
	CreateRoutes(r, s.api)

	throttled := 0
	for i := 0; i < 10; i++ {
		raw, err := json.Marshal(map[string]string{"email": "nobody@example.com", "password": testPassword})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(raw))
		req.RemoteAddr = "192.0.2.1:1234"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			throttled++
		}
	}
	assert.Equal(t, 5, throttled)
}

func TestAuctionFlow(t *testing.T) {
	s := newTestServer(t)
	seller := s.signup(t, "Seller", "seller@example.com")
	bidder := s.signup(t, "Bidder", "bidder@example.com")
	newItem := map[string]interface{}{"title": "Vintage camera", "description": "Works", "start_price": 100}

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/items", "", newItem).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/items", "garbage", newItem).Code)

	rec := s.do(t, http.MethodPost, "/api/items", seller.Token, newItem)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	item := decode[map[string]interface{}](t, rec)
	itemID := item["id"].(string)
	assert.Equal(t, 100.0, item["current_bid"])
	assert.Equal(t, "active", item["status"])

	rec = s.do(t, http.MethodGet, "/api/items", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]interface{}](t, rec), 1)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/items/missing", "", nil).Code)

	rec = s.do(t, http.MethodPost, "/api/items/"+itemID+"/bid", bidder.Token, map[string]float64{"amount": 150})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INSUFFICIENT_FUNDS", decode[middlewares.ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodPost, "/api/wallet/deposit", bidder.Token, map[string]float64{"amount": 200})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 200.0, decode[DepositResponse](t, rec).NewBalance)

	rec = s.do(t, http.MethodPost, "/api/items/"+itemID+"/bid", bidder.Token, map[string]float64{"amount": 150})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 150.0, decode[map[string]interface{}](t, rec)["current_bid"])

	rec = s.do(t, http.MethodPost, "/api/items/"+itemID+"/bid", bidder.Token, map[string]float64{"amount": 150})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, utils.BID_TOO_LOW_ERROR, decode[middlewares.ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPost, "/api/items/"+itemID+"/bid", bidder.Token, map[string]float64{"amount": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/wallet", bidder.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	wallet := decode[dbhelper.Wallet](t, rec)
	assert.Equal(t, 200.0, wallet.Balance)
	assert.Empty(t, wallet.Inventory)
}

var codePattern = regexp.MustCompile(`verification code is: (\d{6})`)

func (s *testServer) lastCode(t *testing.T, to string) string {
	t.Helper()
	sent := s.mail.SentTo(to, mailer.SUBJECT_MFA_CODE)
	require.NotEmpty(t, sent)
	match := codePattern.FindStringSubmatch(sent[len(sent)-1].Body)
	require.Len(t, match, 2)
	return match[1]
}

func TestMFAFlow(t *testing.T) {
	s := newTestServer(t)
	user := s.signup(t, "Cy", "cy@example.com")

	rec := s.do(t, http.MethodPost, "/api/auth/enable-mfa", user.Token, map[string]string{"type": "sms"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/enable-mfa", user.Token, map[string]string{"type": "email"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.MFA_TYPE_EMAIL, decode[EnableMFAResponse](t, rec).Type)

	rec = s.do(t, http.MethodPost, "/api/auth/confirm-mfa", user.Token, map[string]string{"code": s.lastCode(t, "cy@example.com")})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[ConfirmMFAResponse](t, rec).BackupCodes, utils.NUM_BACKUP_CODES)

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "cy@example.com", "password": testPassword})
	require.Equal(t, http.StatusOK, rec.Code)
	challenge := decode[MFAChallengeResponse](t, rec)
	assert.True(t, challenge.RequiresMFA)
	assert.Equal(t, user.User.ID, challenge.UserID)
	assert.Equal(t, models.MFA_TYPE_EMAIL, challenge.MFAType)

	rec = s.do(t, http.MethodPost, "/api/auth/send-login-mfa-code", "", map[string]string{"userId": challenge.UserID, "type": "email"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	code := s.lastCode(t, "cy@example.com")

	verify := map[string]string{"userId": challenge.UserID, "code": code, "type": "email"}
	rec = s.do(t, http.MethodPost, "/api/auth/verify-mfa", "", verify)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token := decode[TokenResponse](t, rec).Token
	assert.NotEmpty(t, token)

	rec = s.do(t, http.MethodPost, "/api/auth/verify-mfa", "", verify)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, utils.INVALID_MFA_CODE_ERROR, decode[middlewares.ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPost, "/api/auth/disable-mfa", token, map[string]string{"password": testPassword})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/auth/profile", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[ProfileResponse](t, rec).MFAEnabled)
}

func TestAccountEndpoints(t *testing.T) {
	s := newTestServer(t)
	user := s.signup(t, "Dee", "dee@example.com")

	rec := s.do(t, http.MethodPut, "/api/auth/profile", user.Token, map[string]string{"name": "Dee Dee"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Dee Dee", decode[ProfileResponse](t, rec).Name)

	rec = s.do(t, http.MethodPost, "/api/auth/change-password", user.Token, map[string]string{
		"currentPassword": "Wr0ng&Passw", "newPassword": "Gr8!Kite#Moon",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/change-password", user.Token, map[string]string{
		"currentPassword": testPassword, "newPassword": "Gr8!Kite#Moon",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "dee@example.com", "password": "Gr8!Kite#Moon"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/logout", user.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get(middlewares.REQUEST_ID_HEADER))
}
