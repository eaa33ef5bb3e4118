package middlewares

import (
	"net/http"
	"time"

	"github.com/didip/tollbooth/v6"
	"github.com/didip/tollbooth/v6/limiter"
	"github.com/securebidz/apiv1/utils"
)

// RateLimit allows Requests per Window for each key, where the key is the
// client IP or, for ByActor limits, the authenticated user.
type RateLimit struct {
	lmt     *limiter.Limiter
	window  time.Duration
	message string
	byActor bool
}

func NewRateLimit(requests int, window time.Duration, message string) *RateLimit {
	lmt := tollbooth.NewLimiter(float64(requests)/window.Seconds(), &limiter.ExpirableOptions{
		DefaultExpirationTTL: 2 * window,
	})
	lmt.SetBurst(requests)
	return &RateLimit{lmt: lmt, window: window, message: message}
}

// ByActor keys the limit on the bearer token's user instead of the IP.
// Wrap it inside IsAccessTokenAuthorized so the claims are present.
func (rl *RateLimit) ByActor() *RateLimit {
	rl.byActor = true
	return rl
}

func (rl *RateLimit) key(r *http.Request) string {
	if rl.byActor {
		if claims, ok := ClaimsFromContext(r.Context()); ok {
			return "user:" + claims.UserID
		}
	}
	return "ip:" + ClientIP(r)
}

func (rl *RateLimit) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if httpErr := tollbooth.LimitByKeys(rl.lmt, []string{rl.key(r)}); httpErr != nil {
			limited := utils.ErrRateLimited.WithMessage(rl.message)
			limited.RetryAfter = rl.window
			WriteError(w, r, limited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimit) HandlerFunc(f http.HandlerFunc) http.HandlerFunc {
	return rl.Handler(f).ServeHTTP
}
