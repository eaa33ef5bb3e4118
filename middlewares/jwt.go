package middlewares

import (
	"context"
	"net/http"
	"strings"

	"github.com/securebidz/apiv1/utils"
)

type contextKey string

const (
	claimsKey    contextKey = "claims"
	requestIDKey contextKey = "requestID"
)

func GetTokenFromAuthorizationHeader(authHeader string) (string, error) {
	if len(authHeader) == 0 {
		return "", utils.ErrMissingToken
	}
	bearerToken := strings.Fields(authHeader)
	if len(bearerToken) != 2 || !strings.EqualFold(bearerToken[0], "Bearer") {
		return "", utils.ErrMissingToken
	}
	return bearerToken[1], nil
}

// IsAccessTokenAuthorized rejects requests without a valid bearer token and
// hands the verified claims to f through the request context.
func IsAccessTokenAuthorized(issuer *utils.TokenIssuer) func(http.HandlerFunc) http.HandlerFunc {
	return func(f http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			accessTokenString, err := GetTokenFromAuthorizationHeader(r.Header.Get("Authorization"))
			if err != nil {
				WriteError(w, r, err)
				return
			}
			claims, err := issuer.Verify(accessTokenString)
			if err != nil {
				WriteError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey, claims)
			f(w, r.WithContext(ctx))
		}
	}
}

// ClaimsFromContext returns the claims stored by IsAccessTokenAuthorized.
func ClaimsFromContext(ctx context.Context) (*utils.TokenClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*utils.TokenClaims)
	return claims, ok
}
