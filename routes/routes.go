package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/securebidz/apiv1/dbhelper"
	"github.com/securebidz/apiv1/middlewares"
	"github.com/securebidz/apiv1/utils"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// API holds what the handlers need. The limits can be swapped before
// CreateRoutes is called.
type API struct {
	Store        *dbhelper.Store
	Tokens       *utils.TokenIssuer
	AuthLimit    *middlewares.RateLimit
	BidLimit     *middlewares.RateLimit
	GeneralLimit *middlewares.RateLimit
}

func NewAPI(store *dbhelper.Store, tokens *utils.TokenIssuer) *API {
	return &API{
		Store:        store,
		Tokens:       tokens,
		AuthLimit:    middlewares.NewRateLimit(5, 15*time.Minute, utils.AUTH_RATE_LIMIT_ERROR),
		BidLimit:     middlewares.NewRateLimit(10, time.Minute, utils.BID_RATE_LIMIT_ERROR).ByActor(),
		GeneralLimit: middlewares.NewRateLimit(100, 15*time.Minute, utils.GENERIC_RATE_LIMIT_ERROR),
	}
}

type RequestBody interface {
	SignupAttempt | LoginAttempt | VerifyMFAAttempt | SendMFACodeRequest |
		EnableMFARequest | ConfirmMFARequest | DisableMFARequest | ChangePasswordRequest |
		ProfileUpdate | NewItemRequest | BidRequest | DepositRequest
}

// DecodeValidBody decodes the JSON body into B and runs its validate tags.
// Field failures come back as violations on a validation error.
func DecodeValidBody[B RequestBody](r *http.Request) (B, error) {
	decoder := json.NewDecoder(r.Body)
	var requestBody B
	err := decoder.Decode(&requestBody)
	if err != nil {
		return requestBody, utils.ErrValidation.WithMessage("Malformed JSON body")
	}
	err = validate.Struct(requestBody)
	if err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return requestBody, utils.Internal(err)
		}
		violations := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			violations = append(violations, describeFieldError(fe))
		}
		return requestBody, utils.ErrValidation.WithMessage(violations[0]).WithViolations(violations)
	}
	return requestBody, nil
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	case "gt":
		return fe.Field() + " must be greater than " + fe.Param()
	case "gte":
		return fe.Field() + " must be at least " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}

func CreateRoutes(r *mux.Router, api *API) {
	r.Use(middlewares.RequestID, middlewares.SecurityHeaders, api.GeneralLimit.Handler)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middlewares.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")
	api.AuthRouter(r.PathPrefix("/api/auth").Subrouter())
	api.ItemsRouter(r.PathPrefix("/api/items").Subrouter())
	api.WalletRouter(r.PathPrefix("/api/wallet").Subrouter())
}

func (api *API) authorized(f http.HandlerFunc) http.HandlerFunc {
	return middlewares.IsAccessTokenAuthorized(api.Tokens)(f)
}

// currentUserID is only called behind authorized, which guarantees claims.
func currentUserID(r *http.Request) string {
	claims, _ := middlewares.ClaimsFromContext(r.Context())
	return claims.UserID
}
