package middlewares

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/gommon/log"
	"github.com/securebidz/apiv1/utils"
)

type ErrorResponse struct {
	Error      string   `json:"error"`
	Code       string   `json:"code"`
	Violations []string `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("writing response: %v", err)
	}
}

// WriteError maps err to its status and caller-safe message. Internal
// causes are logged against the request id and never sent back.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	e := utils.AsError(err)
	if e.Kind == utils.KIND_INTERNAL {
		log.Errorf("request=%s %s %s: %v", RequestIDFromContext(r.Context()), r.Method, r.URL.Path, err)
	} else {
		log.Debugf("request=%s %s %s: %s", RequestIDFromContext(r.Context()), r.Method, r.URL.Path, e.Code)
	}
	if e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(e.RetryAfter.Seconds()))))
	}
	WriteJSON(w, e.Status, ErrorResponse{Error: e.Message, Code: e.Code, Violations: e.Violations})
}
