package httpapi

import (
	"encoding/json"
	"net/http"

	goRecovery "github.com/MrEthical07/goRecovery"
)

// ErrorEnvelope is the body of every failed response.
type ErrorEnvelope struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// ValidateResponse is returned by a successful code validation. Channel
// values are masked the same way init masks them.
type ValidateResponse struct {
	Username        string                      `json:"username"`
	TenantDomain    string                      `json:"tenant_domain"`
	UserStoreDomain string                      `json:"user_store_domain"`
	Scenario        goRecovery.RecoveryScenario `json:"scenario"`
	Step            goRecovery.RecoveryStep     `json:"step"`
	Channels        []goRecovery.ChannelInfo    `json:"channels"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

const (
	codeInvalidRequest = "INVALID_REQUEST"
	codeUnavailable    = "UNAVAILABLE"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, ErrorEnvelope{Error: msg, Code: code})
}
