package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	goRecovery "github.com/MrEthical07/goRecovery"
)

const maxBodyBytes = 64 << 10

// RecoveryService is the part of *goRecovery.Engine the handlers call.
type RecoveryService interface {
	ResolveRecovery(ctx context.Context, claims map[string]string, tenantDomain string, scenario goRecovery.RecoveryScenario, properties map[string]string) (*goRecovery.RecoveryChannelInfo, error)
	ValidateRecoveryCode(ctx context.Context, code string, step goRecovery.RecoveryStep) (*goRecovery.RecoveryRecord, error)
	RecoveryChannels(record *goRecovery.RecoveryRecord) []goRecovery.ChannelInfo
	RetryAfter() time.Duration
}

// InitRequest is the body of POST /v1/recovery/init.
type InitRequest struct {
	TenantDomain string            `json:"tenant_domain" validate:"required,max=253"`
	Scenario     string            `json:"scenario" validate:"required,max=64"`
	Claims       map[string]string `json:"claims" validate:"omitempty,max=32,dive,keys,max=512,endkeys,max=1024"`
	Properties   map[string]string `json:"properties" validate:"omitempty,max=32,dive,keys,max=256,endkeys,max=1024"`
}

// ValidateRequest is the body of POST /v1/recovery/validate.
type ValidateRequest struct {
	Code string `json:"code" validate:"required,max=256"`
	Step string `json:"step" validate:"required,max=64"`
}

type recoveryHandler struct {
	svc    RecoveryService
	logger *slog.Logger
}

func (h *recoveryHandler) Init(w http.ResponseWriter, r *http.Request) {
	var req InitRequest
	if !decode(w, r, &req) {
		return
	}

	info, err := h.svc.ResolveRecovery(r.Context(), req.Claims, req.TenantDomain, goRecovery.RecoveryScenario(req.Scenario), req.Properties)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *recoveryHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !decode(w, r, &req) {
		return
	}

	record, err := h.svc.ValidateRecoveryCode(r.Context(), req.Code, goRecovery.RecoveryStep(req.Step))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ValidateResponse{
		Username:        record.Account.Username,
		TenantDomain:    record.Account.TenantDomain,
		UserStoreDomain: record.Account.UserStoreDomain,
		Scenario:        record.Scenario,
		Step:            record.Step,
		Channels:        h.svc.RecoveryChannels(record),
	})
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", codeInvalidRequest)
		return false
	}
	if err := validateStruct(dst); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error(), codeInvalidRequest)
		return false
	}
	return true
}

func (h *recoveryHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	if status == http.StatusTooManyRequests {
		if wait := h.svc.RetryAfter(); wait > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
		}
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "recovery request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", goRecovery.RequestIDFromContext(r.Context())),
			slog.String("code", body.Code),
			slog.Any("error", err),
		)
	}
	writeJSON(w, status, body)
}

func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// errorResponse maps an Engine error to an HTTP status and envelope.
func errorResponse(err error) (int, ErrorEnvelope) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable, ErrorEnvelope{Error: "request canceled", Code: codeUnavailable}
	}

	var re *goRecovery.RecoveryError
	if !errors.As(err, &re) {
		return http.StatusInternalServerError, ErrorEnvelope{Error: goRecovery.GenericServerMessage}
	}
	body := ErrorEnvelope{Error: re.Public(), Code: re.Code()}
	if re.Kind() != goRecovery.ErrorKindClient {
		return http.StatusInternalServerError, body
	}

	switch {
	case errors.Is(err, goRecovery.ErrNoUserFound), errors.Is(err, goRecovery.ErrNoAccountRecoveryData):
		return http.StatusNotFound, body
	case errors.Is(err, goRecovery.ErrMultipleUsersMatched):
		return http.StatusConflict, body
	case errors.Is(err, goRecovery.ErrAccountDisabled), errors.Is(err, goRecovery.ErrAccountLocked):
		return http.StatusForbidden, body
	case errors.Is(err, goRecovery.ErrRecoveryRateLimited):
		return http.StatusTooManyRequests, body
	default:
		return http.StatusBadRequest, body
	}
}
