package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/dmitrijs2005/starauth/internal/server/services"
)

const maxBodyBytes = 1 << 20

type apiError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code services.Kind, msg string) {
	writeJSON(w, status, errorResponse{Error: apiError{Code: string(code), Message: msg}})
}

// writeValidationError reports ozzo field errors one message per field.
func writeValidationError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: apiError{Code: string(services.KindValidation), Message: "request validation failed"}}

	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		resp.Error.Fields = make(map[string]string, len(fieldErrs))
		for field, fe := range fieldErrs {
			resp.Error.Fields[field] = fe.Error()
		}
	} else {
		resp.Error.Message = err.Error()
	}
	writeJSON(w, http.StatusBadRequest, resp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer func() { _ = r.Body.Close() }()

	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data after JSON object")
	}
	return nil
}

// statusFor maps a service failure kind to its HTTP status. InvalidToken
// defaults to 401; verify-email overrides it with 400.
func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindConflict:
		return http.StatusConflict
	case services.KindInvalidCredentials,
		services.KindAccountLocked,
		services.KindAccountPending,
		services.KindAccountDisabled,
		services.KindAccountInactive,
		services.KindEmailNotVerified,
		services.KindInvalidToken,
		services.KindUnauthorized:
		return http.StatusUnauthorized
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err as a JSON failure. Server errors are logged
// by the service layer and never leak their cause.
func writeServiceError(w http.ResponseWriter, err error) {
	writeServiceErrorStatus(w, err, 0)
}

func writeServiceErrorStatus(w http.ResponseWriter, err error, status int) {
	var se *services.Error
	if !errors.As(err, &se) {
		writeError(w, http.StatusInternalServerError, services.KindServerError, "internal server error")
		return
	}
	if status == 0 {
		status = statusFor(se.Kind)
	}
	msg := se.Message
	if se.Kind == services.KindServerError {
		msg = "internal server error"
	}
	writeError(w, status, se.Kind, msg)
}
