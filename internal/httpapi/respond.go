// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/samber/oops"

	"github.com/mysurvey/mysurvey/internal/auth"
	"github.com/mysurvey/mysurvey/pkg/errutil"
)

// Codes produced by the HTTP layer itself.
const (
	CodeRateLimited      = "RATE_LIMITED"
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeInternal         = "INTERNAL_ERROR"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

type successEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type errorEnvelope struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect; nothing useful to do with the error
	json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, successEnvelope{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, msg string) {
	writeSuccess(w, http.StatusOK, messageBody{Message: msg})
}

func writeErrorBody(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorEnvelope{Success: false, Code: code, Message: msg})
}

// statusForKind maps an error kind to its HTTP status.
func statusForKind(k auth.Kind) int {
	switch k {
	case auth.KindBadRequest:
		return http.StatusBadRequest
	case auth.KindUnauthorized:
		return http.StatusUnauthorized
	case auth.KindForbidden:
		return http.StatusForbidden
	case auth.KindNotFound:
		return http.StatusNotFound
	case auth.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Internal errors are logged and replaced with a
// generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := auth.KindOf(err)
	status := statusForKind(kind)
	if status == http.StatusInternalServerError {
		errutil.LogErrorContext(r.Context(), s.logger, "request failed", err)
		writeErrorBody(w, status, CodeInternal, "Internal server error")
		return
	}
	if wait, ok := auth.RetryAfter(err); ok {
		setRetryAfter(w, wait)
	}
	writeErrorBody(w, status, auth.CodeOf(err), publicMessage(err))
}

func publicMessage(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok {
		if msg := oopsErr.Error(); msg != "" {
			return msg
		}
	}
	return err.Error()
}

// setRetryAfter writes the wait in whole seconds, rounded up.
func setRetryAfter(w http.ResponseWriter, wait time.Duration) {
	seconds := max(int(math.Ceil(wait.Seconds())), 1)
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	setRetryAfter(w, retryAfter)
	writeErrorBody(w, http.StatusTooManyRequests, CodeRateLimited, "Too many requests")
}

func invalidInput(field, msg string) error {
	return oops.Code(auth.CodeInvalidInput).With("field", field).Errorf("%s", msg)
}

// decode reads a JSON body into dst.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return invalidInput("body", "Request body too large")
		}
		return invalidInput("body", "Malformed request body")
	}
	return nil
}
