package veo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// Error kinds attached to a failed generation. The owning chat entry
// stores the kind so the client can react; "auth" means the credential
// should be re-requested.
const (
	KindAuth           = "auth"
	KindRemote         = "remote_operation"
	KindNetwork        = "network"
	KindMissingPayload = "missing_payload"
	KindCancelled      = "cancelled"
	KindTimeout        = "timeout"
)

// AuthError means the credential is missing or was rejected by the vendor.
type AuthError struct{ Message string }

func (e *AuthError) Error() string { return e.Message }

// RemoteOperationError is a terminal failure reported by the vendor, either
// on the operation handle itself or from a vendor call.
type RemoteOperationError struct {
	Code    int
	Message string
}

func (e *RemoteOperationError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("vendor reported failure (%d): %s", e.Code, e.Message)
	}
	return e.Message
}

// NetworkError is a transport failure or non-success status while fetching
// the video payload.
type NetworkError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("download failed: %v", e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("download failed: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("download failed: HTTP %d", e.StatusCode)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// MissingPayloadError means the operation completed but carried no usable
// video result.
type MissingPayloadError struct{ Message string }

func (e *MissingPayloadError) Error() string { return e.Message }

// Kind maps an error returned by Generate to its kind string. Context
// errors map to "cancelled" and "timeout".
func Kind(err error) string {
	var (
		authErr    *AuthError
		netErr     *NetworkError
		payloadErr *MissingPayloadError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &authErr):
		return KindAuth
	case errors.As(err, &netErr):
		return KindNetwork
	case errors.As(err, &payloadErr):
		return KindMissingPayload
	default:
		return KindRemote
	}
}

// Messages the vendor returns for bad or revoked credentials. Structured
// classification runs first; matching on text survives only as a
// compatibility shim for errors that arrive without a status code.
var credentialPatterns = []string{
	"entity was not found",
	"api key not valid",
}

func credentialInvalid(msg string) bool {
	lower := strings.ToLower(msg)
	for _, p := range credentialPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// classifyVendorErr maps an error from a vendor call onto the exported
// kinds. Context errors pass through unchanged so callers can tell an
// aborted wait apart from a vendor failure.
func classifyVendorErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden ||
			apiErr.Status == "UNAUTHENTICATED" || apiErr.Status == "PERMISSION_DENIED" ||
			credentialInvalid(apiErr.Message) {
			return &AuthError{Message: apiErr.Message}
		}
		return &RemoteOperationError{Code: apiErr.Code, Message: apiErr.Message}
	}

	if credentialInvalid(err.Error()) {
		return &AuthError{Message: err.Error()}
	}

	return &NetworkError{Err: err}
}

// operationError maps the terminal error payload carried by an operation
// handle. Credential patterns in the message upgrade it to AuthError.
func operationError(payload map[string]any) error {
	msg := "video generation failed"
	if m, ok := payload["message"].(string); ok && m != "" {
		msg = m
	}
	code := 0
	if c, ok := payload["code"].(float64); ok {
		code = int(c)
	}

	if credentialInvalid(msg) {
		return &AuthError{Message: msg}
	}
	return &RemoteOperationError{Code: code, Message: msg}
}
