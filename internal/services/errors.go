package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrQuotaExceeded    = errors.New("quota exceeded")
	ErrNotFound         = errors.New("not found")
	ErrPathTraversal    = errors.New("path traversal")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrExternalTool     = errors.New("external tool error")
	ErrValidation       = errors.New("validation error")
	ErrConfiguration    = errors.New("configuration error")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrStoreUnavailable
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Details returns the log event type and operator hint for an error carrying
// one of the markers above.
func Details(err error) (eventType, hint string) {
	switch {
	case err == nil:
		return "", ""
	case errors.Is(err, ErrPathTraversal):
		return "path_traversal_rejected", "request attempted to escape the content root"
	case errors.Is(err, ErrUnauthorized):
		return "authorization_denied", "token or session did not verify"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded", "user must redeem a passcode to continue"
	case errors.Is(err, ErrNotFound):
		return "not_found", "check the catalog row and content root"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable", "check database file permissions and disk space"
	case errors.Is(err, ErrExternalTool):
		return "external_tool_failed", "inspect ffmpeg stderr in the error text"
	case errors.Is(err, ErrValidation):
		return "validation_failed", "input was rejected"
	case errors.Is(err, ErrConfiguration):
		return "configuration_invalid", "check config.toml and environment"
	default:
		return "unexpected_error", "see error detail"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
