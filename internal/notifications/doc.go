// Package notifications publishes processing events to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers can publish unconditionally.
package notifications
