// Package server exposes the gateway over HTTP.
//
// Routes are mounted on a chi router. Every request gets a correlation id,
// a structured access log line and Prometheus counters; /content and /me
// additionally require a session JWT issued by the external login service.
// Gateway errors are mapped to status codes in one place so security
// rejections stay generic.
package server
