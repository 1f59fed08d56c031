// Package services defines shared utilities consumed by the gateway, the
// processing worker and the CLI.
//
// Key responsibilities:
//   - Context helpers that stamp user IDs, job IDs, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so HTTP handlers and the
//     worker classify failures the same way (403 vs 404 vs 500, retry vs stop).
//
// Use these helpers when wiring new components so error handling and
// observability stay uniform.
package services
