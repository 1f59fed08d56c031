// Package logging builds the slog loggers streamgate writes with.
//
// Console output is one line per record with the component lifted next to
// the level; JSON output uses ts/level/msg keys. Records go to every
// configured output. WithContext tags a logger with the user, job and
// request identifiers carried on a context.
package logging
