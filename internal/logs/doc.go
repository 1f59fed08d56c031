// Package logs reads back the streamgate log file for the CLI.
//
// Tail returns the most recent matching lines and the offset to continue
// from; Follow streams lines appended after that offset until the context
// ends. JSON lines are filtered on their level and component fields.
package logs
