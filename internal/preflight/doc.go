// Package preflight provides readiness checks for the filesystem paths,
// database and external binaries streamgate depends on.
//
// These checks run in two contexts:
//   - serve runs RunAll at startup and refuses to listen when a required
//     check fails.
//   - The CLI "streamgate check" command renders every result as a table.
package preflight
