// Package database owns the SQLite handle and schema for streamgate.
//
// Open applies the WAL, busy-timeout and foreign-key pragmas through the DSN so
// every pooled connection carries them, caps the pool at one connection, and
// runs the embedded golang-migrate migrations. Exec, Query and WithTx retry on
// SQLITE_BUSY for contention with other processes (the CLI against a running
// server). The helpers convert timestamps and nullable columns at the storage
// boundary so domain packages never see sql.Null types.
package database
