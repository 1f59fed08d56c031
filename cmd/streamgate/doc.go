// Package main hosts the streamgate CLI entrypoint and command graph.
//
// The Cobra command tree runs the HTTP gateway and the processing worker,
// imports originals into the catalog, and gives operators direct access to
// the queue, passcodes and quota ledger. Every command opens the same SQLite
// database the server uses; cross-process write contention is absorbed by the
// busy retry in internal/database.
package main
