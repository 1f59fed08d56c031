package preflight

import (
	"context"

	"streamgate/internal/config"
	"streamgate/internal/database"
)

// minFreeBytes is the free space below which the content root check warns.
const minFreeBytes = 5 << 30

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// Options selects the checks that depend on how the process will run.
type Options struct {
	// Worker adds the transcoder binary check.
	Worker bool
}

// RunAll executes all applicable preflight checks for cfg. db may be nil when
// the database has not been opened.
func RunAll(ctx context.Context, cfg *config.Config, db *database.DB, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Content root", cfg.Paths.ContentRoot),
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckFreeSpace("Content root free space", cfg.Paths.ContentRoot, minFreeBytes),
	}
	if db != nil {
		results = append(results, CheckDatabase(ctx, db))
	}
	if opts.Worker {
		results = append(results, CheckTranscoder(cfg.Transcoder.FFmpegBinary))
	}
	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, result := range results {
		if !result.Passed && !result.Optional {
			out = append(out, result)
		}
	}
	return out
}
