package preflight

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"streamgate/internal/database"
	"streamgate/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace warns when the filesystem holding path has less than threshold
// bytes available. Renditions are written next to originals, so a full disk
// fails jobs rather than requests.
func CheckFreeSpace(name, path string, threshold uint64) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Optional: true, Detail: fmt.Sprintf("statfs failed: %v", err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	detail := humanize.IBytes(free) + " available"
	if free < threshold {
		return Result{Name: name, Optional: true, Detail: detail + fmt.Sprintf(" (below %s)", humanize.IBytes(threshold))}
	}
	return Result{Name: name, Passed: true, Optional: true, Detail: detail}
}

// CheckDatabase pings the database and verifies the schema is current.
func CheckDatabase(ctx context.Context, db *database.DB) Result {
	const name = "Database"

	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := db.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", db.Path(), err)}
	}
	status, err := db.Status()
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", db.Path(), err)}
	}
	if !status.Current() {
		return Result{Name: name, Detail: fmt.Sprintf("schema version %d, latest %d, dirty=%v", status.Version, status.Latest, status.Dirty)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (schema %d)", db.Path(), status.Version)}
}

// CheckTranscoder verifies the configured ffmpeg binary resolves.
func CheckTranscoder(configured string) Result {
	status := deps.CheckBinaries([]deps.Requirement{deps.FFmpegRequirement(configured)})[0]
	if !status.Available {
		return Result{Name: status.Name, Detail: status.Detail}
	}
	return Result{Name: status.Name, Passed: true, Detail: status.Command}
}
