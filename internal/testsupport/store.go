package testsupport

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"streamgate/internal/config"
	"streamgate/internal/database"
)

// MustOpenDB opens the migrated database for cfg and registers cleanup.
func MustOpenDB(t testing.TB, cfg *config.Config) *database.DB {
	t.Helper()

	db, err := database.Open(context.Background(), cfg.DatabasePath())
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// SeedQuota writes a user_quota row with the given totals.
func SeedQuota(t testing.TB, db *database.DB, userID int64, totalGB, usedGB float64) {
	t.Helper()

	_, err := db.Exec(context.Background(),
		`INSERT INTO user_quota (user_id, user_quota_total_gb, used_quota_gb, user_quota_last_updated)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET user_quota_total_gb = excluded.user_quota_total_gb,
		   used_quota_gb = excluded.used_quota_gb`,
		userID, totalGB, usedGB, database.FormatTime(time.Now()),
	)
	if err != nil {
		t.Fatalf("seed quota: %v", err)
	}
}

// FileFixture describes a content + content_files pair to insert.
type FileFixture struct {
	TypeName     string
	Title        string
	OriginalPath string
	Status       string
	Ready        bool
	CreatedAt    time.Time
}

// Renditions returns the derived paths the worker would persist for an
// original at rel.
func Renditions(rel string) (hls, preview, poster string) {
	episodeDir := filepath.Dir(filepath.Dir(rel))
	base := strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))
	return filepath.Join(episodeDir, "hls", base+".m3u8"),
		filepath.Join(episodeDir, "preview", base+".mp4"),
		filepath.Join(episodeDir, "poster", base+".jpg")
}

// SeedFile inserts the fixture and returns the content and content file ids.
// Ready fixtures get derived paths following the worker's layout.
func SeedFile(t testing.TB, db *database.DB, fx FileFixture) (contentID, fileID int64) {
	t.Helper()
	ctx := context.Background()

	if fx.TypeName == "" {
		fx.TypeName = "movies"
	}
	if fx.Title == "" {
		fx.Title = "Fixture"
	}
	if fx.Status == "" {
		fx.Status = "pending"
		if fx.Ready {
			fx.Status = "ready"
		}
	}
	if fx.CreatedAt.IsZero() {
		fx.CreatedAt = time.Now()
	}
	created := database.FormatTime(fx.CreatedAt)

	var typeID int64
	if err := db.QueryRow(ctx, `SELECT content_type_id FROM content_types WHERE content_type_name = ?`, fx.TypeName).Scan(&typeID); err != nil {
		res, err := db.Exec(ctx, `INSERT INTO content_types (content_type_name) VALUES (?)`, fx.TypeName)
		if err != nil {
			t.Fatalf("seed type: %v", err)
		}
		typeID, _ = res.LastInsertId()
	}

	res, err := db.Exec(ctx,
		`INSERT INTO content (content_title, content_kind, content_type_id, created_at) VALUES (?, 'video', ?, ?)`,
		fx.Title, typeID, created)
	if err != nil {
		t.Fatalf("seed content: %v", err)
	}
	contentID, _ = res.LastInsertId()

	var hls, preview, poster any
	if fx.Status == "ready" {
		h, p, q := Renditions(fx.OriginalPath)
		hls, preview, poster = h, p, q
	}
	res, err = db.Exec(ctx,
		`INSERT INTO content_files (content_id, original_path, file_size_mb, mime_type, processing_status,
		   hls_path, preview_path, poster_path, created_at, updated_at)
		 VALUES (?, ?, 0, 'video/mp4', ?, ?, ?, ?, ?, ?)`,
		contentID, fx.OriginalPath, fx.Status, hls, preview, poster, created, created)
	if err != nil {
		t.Fatalf("seed content file: %v", err)
	}
	fileID, _ = res.LastInsertId()
	return contentID, fileID
}
