package catalog_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"streamgate/internal/catalog"
	"streamgate/internal/config"
	"streamgate/internal/database"
	"streamgate/internal/services"
	"streamgate/internal/testsupport"
)

func newCatalog(t *testing.T) (*catalog.Catalog, *database.DB, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	return catalog.New(db, cfg.Paths.ContentRoot), db, cfg
}

func TestIngestCategoryMovesAndQueues(t *testing.T) {
	cat, _, cfg := newCatalog(t)
	ctx := context.Background()
	root := cfg.Paths.ContentRoot
	testsupport.WriteFile(t, filepath.Join(root, "movies", "Heat.mp4"), 3<<20)

	notified := 0
	cat.OnIngest(func() { notified++ })

	report, err := cat.Ingest(ctx)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if len(report.Added) != 1 {
		t.Fatalf("expected one ingested file, got %+v", report)
	}
	added := report.Added[0]
	if added.OriginalPath != "movies/Heat/original/Heat.mp4" {
		t.Fatalf("unexpected original path %q", added.OriginalPath)
	}
	if _, err := os.Stat(filepath.Join(root, "movies", "Heat", "original", "Heat.mp4")); err != nil {
		t.Fatalf("expected file moved: %v", err)
	}
	if notified != 1 {
		t.Fatalf("expected one notification, got %d", notified)
	}

	file, err := cat.File(ctx, added.ContentFileID)
	if err != nil {
		t.Fatalf("File failed: %v", err)
	}
	if file.Status != "pending" || file.SizeMB != 3 || file.MimeType != "video/mp4" {
		t.Fatalf("unexpected file row: %+v", file)
	}
	content, err := cat.Content(ctx, added.ContentID)
	if err != nil {
		t.Fatalf("Content failed: %v", err)
	}
	if content.Title != "Heat" || content.Kind != "video" || content.TypeName != "movies" {
		t.Fatalf("unexpected content row: %+v", content)
	}

	report, err = cat.Ingest(ctx)
	if err != nil {
		t.Fatalf("second Ingest failed: %v", err)
	}
	if len(report.Added) != 0 {
		t.Fatalf("expected nothing new on rerun, got %+v", report)
	}
}

func TestIngestSkipsKnownOriginal(t *testing.T) {
	cat, db, cfg := newCatalog(t)
	root := cfg.Paths.ContentRoot
	testsupport.SeedFile(t, db, testsupport.FileFixture{OriginalPath: "movies/Heat/original/Heat.mp4"})
	testsupport.WriteFile(t, filepath.Join(root, "movies", "Heat.mp4"), 10)

	report, err := cat.Ingest(context.Background())
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if len(report.Added) != 0 || report.Skipped != 1 {
		t.Fatalf("expected skip, got %+v", report)
	}
	if _, err := os.Stat(filepath.Join(root, "movies", "Heat.mp4")); err != nil {
		t.Fatalf("skipped file must stay in place: %v", err)
	}
}

func TestIngestSeriesNumbersEpisodes(t *testing.T) {
	cat, db, cfg := newCatalog(t)
	ctx := context.Background()
	root := cfg.Paths.ContentRoot
	season := filepath.Join(root, "series", "Show", "s1")
	testsupport.WriteFile(t, filepath.Join(season, "a.mkv"), 10)
	testsupport.WriteFile(t, filepath.Join(season, "b.mkv"), 10)
	testsupport.WriteFile(t, filepath.Join(root, "series", "Show", "extras", "c.mkv"), 10)

	report, err := cat.Ingest(ctx)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if len(report.Added) != 2 {
		t.Fatalf("expected two episodes, got %+v", report.Added)
	}
	if report.Added[0].Title != "Show S1E1" || report.Added[1].Title != "Show S1E2" {
		t.Fatalf("unexpected titles: %+v", report.Added)
	}
	if report.Added[0].OriginalPath != "series/Show/s1/original/a.mkv" {
		t.Fatalf("unexpected path %q", report.Added[0].OriginalPath)
	}

	testsupport.WriteFile(t, filepath.Join(season, "c.mkv"), 10)
	report, err = cat.Ingest(ctx)
	if err != nil {
		t.Fatalf("second Ingest failed: %v", err)
	}
	if len(report.Added) != 1 || report.Added[0].Title != "Show S1E3" {
		t.Fatalf("expected numbering to continue, got %+v", report.Added)
	}

	var episodes int
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM series_episodes`).Scan(&episodes); err != nil {
		t.Fatalf("count episodes: %v", err)
	}
	if episodes != 3 {
		t.Fatalf("expected 3 episode rows, got %d", episodes)
	}
}

func TestAddUpload(t *testing.T) {
	cat, _, cfg := newCatalog(t)
	ctx := context.Background()
	src := filepath.Join(testsupport.BaseDir(cfg), "upload.webm")
	testsupport.WriteFile(t, src, 100)

	added, err := cat.AddUpload(ctx, catalog.Upload{TypeName: "documentaries", Title: "Planet", Description: "d", SourcePath: src})
	if err != nil {
		t.Fatalf("AddUpload failed: %v", err)
	}
	if added.OriginalPath != "documentaries/originals/upload.webm" {
		t.Fatalf("unexpected path %q", added.OriginalPath)
	}
	file, err := cat.LatestFile(ctx, added.ContentID)
	if err != nil {
		t.Fatalf("LatestFile failed: %v", err)
	}
	if file.ID != added.ContentFileID || file.MimeType != "video/webm" {
		t.Fatalf("unexpected latest file: %+v", file)
	}

	_, err = cat.AddUpload(ctx, catalog.Upload{TypeName: "nope", Title: "x", SourcePath: src})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown type, got %v", err)
	}
	_, err = cat.AddUpload(ctx, catalog.Upload{TypeName: "movies", SourcePath: src})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing title, got %v", err)
	}
}

func TestListReadyUsesNewestFile(t *testing.T) {
	cat, db, _ := newCatalog(t)
	ctx := context.Background()

	_, readyID := testsupport.SeedFile(t, db, testsupport.FileFixture{Title: "B Movie", OriginalPath: "movies/B/original/b.mp4", Ready: true})
	testsupport.SeedFile(t, db, testsupport.FileFixture{Title: "A Movie", OriginalPath: "movies/A/original/a.mp4", Ready: true})
	testsupport.SeedFile(t, db, testsupport.FileFixture{Title: "Pending", OriginalPath: "movies/P/original/p.mp4"})

	items, err := cat.ListReady(ctx, "movies")
	if err != nil {
		t.Fatalf("ListReady failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected two ready items, got %d", len(items))
	}
	if items[0].Content.Title != "A Movie" || items[1].File.ID != readyID {
		t.Fatalf("unexpected order: %+v", items)
	}
	if !items[0].File.Ready() {
		t.Fatalf("expected ready file: %+v", items[0].File)
	}

	if _, err := cat.ListReady(ctx, "unknown"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown type, got %v", err)
	}
}

func TestLatestReadyFileAndMissing(t *testing.T) {
	cat, db, _ := newCatalog(t)
	ctx := context.Background()
	contentID, fileID := testsupport.SeedFile(t, db, testsupport.FileFixture{OriginalPath: "movies/X/original/x.mp4", Ready: true})

	content, file, err := cat.LatestReadyFile(ctx, contentID)
	if err != nil {
		t.Fatalf("LatestReadyFile failed: %v", err)
	}
	if content.ID != contentID || file.ID != fileID {
		t.Fatalf("unexpected result %+v %+v", content, file)
	}
	if _, err := cat.File(ctx, 9999); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found marker, got %v", err)
	}
}

func TestTypesAndCategoryDirs(t *testing.T) {
	cat, _, cfg := newCatalog(t)
	ctx := context.Background()
	if _, err := cat.EnsureType(ctx, "music"); err != nil {
		t.Fatalf("EnsureType failed: %v", err)
	}
	if _, err := cat.EnsureType(ctx, "../evil"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := cat.EnsureCategoryDirs(ctx); err != nil {
		t.Fatalf("EnsureCategoryDirs failed: %v", err)
	}
	types, err := cat.Types(ctx)
	if err != nil {
		t.Fatalf("Types failed: %v", err)
	}
	for _, ty := range types {
		if info, err := os.Stat(filepath.Join(cfg.Paths.ContentRoot, ty.Name)); err != nil || !info.IsDir() {
			t.Fatalf("expected directory for %s: %v", ty.Name, err)
		}
	}
}

func TestMimeType(t *testing.T) {
	cases := map[string]string{
		"a.MKV": "video/x-matroska",
		"b.mp4": "video/mp4",
		"c.zzq": "application/octet-stream",
	}
	for name, want := range cases {
		if got := catalog.MimeType(name); got != want {
			t.Fatalf("MimeType(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestAddUploadSanitizesFileName(t *testing.T) {
	cat, _, cfg := newCatalog(t)
	src := filepath.Join(testsupport.BaseDir(cfg), "My:  Film?.mp4")
	testsupport.WriteFile(t, src, 10)

	added, err := cat.AddUpload(context.Background(), catalog.Upload{TypeName: "movies", Title: "My Film", SourcePath: src})
	if err != nil {
		t.Fatalf("AddUpload failed: %v", err)
	}
	if added.OriginalPath != "movies/originals/My- Film.mp4" {
		t.Fatalf("unexpected path %q", added.OriginalPath)
	}
}
