package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"streamgate/internal/fileutil"
	"streamgate/internal/services"
	"streamgate/internal/textutil"
)

const seriesTypeName = "series"

var seasonDirPattern = regexp.MustCompile(`(?i)^s(\d+)$`)

// Ingest imports every loose original under the content root. Files whose
// destination original_path is already catalogued are skipped.
func (c *Catalog) Ingest(ctx context.Context) (IngestReport, error) {
	var report IngestReport
	types, err := c.Types(ctx)
	if err != nil {
		return report, err
	}
	for _, t := range types {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if t.Name == seriesTypeName {
			err = c.ingestSeries(ctx, t, &report)
		} else {
			err = c.ingestCategory(ctx, t, &report)
		}
		if err != nil {
			return report, err
		}
	}
	if len(report.Added) > 0 {
		c.notify()
	}
	return report, nil
}

func (c *Catalog) ingestCategory(ctx context.Context, t Type, report *IngestReport) error {
	base := filepath.Join(c.root, t.Name)
	files, err := looseFiles(base)
	if err != nil {
		return err
	}
	for _, name := range files {
		title := strings.TrimSuffix(name, filepath.Ext(name))
		dir := textutil.SanitizeFileName(title)
		if dir == "" {
			report.Skipped++
			continue
		}
		rel := filepath.Join(t.Name, dir, "original", name)
		known, err := c.originalKnown(ctx, rel)
		if err != nil {
			return err
		}
		if known {
			report.Skipped++
			continue
		}

		var added Ingested
		err = c.moveAndRecord(ctx, filepath.Join(base, name), rel, func(tx *sql.Tx, size int64) error {
			contentID, fileID, err := c.insertPending(ctx, tx, t.ID, title, "", rel, size)
			added = Ingested{ContentID: contentID, ContentFileID: fileID, Title: title, TypeName: t.Name, OriginalPath: filepath.ToSlash(rel)}
			return err
		})
		if err != nil {
			return err
		}
		report.Added = append(report.Added, added)
	}
	return nil
}

func (c *Catalog) ingestSeries(ctx context.Context, t Type, report *IngestReport) error {
	root := filepath.Join(c.root, seriesTypeName)
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read series root: %w", err)
	}

	for _, seriesEntry := range entries {
		if !seriesEntry.IsDir() || strings.HasPrefix(seriesEntry.Name(), ".") {
			continue
		}
		seriesTitle := seriesEntry.Name()
		seriesID, err := c.ensureSeries(ctx, seriesTitle, t.ID)
		if err != nil {
			return err
		}

		seasons, err := os.ReadDir(filepath.Join(root, seriesTitle))
		if err != nil {
			return fmt.Errorf("read series %s: %w", seriesTitle, err)
		}
		for _, seasonEntry := range seasons {
			match := seasonDirPattern.FindStringSubmatch(seasonEntry.Name())
			if !seasonEntry.IsDir() || match == nil {
				continue
			}
			season, err := strconv.Atoi(match[1])
			if err != nil {
				continue
			}
			if err := c.ingestSeason(ctx, t, seriesID, seriesTitle, seasonEntry.Name(), season, report); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Catalog) ingestSeason(ctx context.Context, t Type, seriesID int64, seriesTitle, seasonDir string, season int, report *IngestReport) error {
	seasonPath := filepath.Join(c.root, seriesTypeName, seriesTitle, seasonDir)
	files, err := looseFiles(seasonPath)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}

	var maxEpisode sql.NullInt64
	if err := c.db.QueryRow(ctx,
		`SELECT MAX(episode_number) FROM series_episodes WHERE series_id = ? AND season_number = ?`,
		seriesID, season).Scan(&maxEpisode); err != nil {
		return services.Wrap(services.ErrStoreUnavailable, "catalog", "next episode", "", err)
	}
	episode := int(maxEpisode.Int64) + 1

	for _, name := range files {
		rel := filepath.Join(seriesTypeName, seriesTitle, seasonDir, "original", name)
		known, err := c.originalKnown(ctx, rel)
		if err != nil {
			return err
		}
		if known {
			report.Skipped++
			continue
		}

		title := fmt.Sprintf("%s S%dE%d", seriesTitle, season, episode)
		var added Ingested
		err = c.moveAndRecord(ctx, filepath.Join(seasonPath, name), rel, func(tx *sql.Tx, size int64) error {
			contentID, fileID, err := c.insertPending(ctx, tx, t.ID, title, "", rel, size)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO series_episodes (series_id, season_number, episode_number, content_file_id) VALUES (?, ?, ?, ?)`,
				seriesID, season, episode, fileID); err != nil {
				return services.Wrap(services.ErrStoreUnavailable, "catalog", "insert episode", "", err)
			}
			added = Ingested{ContentID: contentID, ContentFileID: fileID, Title: title, TypeName: t.Name, OriginalPath: filepath.ToSlash(rel)}
			return nil
		})
		if err != nil {
			return err
		}
		report.Added = append(report.Added, added)
		episode++
	}
	return nil
}

func (c *Catalog) ensureSeries(ctx context.Context, title string, typeID int64) (int64, error) {
	if _, err := c.db.Exec(ctx, `INSERT OR IGNORE INTO series (series_title, content_type_id) VALUES (?, ?)`, title, typeID); err != nil {
		return 0, services.Wrap(services.ErrStoreUnavailable, "catalog", "ensure series", "", err)
	}
	var id int64
	if err := c.db.QueryRow(ctx, `SELECT series_id FROM series WHERE series_title = ?`, title).Scan(&id); err != nil {
		return 0, services.Wrap(services.ErrStoreUnavailable, "catalog", "ensure series", "lookup", err)
	}
	return id, nil
}

// Upload describes an administrator upload.
type Upload struct {
	TypeName    string
	Title       string
	Description string
	SourcePath  string
}

// AddUpload moves an uploaded file into <type>/originals/ and queues it.
func (c *Catalog) AddUpload(ctx context.Context, upload Upload) (Ingested, error) {
	title := strings.TrimSpace(upload.Title)
	if title == "" || strings.TrimSpace(upload.TypeName) == "" || upload.SourcePath == "" {
		return Ingested{}, services.Wrap(services.ErrValidation, "catalog", "upload", "title, type and file are required", nil)
	}
	typeID, err := c.typeID(ctx, strings.TrimSpace(upload.TypeName))
	if err != nil {
		return Ingested{}, services.Wrap(services.ErrValidation, "catalog", "upload", fmt.Sprintf("unknown type %q", upload.TypeName), err)
	}
	info, err := os.Stat(upload.SourcePath)
	if err != nil || !info.Mode().IsRegular() {
		return Ingested{}, services.Wrap(services.ErrValidation, "catalog", "upload", "source is not a regular file", err)
	}

	name := textutil.SanitizeFileName(filepath.Base(upload.SourcePath))
	if name == "" || name == filepath.Ext(name) {
		return Ingested{}, services.Wrap(services.ErrValidation, "catalog", "upload", "file name has no usable characters", nil)
	}
	rel := filepath.Join(strings.TrimSpace(upload.TypeName), "originals", name)
	known, err := c.originalKnown(ctx, rel)
	if err != nil {
		return Ingested{}, err
	}
	if known {
		return Ingested{}, services.Wrap(services.ErrValidation, "catalog", "upload", fmt.Sprintf("%s already exists", filepath.ToSlash(rel)), nil)
	}

	added := Ingested{Title: title, TypeName: upload.TypeName, OriginalPath: filepath.ToSlash(rel)}
	err = c.moveAndRecord(ctx, upload.SourcePath, rel, func(tx *sql.Tx, size int64) error {
		var err error
		added.ContentID, added.ContentFileID, err = c.insertPending(ctx, tx, typeID, title, upload.Description, rel, size)
		return err
	})
	if err != nil {
		return Ingested{}, err
	}
	c.notify()
	return added, nil
}

// moveAndRecord moves src to rel under the root and runs record in a
// transaction. The move is undone when the transaction fails.
func (c *Catalog) moveAndRecord(ctx context.Context, src, rel string, record func(tx *sql.Tx, size int64) error) error {
	dest := filepath.Join(c.root, rel)
	if err := fileutil.MoveFile(src, dest); err != nil {
		return err
	}
	info, err := os.Stat(dest)
	if err != nil {
		return fmt.Errorf("stat moved original: %w", err)
	}
	if err := c.db.WithTx(ctx, func(tx *sql.Tx) error {
		return record(tx, info.Size())
	}); err != nil {
		_ = fileutil.MoveFile(dest, src)
		return err
	}
	return nil
}

// looseFiles lists regular, non-hidden files directly inside dir.
func looseFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}
