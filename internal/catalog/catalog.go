package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"streamgate/internal/database"
	"streamgate/internal/services"
)

// Catalog reads and writes catalog rows and the content tree under root.
type Catalog struct {
	db       *database.DB
	root     string
	now      func() time.Time
	onIngest func()
}

// New returns a catalog over db rooted at contentRoot.
func New(db *database.DB, contentRoot string) *Catalog {
	return &Catalog{db: db, root: contentRoot, now: time.Now}
}

// Root returns the content root.
func (c *Catalog) Root() string {
	return c.root
}

// OnIngest registers fn to run after new pending files are committed. The
// worker uses it to wake up without waiting for its poll interval.
func (c *Catalog) OnIngest(fn func()) {
	c.onIngest = fn
}

func (c *Catalog) notify() {
	if c.onIngest != nil {
		c.onIngest()
	}
}

// EnsureType returns the id of the named type, creating it when missing.
func (c *Catalog) EnsureType(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return 0, services.Wrap(services.ErrValidation, "catalog", "ensure type", fmt.Sprintf("invalid type name %q", name), nil)
	}
	if _, err := c.db.Exec(ctx, `INSERT OR IGNORE INTO content_types (content_type_name) VALUES (?)`, name); err != nil {
		return 0, services.Wrap(services.ErrStoreUnavailable, "catalog", "ensure type", "", err)
	}
	return c.typeID(ctx, name)
}

func (c *Catalog) typeID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := c.db.QueryRow(ctx, `SELECT content_type_id FROM content_types WHERE content_type_name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, services.Wrap(services.ErrStoreUnavailable, "catalog", "lookup type", "", err)
	}
	return id, nil
}

// Types lists content types with the number of content rows in each.
func (c *Catalog) Types(ctx context.Context) ([]Type, error) {
	rows, err := c.db.Query(ctx, `SELECT ct.content_type_id, ct.content_type_name, COUNT(c.content_id)
		FROM content_types ct
		LEFT JOIN content c ON c.content_type_id = ct.content_type_id
		GROUP BY ct.content_type_id
		ORDER BY ct.content_type_name`)
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "catalog", "list types", "", err)
	}
	defer rows.Close()

	var types []Type
	for rows.Next() {
		var t Type
		if err := rows.Scan(&t.ID, &t.Name, &t.Count); err != nil {
			return nil, services.Wrap(services.ErrStoreUnavailable, "catalog", "scan type", "", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// EnsureCategoryDirs creates one directory per content type under the root.
func (c *Catalog) EnsureCategoryDirs(ctx context.Context) error {
	types, err := c.Types(ctx)
	if err != nil {
		return err
	}
	for _, t := range types {
		if err := os.MkdirAll(filepath.Join(c.root, t.Name), 0o755); err != nil {
			return fmt.Errorf("create category %s: %w", t.Name, err)
		}
	}
	return nil
}

const fileColumns = `content_file_id, content_id, original_path, file_size_mb, mime_type, processing_status,
	hls_path, preview_path, poster_path, attempts, last_error, created_at, updated_at`

// File returns the content file with id.
func (c *Catalog) File(ctx context.Context, id int64) (*File, error) {
	file, err := scanFile(c.db.QueryRow(ctx, `SELECT `+fileColumns+` FROM content_files WHERE content_file_id = ?`, id))
	return fileResult(file, err, "file")
}

// LatestFile returns the newest content file for contentID regardless of status.
func (c *Catalog) LatestFile(ctx context.Context, contentID int64) (*File, error) {
	file, err := scanFile(c.db.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM content_files WHERE content_id = ? ORDER BY content_file_id DESC LIMIT 1`,
		contentID))
	return fileResult(file, err, "latest file")
}

// LatestReadyFile returns the content row and its newest ready file.
func (c *Catalog) LatestReadyFile(ctx context.Context, contentID int64) (*Content, *File, error) {
	content, err := c.Content(ctx, contentID)
	if err != nil {
		return nil, nil, err
	}
	file, err := scanFile(c.db.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM content_files
		 WHERE content_id = ? AND processing_status = 'ready'
		 ORDER BY content_file_id DESC LIMIT 1`,
		contentID))
	file, err = fileResult(file, err, "latest ready file")
	if err != nil {
		return nil, nil, err
	}
	return content, file, nil
}

// Content returns the content row with id.
func (c *Catalog) Content(ctx context.Context, id int64) (*Content, error) {
	var (
		content     Content
		description sql.NullString
		createdRaw  sql.NullString
	)
	err := c.db.QueryRow(ctx, `SELECT c.content_id, c.content_title, c.content_description, c.content_kind,
			c.content_type_id, ct.content_type_name, c.created_at
		FROM content c JOIN content_types ct ON ct.content_type_id = c.content_type_id
		WHERE c.content_id = ?`, id).
		Scan(&content.ID, &content.Title, &description, &content.Kind, &content.TypeID, &content.TypeName, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "catalog", "content", "", err)
	}
	content.Description = description.String
	if ts, err := database.ParseTime(createdRaw.String); err == nil {
		content.CreatedAt = ts
	}
	return &content, nil
}

// ListReady lists content of typeName whose newest file is ready, ordered by title.
func (c *Catalog) ListReady(ctx context.Context, typeName string) ([]Item, error) {
	if _, err := c.typeID(ctx, typeName); err != nil {
		return nil, err
	}
	rows, err := c.db.Query(ctx, `SELECT c.content_id, c.content_title, c.content_description, c.content_kind,
			c.content_type_id, ct.content_type_name, c.created_at,
			cf.content_file_id, cf.content_id, cf.original_path, cf.file_size_mb, cf.mime_type, cf.processing_status,
			cf.hls_path, cf.preview_path, cf.poster_path, cf.attempts, cf.last_error, cf.created_at, cf.updated_at
		FROM content c
		JOIN content_types ct ON ct.content_type_id = c.content_type_id
		JOIN content_files cf ON cf.content_id = c.content_id
		WHERE ct.content_type_name = ?
		  AND cf.processing_status = 'ready'
		  AND cf.content_file_id = (SELECT MAX(content_file_id) FROM content_files WHERE content_id = c.content_id)
		ORDER BY c.content_title, c.content_id`, typeName)
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "catalog", "list ready", "", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			item        Item
			description sql.NullString
			createdRaw  sql.NullString
			f           fileScan
		)
		dest := append([]any{&item.Content.ID, &item.Content.Title, &description, &item.Content.Kind,
			&item.Content.TypeID, &item.Content.TypeName, &createdRaw}, f.targets()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, services.Wrap(services.ErrStoreUnavailable, "catalog", "scan item", "", err)
		}
		item.Content.Description = description.String
		if ts, err := database.ParseTime(createdRaw.String); err == nil {
			item.Content.CreatedAt = ts
		}
		item.File = f.file()
		items = append(items, item)
	}
	return items, rows.Err()
}

// insertPending adds a content row and its pending file inside tx.
func (c *Catalog) insertPending(ctx context.Context, tx *sql.Tx, typeID int64, title, description, rel string, sizeBytes int64) (int64, int64, error) {
	now := database.FormatTime(c.now())
	res, err := tx.ExecContext(ctx,
		`INSERT INTO content (content_title, content_description, content_kind, content_type_id, created_at)
		 VALUES (?, ?, 'video', ?, ?)`,
		title, database.NullableString(description), typeID, now)
	if err != nil {
		return 0, 0, services.Wrap(services.ErrStoreUnavailable, "catalog", "insert content", "", err)
	}
	contentID, err := res.LastInsertId()
	if err != nil {
		return 0, 0, services.Wrap(services.ErrStoreUnavailable, "catalog", "insert content", "last id", err)
	}
	res, err = tx.ExecContext(ctx,
		`INSERT INTO content_files (content_id, original_path, file_size_mb, mime_type, processing_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'pending', ?, ?)`,
		contentID, filepath.ToSlash(rel), sizeMB(sizeBytes), MimeType(rel), now, now)
	if err != nil {
		return 0, 0, services.Wrap(services.ErrStoreUnavailable, "catalog", "insert content file", "", err)
	}
	fileID, err := res.LastInsertId()
	if err != nil {
		return 0, 0, services.Wrap(services.ErrStoreUnavailable, "catalog", "insert content file", "last id", err)
	}
	return contentID, fileID, nil
}

func (c *Catalog) originalKnown(ctx context.Context, rel string) (bool, error) {
	var one int
	err := c.db.QueryRow(ctx, `SELECT 1 FROM content_files WHERE original_path = ?`, filepath.ToSlash(rel)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, services.Wrap(services.ErrStoreUnavailable, "catalog", "lookup original", "", err)
	}
	return true, nil
}

func sizeMB(bytes int64) float64 {
	mb := float64(bytes) / (1 << 20)
	return float64(int64(mb*100+0.5)) / 100
}

type fileScan struct {
	id, contentID                   int64
	original                        string
	size                            float64
	mimeType                        sql.NullString
	status                          string
	hls, preview, poster, lastError sql.NullString
	attempts                        int
	createdRaw, updatedRaw          sql.NullString
}

func (f *fileScan) targets() []any {
	return []any{&f.id, &f.contentID, &f.original, &f.size, &f.mimeType, &f.status,
		&f.hls, &f.preview, &f.poster, &f.attempts, &f.lastError, &f.createdRaw, &f.updatedRaw}
}

func (f *fileScan) file() File {
	file := File{
		ID:           f.id,
		ContentID:    f.contentID,
		OriginalPath: f.original,
		SizeMB:       f.size,
		MimeType:     f.mimeType.String,
		Status:       f.status,
		HLSPath:      f.hls.String,
		PreviewPath:  f.preview.String,
		PosterPath:   f.poster.String,
		Attempts:     f.attempts,
		LastError:    f.lastError.String,
	}
	if ts, err := database.ParseTime(f.createdRaw.String); err == nil {
		file.CreatedAt = ts
	}
	if ts, err := database.ParseTime(f.updatedRaw.String); err == nil {
		file.UpdatedAt = ts
	}
	return file
}

func scanFile(scanner database.Scanner) (*File, error) {
	var f fileScan
	if err := scanner.Scan(f.targets()...); err != nil {
		return nil, err
	}
	file := f.file()
	return &file, nil
}

func fileResult(file *File, err error, op string) (*File, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, services.Wrap(services.ErrStoreUnavailable, "catalog", op, "", err)
	}
	return file, nil
}
