package catalog

import (
	"fmt"
	"time"

	"streamgate/internal/services"
)

// ErrNotFound reports a missing content, content file or type row.
var ErrNotFound = fmt.Errorf("%w: catalog row", services.ErrNotFound)

// Type is a content category.
type Type struct {
	ID    int64
	Name  string
	Count int
}

// Content is one catalog entry.
type Content struct {
	ID          int64
	Title       string
	Description string
	Kind        string
	TypeID      int64
	TypeName    string
	CreatedAt   time.Time
}

// File is one content_files row. Paths are relative to the content root.
type File struct {
	ID           int64
	ContentID    int64
	OriginalPath string
	SizeMB       float64
	MimeType     string
	Status       string
	HLSPath      string
	PreviewPath  string
	PosterPath   string
	Attempts     int
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Ready reports whether all renditions have been published.
func (f *File) Ready() bool {
	return f != nil && f.Status == "ready" && f.HLSPath != "" && f.PreviewPath != "" && f.PosterPath != ""
}

// Item pairs a content row with its newest ready file.
type Item struct {
	Content Content
	File    File
}

// Ingested describes one file picked up by Ingest or AddUpload.
type Ingested struct {
	ContentID     int64
	ContentFileID int64
	Title         string
	TypeName      string
	OriginalPath  string
}

// IngestReport summarizes an Ingest run.
type IngestReport struct {
	Added   []Ingested
	Skipped int
}
