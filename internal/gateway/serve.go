package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"streamgate/internal/assets"
	"streamgate/internal/catalog"
	"streamgate/internal/logging"
	"streamgate/internal/quota"
	"streamgate/internal/services"
)

const (
	manifestContentType = "application/vnd.apple.mpegurl"
	segmentContentType  = "video/mp2t"
)

// SegmentRequest identifies one HLS file requested with a stream token.
type SegmentRequest struct {
	// SessionUserID is the user the login session authenticated.
	SessionUserID int64
	// ContentFileID is the id named in the request path. Zero skips the check.
	ContentFileID int64
	Token         string
	Filename      string
}

// ServeSegment authorizes and meters one manifest or segment of a rendition.
// Manifests are returned with the token appended to every segment URI and the
// rewritten size is what gets debited.
func (g *Gateway) ServeSegment(ctx context.Context, req SegmentRequest) (*Delivery, error) {
	ctx = services.WithUserID(ctx, req.SessionUserID)
	grant, err := g.codec.Verify(req.Token, g.now())
	if err != nil {
		return nil, g.reject(ctx, "token", services.Wrap(services.ErrUnauthorized, "gateway", "verify token", "", err))
	}
	if grant.UserID != req.SessionUserID {
		return nil, g.reject(ctx, "token", services.Wrap(services.ErrUnauthorized, "gateway", "verify token", "token issued to another user", nil),
			logging.Int64("token_user_id", grant.UserID))
	}
	if req.ContentFileID != 0 && req.ContentFileID != grant.ContentFileID {
		return nil, g.reject(ctx, "token", services.Wrap(services.ErrUnauthorized, "gateway", "verify token", "token issued for another file", nil),
			logging.ContentFileID(req.ContentFileID))
	}

	file, err := g.lookupFile(ctx, grant.ContentFileID)
	if err != nil {
		return nil, g.lookupError(ctx, err, grant.ContentFileID)
	}
	if file.HLSPath == "" {
		return nil, g.reject(ctx, "not_found", services.Wrap(services.ErrNotFound, "gateway", "lookup", "rendition not published", nil),
			logging.ContentFileID(file.ID))
	}

	// Filenames are confined to the rendition's own directory, not the
	// whole content root.
	hlsDir := filepath.Dir(file.HLSPath)
	rel := filepath.Join(hlsDir, req.Filename)
	if _, err := assets.Resolve(filepath.Join(g.root, hlsDir), req.Filename); err != nil {
		return nil, g.reject(ctx, "traversal", err,
			logging.ContentFileID(file.ID),
			logging.String("filename", req.Filename))
	}
	manifestName := filepath.Base(file.HLSPath)
	isManifest := req.Filename == manifestName
	if !isManifest && !segmentPattern(manifestName).MatchString(req.Filename) {
		return nil, g.reject(ctx, "not_found", services.Wrap(services.ErrNotFound, "gateway", "resolve", "file is not part of the rendition", nil),
			logging.ContentFileID(file.ID),
			logging.String("filename", req.Filename))
	}

	asset, err := assets.Open(g.root, rel)
	if err != nil {
		return nil, g.reject(ctx, "not_found", err, logging.ContentFileID(file.ID))
	}

	delivery := &Delivery{
		Body:        asset,
		Size:        asset.Size,
		ContentType: segmentContentType,
		Filename:    req.Filename,
		ModTime:     modTime(asset),
	}
	if isManifest {
		playlist, err := io.ReadAll(asset)
		_ = asset.Close()
		if err != nil {
			return nil, services.Wrap(services.ErrNotFound, "gateway", "read manifest", "", err)
		}
		rewritten := rewriteManifest(playlist, req.Token)
		delivery.Body = io.NopCloser(bytes.NewReader(rewritten))
		delivery.Size = int64(len(rewritten))
		delivery.ContentType = manifestContentType
	}

	usage, err := g.charge(ctx, quota.Charge{
		UserID:        req.SessionUserID,
		ContentFileID: file.ID,
		Bytes:         delivery.Size,
		Action:        quota.ActionStream,
	})
	if err != nil {
		_ = delivery.Close()
		return nil, err
	}
	delivery.Usage = usage
	return delivery, nil
}

// ServeOriginal authorizes and meters a download of the newest original of
// contentID.
func (g *Gateway) ServeOriginal(ctx context.Context, userID, contentID int64) (*Delivery, error) {
	ctx = services.WithUserID(ctx, userID)
	file, err := g.catalog.LatestFile(ctx, contentID)
	if err != nil {
		return nil, g.lookupError(ctx, err, 0, logging.Int64("content_id", contentID))
	}
	asset, err := assets.Open(g.root, file.OriginalPath)
	if err != nil {
		reason := "not_found"
		if errors.Is(err, services.ErrPathTraversal) {
			reason = "traversal"
		}
		return nil, g.reject(ctx, reason, err, logging.ContentFileID(file.ID))
	}

	usage, err := g.charge(ctx, quota.Charge{
		UserID:        userID,
		ContentFileID: file.ID,
		Bytes:         asset.Size,
		Action:        quota.ActionDownload,
	})
	if err != nil {
		_ = asset.Close()
		return nil, err
	}
	contentType := file.MimeType
	if contentType == "" {
		contentType = catalog.MimeType(file.OriginalPath)
	}
	return &Delivery{
		Body:        asset,
		Size:        asset.Size,
		ContentType: contentType,
		Filename:    filepath.Base(file.OriginalPath),
		ModTime:     modTime(asset),
		Usage:       usage,
	}, nil
}

// Media opens a poster or preview asset. These are catalogue art and are not
// metered; any other path under the root is refused.
func (g *Gateway) Media(ctx context.Context, rel string) (*Delivery, error) {
	clean := path.Clean("/" + strings.ReplaceAll(rel, "\\", "/"))
	if _, err := assets.Resolve(g.root, strings.TrimPrefix(rel, "/")); err != nil {
		return nil, g.reject(ctx, "traversal", err, logging.String("path", rel))
	}
	dir := path.Base(path.Dir(clean))
	ext := strings.ToLower(path.Ext(clean))
	if !((dir == "poster" && ext == ".jpg") || (dir == "preview" && ext == ".mp4")) {
		return nil, g.reject(ctx, "not_found", services.Wrap(services.ErrNotFound, "gateway", "media", "not a catalogue asset", nil),
			logging.String("path", rel))
	}
	if strings.Contains(path.Base(clean), ".partial.") {
		return nil, services.Wrap(services.ErrNotFound, "gateway", "media", "asset not published", nil)
	}
	asset, err := assets.Open(g.root, strings.TrimPrefix(clean, "/"))
	if err != nil {
		return nil, g.reject(ctx, "not_found", err, logging.String("path", rel))
	}
	return &Delivery{
		Body:        asset,
		Size:        asset.Size,
		ContentType: catalog.MimeType(clean),
		Filename:    path.Base(clean),
		ModTime:     modTime(asset),
	}, nil
}

func (g *Gateway) lookupError(ctx context.Context, err error, fileID int64, attrs ...logging.Attr) error {
	if fileID != 0 {
		attrs = append(attrs, logging.ContentFileID(fileID))
	}
	if errors.Is(err, services.ErrNotFound) {
		return g.reject(ctx, "not_found", err, attrs...)
	}
	refusals.WithLabelValues("store").Inc()
	if errors.Is(err, services.ErrStoreUnavailable) {
		return err
	}
	return services.Wrap(services.ErrStoreUnavailable, "gateway", "lookup", "", err)
}

// segmentPattern matches the segment names the worker writes next to a
// manifest: <base>_NNN.ts.
func segmentPattern(manifestName string) *regexp.Regexp {
	base := strings.TrimSuffix(manifestName, filepath.Ext(manifestName))
	return regexp.MustCompile(`^` + regexp.QuoteMeta(base) + `_[0-9]{3,}\.ts$`)
}

func modTime(asset *assets.Asset) time.Time {
	if info, err := asset.Stat(); err == nil {
		return info.ModTime()
	}
	return time.Time{}
}
