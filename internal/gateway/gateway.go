package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"streamgate/internal/catalog"
	"streamgate/internal/config"
	"streamgate/internal/logging"
	"streamgate/internal/quota"
	"streamgate/internal/services"
	"streamgate/internal/streamtoken"
)

var (
	// ErrUnauthorized is returned when the token or session does not grant access.
	ErrUnauthorized = services.ErrUnauthorized
	// ErrNotFound is returned when no servable file exists.
	ErrNotFound = services.ErrNotFound
	// ErrPathTraversal is returned when a request names a path outside the root.
	ErrPathTraversal = services.ErrPathTraversal
	// ErrQuotaExceeded is returned when the debit does not fit.
	ErrQuotaExceeded = services.ErrQuotaExceeded
	// ErrStoreUnavailable is returned when the ledger or catalog cannot be read.
	ErrStoreUnavailable = services.ErrStoreUnavailable
)

// Delivery is an authorized response body. The caller must Close it.
type Delivery struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
	Filename    string
	ModTime     time.Time
	// Usage is the ledger state after the debit. Zero for unmetered media.
	Usage quota.Usage
}

// Close releases the body.
func (d *Delivery) Close() error {
	if d == nil || d.Body == nil {
		return nil
	}
	return d.Body.Close()
}

// Gateway serves metered content.
type Gateway struct {
	catalog   *catalog.Catalog
	ledger    *quota.Ledger
	codec     *streamtoken.Codec
	root      string
	defaultGB float64
	cache     *fileCache
	logger    *slog.Logger
	now       func() time.Time
}

// New builds a Gateway.
func New(cfg *config.Config, cat *catalog.Catalog, ledger *quota.Ledger, codec *streamtoken.Codec, logger *slog.Logger) *Gateway {
	return &Gateway{
		catalog:   cat,
		ledger:    ledger,
		codec:     codec,
		root:      cfg.Paths.ContentRoot,
		defaultGB: cfg.Quota.DefaultGB,
		cache: newFileCache(cfg.Server.LookupCacheSize,
			time.Duration(cfg.Server.LookupCacheTTLSeconds)*time.Second),
		logger: logging.NewComponentLogger(logger, "gateway"),
		now:    time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (g *Gateway) WithClock(now func() time.Time) *Gateway {
	g.now = now
	return g
}

// InvalidateCache drops cached content file rows.
func (g *Gateway) InvalidateCache() {
	g.cache.purge()
}

// Forget drops the cached row for one content file so the next request
// re-reads it. The worker calls it whenever a job changes state.
func (g *Gateway) Forget(contentFileID int64) {
	g.cache.remove(contentFileID)
}

// lookupFile returns the content file row, consulting the cache first.
func (g *Gateway) lookupFile(ctx context.Context, id int64) (catalog.File, error) {
	if file, ok := g.cache.get(id); ok {
		return file, nil
	}
	file, err := g.catalog.File(ctx, id)
	if err != nil {
		return catalog.File{}, err
	}
	g.cache.add(*file)
	return *file, nil
}

// charge debits the served size. A user without a ledger row has no
// entitlement and is refused like one whose quota is spent.
func (g *Gateway) charge(ctx context.Context, charge quota.Charge) (quota.Usage, error) {
	usage, err := g.ledger.Consume(ctx, charge)
	switch {
	case err == nil:
		bytesAuthorized.WithLabelValues(string(charge.Action)).Add(float64(charge.Bytes))
		return usage, nil
	case errors.Is(err, quota.ErrNotFound), errors.Is(err, services.ErrQuotaExceeded):
		refusals.WithLabelValues("quota").Inc()
		return quota.Usage{}, services.Wrap(services.ErrQuotaExceeded, "gateway", "debit", "", nil)
	default:
		refusals.WithLabelValues("store").Inc()
		if errors.Is(err, services.ErrStoreUnavailable) {
			return quota.Usage{}, err
		}
		return quota.Usage{}, services.Wrap(services.ErrStoreUnavailable, "gateway", "debit", "", err)
	}
}

// reject logs a refused request and returns err unchanged.
func (g *Gateway) reject(ctx context.Context, reason string, err error, attrs ...logging.Attr) error {
	refusals.WithLabelValues(reason).Inc()
	eventType, hint := services.Details(err)
	attrs = append(attrs,
		logging.Error(err),
		logging.String(logging.FieldErrorHint, hint),
	)
	logger := logging.WithContext(ctx, g.logger)
	if errors.Is(err, services.ErrPathTraversal) || errors.Is(err, services.ErrUnauthorized) {
		attrs = append(attrs, logging.Alert("security"))
		logging.WarnWithContext(logger, "request rejected", eventType, attrs...)
		return err
	}
	logger.Debug("request refused", logging.Args(append(attrs, logging.String(logging.FieldEventType, eventType))...)...)
	return err
}
