package gateway

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"streamgate/internal/catalog"
	"streamgate/internal/quota"
	"streamgate/internal/services"
)

// UsageView is the JSON shape of a user's quota.
type UsageView struct {
	TotalGB     float64   `json:"totalGb"`
	UsedGB      float64   `json:"usedGb"`
	RemainingGB float64   `json:"remainingGb"`
	UsedPercent float64   `json:"usedPercent"`
	CanUse      bool      `json:"canUse"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// NewUsageView converts a ledger snapshot.
func NewUsageView(u quota.Usage) UsageView {
	return UsageView{
		TotalGB:     u.TotalGB,
		UsedGB:      u.UsedGB,
		RemainingGB: u.RemainingGB,
		UsedPercent: u.UsedPercent(),
		CanUse:      u.CanUse(),
		LastUpdated: u.LastUpdated,
	}
}

// PlayerView describes the newest ready rendition of a content entry.
type PlayerView struct {
	ContentID     int64     `json:"contentId"`
	ContentFileID int64     `json:"contentFileId"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Kind          string    `json:"kind"`
	Type          string    `json:"type"`
	ManifestURL   string    `json:"manifestUrl"`
	PreviewURL    string    `json:"previewUrl"`
	PosterURL     string    `json:"posterUrl"`
	TokenExpires  time.Time `json:"tokenExpires"`
	Quota         UsageView `json:"quota"`
}

// CatalogItem is one ready entry in a type listing.
type CatalogItem struct {
	ContentID   int64  `json:"contentId"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	PreviewURL  string `json:"previewUrl"`
	PosterURL   string `json:"posterUrl"`
}

// CatalogView lists the ready entries of a type.
type CatalogView struct {
	Type  string        `json:"type"`
	Items []CatalogItem `json:"items"`
	Quota UsageView     `json:"quota"`
}

// Quota returns the user's usage, provisioning the default entitlement on
// first sight.
func (g *Gateway) Quota(ctx context.Context, userID int64) (quota.Usage, error) {
	usage, err := g.ledger.Ensure(ctx, userID, g.defaultGB)
	if err != nil {
		return quota.Usage{}, err
	}
	return usage, nil
}

// Player issues a fresh stream token for the newest ready file of contentID.
func (g *Gateway) Player(ctx context.Context, userID, contentID int64) (PlayerView, error) {
	ctx = services.WithUserID(ctx, userID)
	content, file, err := g.catalog.LatestReadyFile(ctx, contentID)
	if err != nil {
		return PlayerView{}, g.lookupError(ctx, err, 0)
	}
	usage, err := g.Quota(ctx, userID)
	if err != nil {
		return PlayerView{}, err
	}

	now := g.now()
	token := g.codec.Issue(userID, file.ID, now)
	g.cache.add(*file)
	return PlayerView{
		ContentID:     content.ID,
		ContentFileID: file.ID,
		Title:         content.Title,
		Description:   content.Description,
		Kind:          content.Kind,
		Type:          content.TypeName,
		ManifestURL:   ManifestURL(file.ID, filepath.Base(file.HLSPath), token),
		PreviewURL:    MediaURL(file.PreviewPath),
		PosterURL:     MediaURL(file.PosterPath),
		TokenExpires:  now.Add(g.codec.TTL()).UTC(),
		Quota:         NewUsageView(usage),
	}, nil
}

// Catalog lists the ready entries of typeName.
func (g *Gateway) Catalog(ctx context.Context, userID int64, typeName string) (CatalogView, error) {
	ctx = services.WithUserID(ctx, userID)
	items, err := g.catalog.ListReady(ctx, typeName)
	if err != nil {
		return CatalogView{}, g.lookupError(ctx, err, 0)
	}
	usage, err := g.Quota(ctx, userID)
	if err != nil {
		return CatalogView{}, err
	}

	view := CatalogView{Type: typeName, Items: make([]CatalogItem, 0, len(items)), Quota: NewUsageView(usage)}
	for _, item := range items {
		view.Items = append(view.Items, catalogItem(item))
	}
	return view, nil
}

func catalogItem(item catalog.Item) CatalogItem {
	return CatalogItem{
		ContentID:   item.Content.ID,
		Title:       item.Content.Title,
		Description: item.Content.Description,
		PreviewURL:  MediaURL(item.File.PreviewPath),
		PosterURL:   MediaURL(item.File.PosterPath),
	}
}

// ManifestURL is the gateway path of a rendition manifest.
func ManifestURL(contentFileID int64, manifestName, token string) string {
	return fmt.Sprintf("/content/hls/%d/%s?token=%s", contentFileID, url.PathEscape(manifestName), url.QueryEscape(token))
}

// MediaURL is the static path of a poster or preview.
func MediaURL(rel string) string {
	if rel == "" {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return "/media/" + strings.Join(parts, "/")
}
