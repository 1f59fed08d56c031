package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"streamgate/internal/gateway"
	"streamgate/internal/logging"
	"streamgate/internal/services"
)

const maxRedeemBody = 4 << 10

type redeemRequest struct {
	Passcode string `json:"passcode"`
}

type redeemResponse struct {
	Passcode string            `json:"passcode"`
	QuotaGB  float64           `json:"quotaGb"`
	Quota    gateway.UsageView `json:"quota"`
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": "database unreachable"})
		return
	}
	status, err := s.db.Status()
	if err != nil || !status.Current() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": "schema not current"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "schemaVersion": status.Version})
}

func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	userID, _ := services.UserIDFromContext(r.Context())
	fileID, ok := pathID(w, r, "contentFileID")
	if !ok {
		return
	}
	filename, ok := pathParam(w, r, "file")
	if !ok {
		return
	}
	delivery, err := s.gateway.ServeSegment(r.Context(), gateway.SegmentRequest{
		SessionUserID: userID,
		ContentFileID: fileID,
		Token:         r.URL.Query().Get("token"),
		Filename:      filename,
	})
	if err != nil {
		writeGatewayError(w, r, s.logger, err)
		return
	}
	s.writeDelivery(w, r, delivery, "")
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	userID, _ := services.UserIDFromContext(r.Context())
	contentID, ok := pathID(w, r, "contentID")
	if !ok {
		return
	}
	delivery, err := s.gateway.ServeOriginal(r.Context(), userID, contentID)
	if err != nil {
		writeGatewayError(w, r, s.logger, err)
		return
	}
	s.writeDelivery(w, r, delivery, "attachment")
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	rel, ok := pathParam(w, r, "*")
	if !ok {
		return
	}
	delivery, err := s.gateway.Media(r.Context(), rel)
	if err != nil {
		writeGatewayError(w, r, s.logger, err)
		return
	}
	s.writeDelivery(w, r, delivery, "")
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	userID, _ := services.UserIDFromContext(r.Context())
	view, err := s.gateway.Catalog(r.Context(), userID, chi.URLParam(r, "type"))
	if err != nil {
		writeGatewayError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	userID, _ := services.UserIDFromContext(r.Context())
	contentID, ok := pathID(w, r, "contentID")
	if !ok {
		return
	}
	view, err := s.gateway.Player(r.Context(), userID, contentID)
	if err != nil {
		writeGatewayError(w, r, s.logger, err)
		return
	}
	if !strings.EqualFold(view.Type, chi.URLParam(r, "type")) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	userID, _ := services.UserIDFromContext(r.Context())
	usage, err := s.gateway.Quota(r.Context(), userID)
	if err != nil {
		writeGatewayError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, gateway.NewUsageView(usage))
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	userID, _ := services.UserIDFromContext(r.Context())
	var req redeemRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRedeemBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	redeemed, err := s.passcodes.Redeem(r.Context(), userID, req.Passcode)
	if err != nil {
		writeGatewayError(w, r, s.logger, err)
		return
	}
	logging.WithContext(r.Context(), s.logger).Info("passcode redeemed",
		logging.String("passcode", redeemed.Code),
		logging.Any("quota_gb", redeemed.QuotaGB),
	)
	writeJSON(w, http.StatusOK, redeemResponse{
		Passcode: redeemed.Code,
		QuotaGB:  redeemed.QuotaGB,
		Quota:    gateway.NewUsageView(redeemed.Usage),
	})
}

// writeDelivery streams an authorized body. The debit has already happened;
// a client that disconnects mid-body is not refunded.
func (s *Server) writeDelivery(w http.ResponseWriter, r *http.Request, d *gateway.Delivery, disposition string) {
	defer d.Close()
	header := w.Header()
	header.Set("Content-Type", d.ContentType)
	header.Set("Content-Length", strconv.FormatInt(d.Size, 10))
	header.Set("Accept-Ranges", "none")
	header.Set("X-Content-Type-Options", "nosniff")
	if !d.ModTime.IsZero() {
		header.Set("Last-Modified", d.ModTime.UTC().Format(http.TimeFormat))
	}
	if disposition != "" && d.Filename != "" {
		header.Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": d.Filename}))
	}
	if d.Usage.UserID != 0 {
		header.Set("Cache-Control", "private, no-store")
	} else {
		header.Set("Cache-Control", "public, max-age=3600")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, d.Body); err != nil && !errors.Is(err, context.Canceled) {
		logging.WithContext(r.Context(), s.logger).Debug("response body interrupted",
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	}
}

// pathParam returns the unescaped route parameter. chi matches against the
// raw path when one is present, so encoded separators arrive still escaped.
func pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	value := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return value, true
	}
	value, err := url.PathUnescape(value)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return "", false
	}
	return value, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, "not found")
		return 0, false
	}
	return id, true
}
