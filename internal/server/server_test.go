package server_test

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"streamgate/internal/catalog"
	"streamgate/internal/config"
	"streamgate/internal/database"
	"streamgate/internal/gateway"
	"streamgate/internal/logging"
	"streamgate/internal/passcode"
	"streamgate/internal/quota"
	"streamgate/internal/server"
	"streamgate/internal/streamtoken"
	"streamgate/internal/testsupport"
)

const (
	viewer   = int64(7)
	original = "movies/Film/original/Film.mp4"
	playlist = "#EXTM3U\n#EXTINF:6.0,\nFilm_000.ts\n#EXT-X-ENDLIST\n"
)

type harness struct {
	cfg       *config.Config
	db        *database.DB
	ledger    *quota.Ledger
	passcodes *passcode.Service
	srv       *server.Server
	http      *httptest.Server
	contentID int64
	fileID    int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Server.AllowedOrigins = []string{"https://app.example.com"}
	db := testsupport.MustOpenDB(t, cfg)
	ledger := quota.NewLedger(db)
	codec, err := streamtoken.New(cfg.Stream.Secret, cfg.TokenTTL())
	if err != nil {
		t.Fatalf("streamtoken.New: %v", err)
	}
	cat := catalog.New(db, cfg.Paths.ContentRoot)

	contentID, fileID := testsupport.SeedFile(t, db, testsupport.FileFixture{Title: "Film", OriginalPath: original, Ready: true})
	root := cfg.Paths.ContentRoot
	hls, preview, poster := testsupport.Renditions(original)
	if err := os.MkdirAll(filepath.Join(root, filepath.Dir(hls)), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, hls), []byte(playlist), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	testsupport.WriteFile(t, filepath.Join(root, filepath.Dir(hls), "Film_000.ts"), 4096)
	testsupport.WriteFile(t, filepath.Join(root, preview), 512)
	testsupport.WriteFile(t, filepath.Join(root, poster), 128)
	testsupport.WriteFile(t, filepath.Join(root, original), 2048)

	passcodes := passcode.New(db, ledger, cfg.Quota.DefaultGB)
	srv := server.New(server.Deps{
		Config:    cfg,
		DB:        db,
		Gateway:   gateway.New(cfg, cat, ledger, codec, logging.NewNop()),
		Passcodes: passcodes,
		Logger:    logging.NewNop(),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &harness{
		cfg:       cfg,
		db:        db,
		ledger:    ledger,
		passcodes: passcodes,
		srv:       srv,
		http:      ts,
		contentID: contentID,
		fileID:    fileID,
	}
}

func (h *harness) session(t *testing.T, userID int64) string {
	t.Helper()
	token, err := server.IssueSession(h.cfg.Session.Secret, userID, time.Hour)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	return token
}

func (h *harness) do(t *testing.T, method, path, session string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, h.http.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if session != "" {
		req.Header.Set("Authorization", "Bearer "+session)
	}
	resp, err := h.http.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return data
}

func decode(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func errorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	var payload map[string]string
	decode(t, resp, &payload)
	return payload["error"]
}

func TestHealthEndpoints(t *testing.T) {
	h := newHarness(t)

	live := h.do(t, http.MethodGet, "/health/live", "", nil)
	if live.StatusCode != http.StatusOK {
		t.Fatalf("live: status %d", live.StatusCode)
	}
	ready := h.do(t, http.MethodGet, "/health/ready", "", nil)
	if ready.StatusCode != http.StatusOK {
		t.Fatalf("ready: status %d", ready.StatusCode)
	}
	var payload map[string]any
	decode(t, ready, &payload)
	if payload["status"] != "ok" {
		t.Fatalf("unexpected ready payload: %v", payload)
	}
}

func TestSessionRequired(t *testing.T) {
	h := newHarness(t)

	forged, err := server.IssueSession("some-other-secret-value", viewer, time.Hour)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	for name, session := range map[string]string{"missing": "", "forged": forged, "garbage": "not-a-jwt"} {
		t.Run(name, func(t *testing.T) {
			resp := h.do(t, http.MethodGet, "/me/quota", session, nil)
			if resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", resp.StatusCode)
			}
			if msg := errorMessage(t, resp); msg != "unauthorized" {
				t.Fatalf("unexpected error %q", msg)
			}
		})
	}
}

func TestQuotaProvisionsDefault(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/me/quota", h.session(t, viewer), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var usage gateway.UsageView
	decode(t, resp, &usage)
	if usage.TotalGB != h.cfg.Quota.DefaultGB || !usage.CanUse {
		t.Fatalf("unexpected usage: %+v", usage)
	}
}

func TestSessionCookieAccepted(t *testing.T) {
	h := newHarness(t)

	req, _ := http.NewRequest(http.MethodGet, h.http.URL+"/me/quota", nil)
	req.AddCookie(&http.Cookie{Name: h.cfg.Session.CookieName, Value: h.session(t, viewer)})
	resp, err := h.http.Client().Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected cookie session to be accepted, got %d", resp.StatusCode)
	}
}

func TestPlayerManifestAndSegmentFlow(t *testing.T) {
	h := newHarness(t)
	testsupport.SeedQuota(t, h.db, viewer, 10, 0)
	session := h.session(t, viewer)

	resp := h.do(t, http.MethodGet, "/content/movies/"+strconv.FormatInt(h.contentID, 10), session, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("player: status %d", resp.StatusCode)
	}
	var view gateway.PlayerView
	decode(t, resp, &view)
	if view.ContentFileID != h.fileID || !strings.Contains(view.ManifestURL, "token=") {
		t.Fatalf("unexpected player view: %+v", view)
	}

	manifest := h.do(t, http.MethodGet, view.ManifestURL, session, nil)
	if manifest.StatusCode != http.StatusOK {
		t.Fatalf("manifest: status %d", manifest.StatusCode)
	}
	if ct := manifest.Header.Get("Content-Type"); ct != "application/vnd.apple.mpegurl" {
		t.Fatalf("unexpected manifest content type %q", ct)
	}
	body := string(readBody(t, manifest))
	var segmentURI string
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "Film_000.ts?token=") {
			segmentURI = line
		}
	}
	if segmentURI == "" {
		t.Fatalf("segment uri not rewritten:\n%s", body)
	}

	segment := h.do(t, http.MethodGet, "/content/hls/"+strconv.FormatInt(h.fileID, 10)+"/"+segmentURI, session, nil)
	if segment.StatusCode != http.StatusOK {
		t.Fatalf("segment: status %d", segment.StatusCode)
	}
	if got := len(readBody(t, segment)); got != 4096 {
		t.Fatalf("expected 4096 byte segment, got %d", got)
	}
	if segment.Header.Get("Content-Length") != "4096" || segment.Header.Get("Cache-Control") != "private, no-store" {
		t.Fatalf("unexpected segment headers: %v", segment.Header)
	}

	usage, err := h.ledger.CheckRemaining(context.Background(), viewer)
	if err != nil {
		t.Fatalf("CheckRemaining: %v", err)
	}
	want := float64(4096+len(body)) / (1 << 30)
	if diff := usage.UsedGB - want; diff > 1e-12 || diff < -1e-12 {
		t.Fatalf("expected %.12f GB used, got %.12f", want, usage.UsedGB)
	}
}

func TestSegmentRefusals(t *testing.T) {
	h := newHarness(t)
	testsupport.SeedQuota(t, h.db, viewer, 10, 0)
	testsupport.SeedQuota(t, h.db, 8, 0, 0)
	codec, _ := streamtoken.New(h.cfg.Stream.Secret, h.cfg.TokenTTL())
	fileID := strconv.FormatInt(h.fileID, 10)

	tests := []struct {
		name    string
		user    int64
		path    string
		status  int
		message string
	}{
		{"other user's token", viewer, "/content/hls/" + fileID + "/Film_000.ts?token=" + codec.Issue(99, h.fileID, time.Now()), http.StatusForbidden, "forbidden"},
		{"missing token", viewer, "/content/hls/" + fileID + "/Film_000.ts", http.StatusForbidden, "forbidden"},
		{"unknown segment", viewer, "/content/hls/" + fileID + "/Film_999.ts?token=" + codec.Issue(viewer, h.fileID, time.Now()), http.StatusNotFound, "not found"},
		{"bad id", viewer, "/content/hls/abc/Film_000.ts", http.StatusNotFound, "not found"},
		{"encoded traversal", viewer, "/content/hls/" + fileID + "/..%2F..%2Fetc%2Fpasswd?token=" + codec.Issue(viewer, h.fileID, time.Now()), http.StatusForbidden, "forbidden"},
		{"sibling rendition dir", viewer, "/content/hls/" + fileID + "/..%2Foriginal%2FFilm.mp4?token=" + codec.Issue(viewer, h.fileID, time.Now()), http.StatusForbidden, "forbidden"},
		{"no entitlement", 8, "/content/hls/" + fileID + "/Film_000.ts?token=" + codec.Issue(8, h.fileID, time.Now()), http.StatusForbidden, "quota exceeded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.do(t, http.MethodGet, tt.path, h.session(t, tt.user), nil)
			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, resp.StatusCode)
			}
			if msg := errorMessage(t, resp); msg != tt.message {
				t.Fatalf("expected %q, got %q", tt.message, msg)
			}
		})
	}

	usage, err := h.ledger.CheckRemaining(context.Background(), viewer)
	if err != nil {
		t.Fatalf("CheckRemaining: %v", err)
	}
	if usage.UsedGB != 0 {
		t.Fatalf("refusals must not debit, used %v", usage.UsedGB)
	}
}

func TestDownloadIsAttachment(t *testing.T) {
	h := newHarness(t)
	testsupport.SeedQuota(t, h.db, viewer, 10, 0)

	resp := h.do(t, http.MethodGet, "/content/download/"+strconv.FormatInt(h.contentID, 10), h.session(t, viewer), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	disposition, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition"))
	if err != nil || disposition != "attachment" || params["filename"] != "Film.mp4" {
		t.Fatalf("unexpected disposition %q: %v", resp.Header.Get("Content-Disposition"), err)
	}
	if got := len(readBody(t, resp)); got != 2048 {
		t.Fatalf("expected 2048 bytes, got %d", got)
	}

	missing := h.do(t, http.MethodGet, "/content/download/4242", h.session(t, viewer), nil)
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown content, got %d", missing.StatusCode)
	}
}

func TestCatalogAndPlayerTypeChecks(t *testing.T) {
	h := newHarness(t)
	session := h.session(t, viewer)

	resp := h.do(t, http.MethodGet, "/content/movies", session, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("catalog: status %d", resp.StatusCode)
	}
	var view gateway.CatalogView
	decode(t, resp, &view)
	if len(view.Items) != 1 || view.Items[0].ContentID != h.contentID {
		t.Fatalf("unexpected catalog: %+v", view)
	}

	if resp := h.do(t, http.MethodGet, "/content/series/"+strconv.FormatInt(h.contentID, 10), session, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for mismatched type, got %d", resp.StatusCode)
	}
	if resp := h.do(t, http.MethodGet, "/content/unknown", session, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown type, got %d", resp.StatusCode)
	}
}

func TestRedeemPasscode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	issued, err := h.passcodes.Issue(ctx, 1, 5, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	session := h.session(t, viewer)
	body := `{"passcode":"` + strings.ToLower(issued.Code) + `"}`

	resp := h.do(t, http.MethodPost, "/me/passcodes/redeem", session, strings.NewReader(body))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("redeem: status %d", resp.StatusCode)
	}
	var redeemed struct {
		Passcode string            `json:"passcode"`
		QuotaGB  float64           `json:"quotaGb"`
		Quota    gateway.UsageView `json:"quota"`
	}
	decode(t, resp, &redeemed)
	if redeemed.Passcode != issued.Code || redeemed.QuotaGB != 5 || redeemed.Quota.TotalGB != h.cfg.Quota.DefaultGB+5 {
		t.Fatalf("unexpected redemption: %+v", redeemed)
	}

	again := h.do(t, http.MethodPost, "/me/passcodes/redeem", session, strings.NewReader(body))
	if again.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 on reuse, got %d", again.StatusCode)
	}
	if msg := errorMessage(t, again); msg != passcode.ErrAlreadyUsed.Error() {
		t.Fatalf("unexpected error %q", msg)
	}

	bad := h.do(t, http.MethodPost, "/me/passcodes/redeem", session, strings.NewReader("{"))
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", bad.StatusCode)
	}
}

func TestMediaIsPublicAndRestricted(t *testing.T) {
	h := newHarness(t)

	poster := h.do(t, http.MethodGet, "/media/movies/Film/poster/Film.jpg", "", nil)
	if poster.StatusCode != http.StatusOK {
		t.Fatalf("poster: status %d", poster.StatusCode)
	}
	if poster.Header.Get("Content-Type") != "image/jpeg" || len(readBody(t, poster)) != 128 {
		t.Fatalf("unexpected poster response: %v", poster.Header)
	}

	originalResp := h.do(t, http.MethodGet, "/media/"+original, "", nil)
	if originalResp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected originals to be refused, got %d", originalResp.StatusCode)
	}
}

func TestRequestIDAndMetrics(t *testing.T) {
	h := newHarness(t)

	req, _ := http.NewRequest(http.MethodGet, h.http.URL+"/health/live", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := h.http.Client().Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Request-ID") != "abc-123" {
		t.Fatalf("expected request id echoed, got %q", resp.Header.Get("X-Request-ID"))
	}
	generated := h.do(t, http.MethodGet, "/health/live", "", nil)
	if len(generated.Header.Get("X-Request-ID")) != 36 {
		t.Fatalf("expected generated uuid, got %q", generated.Header.Get("X-Request-ID"))
	}

	scrape := h.do(t, http.MethodGet, "/metrics", "", nil)
	text := string(readBody(t, scrape))
	if !strings.Contains(text, `streamgate_http_requests_total{method="GET",route="/health/live",status="200"}`) {
		t.Fatalf("expected route-labelled request counter in metrics output")
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t)

	req, _ := http.NewRequest(http.MethodOptions, h.http.URL+"/me/quota", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp, err := h.http.Client().Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatalf("expected allowed origin, got %v", resp.Header)
	}
	if resp.Header.Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("expected credentials allowed")
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	h := newHarness(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.srv.Serve(ctx, listener) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/health/live")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestSessionVerifierClaims(t *testing.T) {
	verifier := server.NewSessionVerifier(testsupport.SessionSecret, "sg_session")
	sign := func(method jwt.SigningMethod, claims jwt.MapClaims) string {
		t.Helper()
		token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testsupport.SessionSecret))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return token
	}
	exp := time.Now().Add(time.Hour).Unix()

	if id, err := verifier.Verify(sign(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "42", "exp": exp})); err != nil || id != 42 {
		t.Fatalf("expected subject fallback to 42, got %d %v", id, err)
	}
	if id, err := verifier.Verify(sign(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": 9, "exp": exp})); err != nil || id != 9 {
		t.Fatalf("expected user_id 9, got %d %v", id, err)
	}

	rejected := map[string]string{
		"expired":      sign(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": 9, "exp": time.Now().Add(-time.Hour).Unix()}),
		"no expiry":    sign(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": 9}),
		"wrong method": sign(jwt.SigningMethodHS512, jwt.MapClaims{"user_id": 9, "exp": exp}),
		"no user":      sign(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice", "exp": exp}),
	}
	for name, token := range rejected {
		if _, err := verifier.Verify(token); err == nil {
			t.Errorf("%s: expected rejection", name)
		}
	}
}
