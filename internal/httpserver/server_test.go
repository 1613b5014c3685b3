package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shoplens/origin-report/internal/config"
	"github.com/shoplens/origin-report/internal/tracking"
	"go.uber.org/zap"
)

func testServerConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{TablePrefix: "wp_"},
		Auth:     config.AuthConfig{Enabled: false},
		RateLimit: config.RateLimitConfig{
			Enabled: false,
		},
		Metrics: config.MetricsConfig{Enabled: false},
		Tracking: config.TrackingConfig{
			OriginCookie:  "shop_origin",
			VisitorCookie: "shop_visitor",
			CookieTTL:     30 * 24 * time.Hour,
			SiteHost:      "shop.example.com",
		},
		Report: config.ReportConfig{
			UnitPrice:          19.00,
			FacebookAdjustment: 2,
			Timezone:           "UTC",
		},
	}
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	return NewServer(&Dependencies{
		Config: testServerConfig(),
		Logger: zap.NewNop(),
	})
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	blob, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(blob))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	handler := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestHandleTouchSetsCookiesOnce(t *testing.T) {
	handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/track/touch?utm_source=facebook&utm_medium=paid", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/gif" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !bytes.Equal(rec.Body.Bytes(), tracking.TransparentPixel) {
		t.Error("body is not the tracking pixel")
	}

	cookies := rec.Result().Cookies()
	var origin *http.Cookie
	for _, c := range cookies {
		if c.Name == "shop_origin" {
			origin = c
		}
	}
	if origin == nil {
		t.Fatalf("origin cookie not set, cookies = %v", cookies)
	}

	// A repeat visit with the cookie present must not reset it.
	req = httptest.NewRequest(http.MethodGet, "/track/touch?utm_source=google", nil)
	req.AddCookie(origin)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat status = %d", rec.Code)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Errorf("repeat visit set cookies: %v", rec.Result().Cookies())
	}
}

func TestHandleOrderOriginAndTodayReport(t *testing.T) {
	handler := newTestServer(t)

	rec := postJSON(t, handler, "/orders/origin", map[string]interface{}{
		"order_id":      42,
		"cookie_origin": "UTM: facebook / paid",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("order origin status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var tagged struct {
		OrderID int64  `json:"order_id"`
		Origin  string `json:"origin"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &tagged); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tagged.Origin != "UTM: facebook / paid" {
		t.Errorf("origin = %q", tagged.Origin)
	}

	// Today's report runs off the order store, so the tagged order shows up
	// in the Facebook bucket with the adjustment applied.
	today := time.Now().UTC().Format("2006-01-02")
	rec = postJSON(t, handler, "/reports/origins", map[string]interface{}{
		"start": today,
		"end":   today,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("report status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Buckets []struct {
			Label      string `json:"label"`
			OrderCount int    `json:"order_count"`
		} `json:"buckets"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Buckets) != 1 {
		t.Fatalf("buckets = %+v", resp.Buckets)
	}
	if resp.Buckets[0].Label != "Sales from FB ADS" || resp.Buckets[0].OrderCount != 3 {
		t.Errorf("bucket = %+v, want Sales from FB ADS / 3", resp.Buckets[0])
	}
}

func TestTaggedOrderVisibleInPastRangeReport(t *testing.T) {
	handler := newTestServer(t)

	// Pin the reporting day elsewhere so today's date range takes the
	// standard source-selection path.
	rec := postJSON(t, handler, "/settings/date-override", map[string]string{"date": "2020-01-01"})
	if rec.Code != http.StatusOK {
		t.Fatalf("date override status = %d", rec.Code)
	}

	rec = postJSON(t, handler, "/orders/origin", map[string]interface{}{
		"order_id":      7,
		"cookie_origin": "UTM: facebook / paid",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("order origin status = %d, body = %s", rec.Code, rec.Body.String())
	}

	today := time.Now().UTC().Format("2006-01-02")
	rec = postJSON(t, handler, "/reports/origins", map[string]interface{}{
		"start": today,
		"end":   today,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("report status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Buckets []struct {
			Label      string `json:"label"`
			OrderCount int    `json:"order_count"`
		} `json:"buckets"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Buckets) != 1 {
		t.Fatalf("buckets = %+v, want the tagged order's bucket", resp.Buckets)
	}
	if resp.Buckets[0].Label != "Sales from FB ADS" || resp.Buckets[0].OrderCount != 3 {
		t.Errorf("bucket = %+v, want Sales from FB ADS / 3", resp.Buckets[0])
	}
}

func TestHandleOrderOriginValidation(t *testing.T) {
	handler := newTestServer(t)

	rec := postJSON(t, handler, "/orders/origin", map[string]interface{}{"order_id": 0})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/orders/origin", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", res.Code)
	}
}

func TestHandleReportBadRange(t *testing.T) {
	handler := newTestServer(t)

	tests := []struct {
		name  string
		start string
		end   string
	}{
		{"garbage start", "yesterday", "2024-03-31"},
		{"garbage end", "2024-03-01", "soon"},
		{"inverted", "2024-03-31", "2024-03-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, handler, "/reports/origins", map[string]interface{}{
				"start": tt.start,
				"end":   tt.end,
			})
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHandleROASEmpty(t *testing.T) {
	handler := newTestServer(t)

	rec := postJSON(t, handler, "/reports/roas", map[string]interface{}{
		"start": "2024-03-01",
		"end":   "2024-03-31",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result struct {
		FacebookOrders   int  `json:"facebook_orders"`
		HasFacebookSales bool `json:"has_facebook_sales"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.FacebookOrders != 0 || result.HasFacebookSales {
		t.Errorf("result = %+v", result)
	}
}

func TestHandleVisitsUnavailable(t *testing.T) {
	handler := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/reports/visits?start=2024-03-01&end=2024-03-31", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHandleAdSpendRoundTrip(t *testing.T) {
	handler := newTestServer(t)

	rec := postJSON(t, handler, "/settings/ad-spend", map[string]interface{}{
		"start":  "2024-03-01",
		"end":    "2024-03-31",
		"amount": 250.50,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/settings/ad-spend", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("list status = %d", res.Code)
	}
	var list struct {
		Entries []struct {
			RangeKey string  `json:"range_key"`
			Amount   float64 `json:"amount"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list.Entries) != 1 || list.Entries[0].Amount != 250.50 {
		t.Errorf("entries = %+v", list.Entries)
	}

	// Negative amounts are refused.
	rec = postJSON(t, handler, "/settings/ad-spend", map[string]interface{}{
		"start":  "2024-03-01",
		"end":    "2024-03-31",
		"amount": -5,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative amount status = %d, want 400", rec.Code)
	}
}

func TestHandleDateOverride(t *testing.T) {
	handler := newTestServer(t)

	rec := postJSON(t, handler, "/settings/date-override", map[string]string{"date": "2024-03-15"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/settings/date-override", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	var body map[string]string
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["date"] != "2024-03-15" {
		t.Errorf("date = %q", body["date"])
	}

	// Clearing and rejecting malformed values.
	rec = postJSON(t, handler, "/settings/date-override", map[string]string{"date": ""})
	if rec.Code != http.StatusOK {
		t.Errorf("clear status = %d", rec.Code)
	}
	rec = postJSON(t, handler, "/settings/date-override", map[string]string{"date": "15.03.2024"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed status = %d, want 400", rec.Code)
	}
}

func TestAuthProtectsAdminRoutes(t *testing.T) {
	cfg := testServerConfig()
	cfg.Auth = config.AuthConfig{
		Enabled:   true,
		MasterKey: "admin-key",
		SkipPaths: []string{"/health", "/metrics", "/track/touch"},
	}
	handler := NewServer(&Dependencies{Config: cfg, Logger: zap.NewNop()})

	req := httptest.NewRequest(http.MethodGet, "/settings/ad-spend", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/track/touch", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("pixel status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/settings/ad-spend", nil)
	req.Header.Set("X-API-Key", "admin-key")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated status = %d, want 200", rec.Code)
	}
}
