package httpserver

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/shoplens/origin-report/internal/config"
	"github.com/shoplens/origin-report/internal/database"
	"github.com/shoplens/origin-report/internal/geo"
	"github.com/shoplens/origin-report/internal/metrics"
	"github.com/shoplens/origin-report/internal/middleware"
	"github.com/shoplens/origin-report/internal/models"
	"github.com/shoplens/origin-report/internal/report"
	"github.com/shoplens/origin-report/internal/storage"
	"github.com/shoplens/origin-report/internal/tracking"
	"go.uber.org/zap"
)

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	DB         *database.PostgresDB
	Redis      *database.RedisDB
	ClickHouse *database.ClickHouseDB
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Server wraps HTTP handlers and the reporting services.
type Server struct {
	trackingService *tracking.Service
	aggregator      *report.Aggregator
	settings        storage.SettingsStore
	touches         storage.TouchSink
	logger          *zap.Logger
	config          *config.Config
	metrics         *metrics.Metrics
}

// NewServer constructs a new http.Handler with all routes registered and the
// middleware chain applied.
func NewServer(deps *Dependencies) http.Handler {
	cfg := deps.Config
	prefix := cfg.Database.TablePrefix

	// Attribution sources in strict priority order. Without a database the
	// in-memory sources keep the API serving empty reports. The legacy-field
	// source reads through the order store in both branches, so origins
	// written by the order hook stay visible to past-range reports.
	var sources []storage.AttributionSource
	var orderStore storage.OrderStore
	var settingsStore storage.SettingsStore

	if deps.DB != nil {
		pool := deps.DB.Pool
		orderStore = storage.NewPostgresOrderStore(pool, prefix)
		settingsStore = storage.NewPostgresSettingsStore(pool, prefix)
		sources = []storage.AttributionSource{
			storage.NewAttributionTableSource(pool, prefix),
			storage.NewOrderMetaSource(pool, prefix),
			storage.NewPostMetaSource(pool, prefix),
			storage.NewPYSSource(pool, prefix),
			storage.NewLegacyFieldSource(orderStore),
		}
	} else {
		orderStore = storage.NewInMemoryOrderStore()
		settingsStore = storage.NewInMemorySettingsStore()
		for _, scheme := range storage.DefaultPriority() {
			if scheme == models.SchemeLegacyField {
				continue
			}
			sources = append(sources, storage.NewInMemoryAttributionSource(scheme))
		}
		sources = append(sources, storage.NewLegacyFieldSource(orderStore))
	}

	var counter storage.OriginCounter
	var cache *storage.ReportCache
	if deps.Redis != nil {
		counter = storage.NewRedisOriginCounter(deps.Redis.Client)
		cache = storage.NewReportCache(deps.Redis.Client, cfg.Report.CacheTTL)
	} else {
		counter = storage.NewInMemoryOriginCounter()
	}

	var touchSink storage.TouchSink
	if deps.ClickHouse != nil {
		touchSink = storage.NewClickHouseTouchSink(deps.ClickHouse.Conn)
	}

	var geoResolver *geo.Resolver
	if cfg.Geo.Enabled {
		provider, err := geo.NewMaxMindProvider(cfg.Geo.DatabasePath)
		if err != nil {
			deps.Logger.Warn("failed to initialize geo provider, enrichment disabled", zap.Error(err))
		} else {
			geoResolver = geo.NewResolver(provider, cfg.Geo.CacheSize, cfg.Geo.CacheTTL, deps.Metrics)
		}
	}

	trackingSvc := tracking.NewService(
		touchSink, orderStore, counter, geoResolver,
		cfg.Tracking, cfg.Location(), deps.Logger, deps.Metrics,
	)
	aggregator := report.NewAggregator(
		sources, orderStore, settingsStore, counter, cache,
		cfg.Report, cfg.Location(), deps.Logger, deps.Metrics,
	)

	s := &Server{
		trackingService: trackingSvc,
		aggregator:      aggregator,
		settings:        settingsStore,
		touches:         touchSink,
		logger:          deps.Logger,
		config:          cfg,
		metrics:         deps.Metrics,
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
	}

	// Storefront-facing tracking
	mux.HandleFunc("/track/touch", s.handleTouch)
	mux.HandleFunc("/orders/origin", s.handleOrderOrigin)

	// Reporting
	mux.HandleFunc("/reports/origins", s.handleOriginReport)
	mux.HandleFunc("/reports/origins/time-series", s.handleTimeSeries)
	mux.HandleFunc("/reports/visits", s.handleVisits)
	mux.HandleFunc("/reports/roas", s.handleROAS)

	// Settings
	mux.HandleFunc("/settings/ad-spend", s.handleAdSpend)
	mux.HandleFunc("/settings/date-override", s.handleDateOverride)

	rateLimiter := middleware.NewRateLimitMiddleware(cfg.RateLimit, deps.Logger)
	rateLimiter.SetMetrics(deps.Metrics)

	var handler http.Handler = mux
	handler = middleware.NewAuthMiddleware(cfg.Auth, deps.Logger).Handler(handler)
	handler = rateLimiter.Handler(handler)
	handler = middleware.NewLoggingMiddleware(deps.Logger).Handler(handler)
	handler = middleware.NewRecoveryMiddleware(deps.Logger).Handler(handler)
	return handler
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ---- Tracking ----

func (s *Server) handleTouch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	referrer := q.Get("ref")
	if referrer == "" {
		referrer = r.Referer()
	}

	params := &tracking.TouchParams{
		ExistingOrigin:  cookieValue(r, s.config.Tracking.OriginCookie),
		ExistingVisitor: cookieValue(r, s.config.Tracking.VisitorCookie),
		Query:           q,
		LandingURL:      q.Get("url"),
		Referrer:        referrer,
		IP:              middleware.ClientIP(r),
		UserAgent:       r.UserAgent(),
	}

	result := s.trackingService.RecordTouch(r.Context(), params)
	if result.SetCookies {
		s.setTrackingCookies(w, result)
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Write(tracking.TransparentPixel)
}

func (s *Server) setTrackingCookies(w http.ResponseWriter, result *tracking.TouchResult) {
	expires := time.Now().Add(s.config.Tracking.CookieTTL)
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.Tracking.OriginCookie,
		Value:    url.QueryEscape(result.Origin),
		Path:     "/",
		Expires:  expires,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.Tracking.VisitorCookie,
		Value:    result.VisitorID,
		Path:     "/",
		Expires:  expires,
		SameSite: http.SameSiteLaxMode,
	})
}

type orderOriginRequest struct {
	OrderID      int64  `json:"order_id"`
	CookieOrigin string `json:"cookie_origin"`
	LandingQuery string `json:"landing_query"`
	Referrer     string `json:"referrer"`
}

func (s *Server) handleOrderOrigin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req orderOriginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.OrderID <= 0 {
		s.errorResponse(w, "order_id is required", http.StatusBadRequest)
		return
	}

	query, err := url.ParseQuery(req.LandingQuery)
	if err != nil {
		query = url.Values{}
	}
	if req.CookieOrigin == "" {
		req.CookieOrigin = cookieValue(r, s.config.Tracking.OriginCookie)
	}

	origin, err := s.trackingService.TagOrder(r.Context(), &tracking.TagOrderParams{
		OrderID:      req.OrderID,
		CookieOrigin: req.CookieOrigin,
		Query:        query,
		Referrer:     req.Referrer,
	})
	if err != nil {
		s.logger.Error("failed to tag order", zap.Int64("order_id", req.OrderID), zap.Error(err))
		s.errorResponse(w, "failed to tag order", http.StatusInternalServerError)
		return
	}

	s.jsonResponse(w, map[string]interface{}{
		"order_id": req.OrderID,
		"origin":   origin,
	})
}

// ---- Reporting ----

type reportRequest struct {
	Start   string `json:"start"`
	End     string `json:"end"`
	Filters struct {
		Sources   []string `json:"sources"`
		Mediums   []string `json:"mediums"`
		Campaigns []string `json:"campaigns"`
		Terms     []string `json:"terms"`
		Contents  []string `json:"contents"`
	} `json:"filters"`
}

func (s *Server) handleOriginReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dr, filters, err := s.parseReportRequest(r)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	buckets, err := s.aggregator.Aggregate(r.Context(), dr, filters)
	if err != nil {
		s.logger.Error("aggregation failed", zap.Error(err))
		s.errorResponse(w, "failed to build report", http.StatusInternalServerError)
		return
	}

	s.jsonResponse(w, map[string]interface{}{
		"range":   dr.Key(),
		"buckets": buckets,
	})
}

func (s *Server) handleTimeSeries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dr, err := s.parseRange(r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	points, err := s.aggregator.TimeSeries(r.Context(), dr)
	if err != nil {
		s.logger.Error("time series failed", zap.Error(err))
		s.errorResponse(w, "failed to build time series", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, map[string]interface{}{"points": points})
}

func (s *Server) handleVisits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.touches == nil {
		s.errorResponse(w, "touch event store not configured", http.StatusServiceUnavailable)
		return
	}

	dr, err := s.parseRange(r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	visits, err := s.touches.VisitsByOrigin(r.Context(), dr)
	if err != nil {
		s.logger.Error("visits query failed", zap.Error(err))
		s.errorResponse(w, "failed to query visits", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, map[string]interface{}{"visits": visits})
}

func (s *Server) handleROAS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dr, filters, err := s.parseReportRequest(r)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.aggregator.ROAS(r.Context(), dr, filters)
	if err != nil {
		s.logger.Error("roas failed", zap.Error(err))
		s.errorResponse(w, "failed to compute roas", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, result)
}

// ---- Settings ----

type adSpendRequest struct {
	Start  string  `json:"start"`
	End    string  `json:"end"`
	Amount float64 `json:"amount"`
}

func (s *Server) handleAdSpend(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		entries, err := s.settings.ListAdSpend(r.Context())
		if err != nil {
			s.logger.Error("failed to list ad spend", zap.Error(err))
			s.errorResponse(w, "failed to list ad spend", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, map[string]interface{}{"entries": entries})

	case http.MethodPost:
		var req adSpendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		dr, err := s.parseRange(req.Start, req.End)
		if err != nil {
			s.errorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.settings.SetAdSpend(r.Context(), dr.Key(), req.Amount); err != nil {
			s.errorResponse(w, "failed to save ad spend: "+err.Error(), http.StatusBadRequest)
			return
		}
		s.jsonResponse(w, map[string]interface{}{
			"range":  dr.Key(),
			"amount": req.Amount,
		})

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type dateOverrideRequest struct {
	Date string `json:"date"`
}

func (s *Server) handleDateOverride(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		value, err := s.settings.GetDateOverride(r.Context())
		if err != nil {
			s.logger.Error("failed to read date override", zap.Error(err))
			s.errorResponse(w, "failed to read date override", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, map[string]string{"date": value})

	case http.MethodPost:
		var req dateOverrideRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := storage.ValidateDateOverride(req.Date); err != nil {
			s.errorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.settings.SetDateOverride(r.Context(), req.Date); err != nil {
			s.logger.Error("failed to save date override", zap.Error(err))
			s.errorResponse(w, "failed to save date override", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, map[string]string{"date": req.Date})

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ---- Helpers ----

func (s *Server) parseReportRequest(r *http.Request) (models.DateRange, models.UTMFilters, error) {
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return models.DateRange{}, models.UTMFilters{}, errInvalidJSON
	}
	dr, err := s.parseRange(req.Start, req.End)
	if err != nil {
		return models.DateRange{}, models.UTMFilters{}, err
	}
	filters := models.UTMFilters{
		Sources:   req.Filters.Sources,
		Mediums:   req.Filters.Mediums,
		Campaigns: req.Filters.Campaigns,
		Terms:     req.Filters.Terms,
		Contents:  req.Filters.Contents,
	}
	return dr, filters, nil
}

// parseRange parses inclusive start/end dates into a half-open range in the
// store timezone.
func (s *Server) parseRange(start, end string) (models.DateRange, error) {
	loc := s.config.Location()
	startDay, err := time.ParseInLocation("2006-01-02", start, loc)
	if err != nil {
		return models.DateRange{}, errInvalidRange
	}
	endDay, err := time.ParseInLocation("2006-01-02", end, loc)
	if err != nil {
		return models.DateRange{}, errInvalidRange
	}
	if endDay.Before(startDay) {
		return models.DateRange{}, errInvalidRange
	}
	return models.DateRange{Start: startDay, End: endDay.AddDate(0, 0, 1)}, nil
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	if v, err := url.QueryUnescape(c.Value); err == nil {
		return v
	}
	return c.Value
}

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

var (
	errInvalidJSON  = &requestError{"invalid json"}
	errInvalidRange = &requestError{"start and end must be YYYY-MM-DD with start <= end"}
)

type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }
