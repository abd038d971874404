package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/orbitlab/aso-pulse/internal/admin"
	"github.com/orbitlab/aso-pulse/internal/config"
	"github.com/orbitlab/aso-pulse/internal/database"
	"github.com/orbitlab/aso-pulse/internal/dispatch"
	"github.com/orbitlab/aso-pulse/internal/ingest"
	"github.com/orbitlab/aso-pulse/internal/insights"
	"github.com/orbitlab/aso-pulse/internal/metrics"
	"github.com/orbitlab/aso-pulse/internal/models"
	"github.com/orbitlab/aso-pulse/internal/storage"
	"github.com/orbitlab/aso-pulse/internal/store"
)

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	DB         *database.PostgresDB
	Redis      *database.RedisDB
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Source     ingest.MetricsSource
	Dispatcher *dispatch.Dispatcher
}

// Server wraps HTTP handlers and the insights services.
type Server struct {
	orgService      *admin.OrgService
	appService      *admin.AppService
	insightsService *insights.Service
	logger          *zap.Logger
	config          *config.Config
	metrics         *metrics.Metrics
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	// Initialize repositories
	var orgRepo storage.OrgRepo
	var appRepo storage.AppRepo

	if deps.DB != nil {
		orgRepo = storage.NewPostgresOrgRepo(deps.DB.Pool)
		appRepo = storage.NewPostgresAppRepo(deps.DB.Pool)
	} else {
		orgRepo = storage.NewInMemoryOrgRepo()
		appRepo = storage.NewInMemoryAppRepo()
	}

	// Snapshot cache is optional; overview queries work without it, they
	// just always hit the upstream source.
	var cache *insights.SnapshotCache
	if deps.Redis != nil && deps.Config.Cache.Enabled {
		cache = insights.NewSnapshotCache(deps.Redis.Client, deps.Config.Cache.TTL, deps.Logger, deps.Metrics)
	}

	insightsSvc := insights.NewService(
		deps.Source,
		store.New(),
		deps.Dispatcher,
		cache,
		insights.ComparisonPolicy(deps.Config.Insights.ComparisonPolicy),
		deps.Logger,
		deps.Metrics,
	)

	s := &Server{
		orgService:      admin.NewOrgService(orgRepo),
		appService:      admin.NewAppService(appRepo),
		insightsService: insightsSvc,
		logger:          deps.Logger,
		config:          deps.Config,
		metrics:         deps.Metrics,
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled {
		mux.Handle(deps.Config.Metrics.Path, metrics.Handler())
	}

	// Organizations, apps, and per-org insights
	mux.HandleFunc("/api/v1/orgs", s.handleOrgs)
	mux.HandleFunc("/api/v1/orgs/", s.handleOrgSubtree)

	// App lookup by id (cross-org)
	mux.HandleFunc("/api/v1/apps/", s.handleAppByID)

	return mux
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ---- Organizations CRUD ----

func (s *Server) handleOrgs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.orgService.ListOrgs(r.Context())
		if err != nil {
			s.logger.Error("failed to list orgs", zap.Error(err))
			s.errorResponse(w, "failed to list", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, list)

	case http.MethodPost:
		var o models.Organization
		if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		if err := s.orgService.UpsertOrg(r.Context(), &o); err != nil {
			s.errorResponse(w, "failed to save: "+err.Error(), http.StatusBadRequest)
			return
		}
		s.jsonResponse(w, o)

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleOrgSubtree routes /api/v1/orgs/{id}[/apps|/insights/...].
func (s *Server) handleOrgSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/orgs/")
	parts := strings.SplitN(rest, "/", 2)
	orgID := parts[0]
	if orgID == "" {
		http.NotFound(w, r)
		return
	}

	if len(parts) == 1 {
		s.handleOrgByID(w, r, orgID)
		return
	}

	switch parts[1] {
	case "apps":
		s.handleOrgApps(w, r, orgID)
	case "insights/overview":
		s.handleOverview(w, r, orgID)
	case "insights/intelligence":
		s.handleIntelligence(w, r, orgID)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleOrgByID(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		o, err := s.orgService.GetOrg(r.Context(), id)
		if err != nil {
			s.logger.Error("failed to get org", zap.Error(err))
			s.errorResponse(w, "error: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if o == nil {
			http.NotFound(w, r)
			return
		}
		s.jsonResponse(w, o)

	case http.MethodDelete:
		if err := s.orgService.DeleteOrg(r.Context(), id); err != nil {
			s.errorResponse(w, "failed to delete: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ---- Apps CRUD ----

func (s *Server) handleOrgApps(w http.ResponseWriter, r *http.Request, orgID string) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.appService.ListApps(r.Context(), orgID)
		if err != nil {
			s.errorResponse(w, "failed to list", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, list)

	case http.MethodPost:
		var a models.App
		if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		a.OrgID = orgID
		if err := s.appService.UpsertApp(r.Context(), &a); err != nil {
			s.errorResponse(w, "failed to save: "+err.Error(), http.StatusBadRequest)
			return
		}
		s.jsonResponse(w, a)

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAppByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/apps/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		a, err := s.appService.GetApp(r.Context(), id)
		if err != nil {
			s.errorResponse(w, "error: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if a == nil {
			http.NotFound(w, r)
			return
		}
		s.jsonResponse(w, a)

	case http.MethodDelete:
		if err := s.appService.DeleteApp(r.Context(), id); err != nil {
			s.errorResponse(w, "failed to delete: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ---- Insights ----

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	req := insights.OverviewRequest{
		OrgID: orgID,
		Range: models.DateRange{
			Start: q.Get("start"),
			End:   q.Get("end"),
		},
		AppIDs:  splitCSV(q.Get("apps")),
		Sources: splitCSV(q.Get("sources")),
	}

	ov, err := s.insightsService.Overview(r.Context(), req)
	if err != nil {
		s.overviewError(w, err)
		return
	}

	s.jsonResponse(w, ov)
}

func (s *Server) handleIntelligence(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.jsonResponse(w, s.insightsService.Intelligence(orgID))
}

// overviewError maps pipeline errors onto HTTP status codes: caller
// mistakes are 400, a request superseded by a newer query is 409, an
// upstream that has no data for the query is 404, and upstream failures
// surface as 502 so the client can distinguish them from bugs in this
// service.
func (s *Server) overviewError(w http.ResponseWriter, err error) {
	var verr *insights.ValidationError
	switch {
	case errors.As(err, &verr):
		s.errorResponse(w, verr.Msg, http.StatusBadRequest)
	case errors.Is(err, insights.ErrSuperseded):
		s.logger.Warn("overview superseded by a newer query", zap.Error(err))
		s.errorResponse(w, "superseded by a newer query, retry", http.StatusConflict)
	case ingest.IsNotFound(err):
		s.errorResponse(w, "no data for the requested range", http.StatusNotFound)
	case ingest.IsShapeError(err):
		s.logger.Error("upstream returned malformed payload", zap.Error(err))
		s.errorResponse(w, "upstream returned malformed payload", http.StatusBadGateway)
	default:
		var ferr *ingest.FetchError
		if errors.As(err, &ferr) {
			s.logger.Error("upstream fetch failed", zap.Error(err))
			s.errorResponse(w, "upstream fetch failed", http.StatusBadGateway)
			return
		}
		s.logger.Error("overview failed", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
	}
}

// ---- Helper Methods ----

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
