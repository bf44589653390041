package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	core "github.com/IAM-NET-GmbH/fileserver-sub001/internal/core/domain/models"
	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/database"
	dbmodels "github.com/IAM-NET-GmbH/fileserver-sub001/internal/database/models"
)

// ProviderAdmin is the slice of the state machine the API needs.
type ProviderAdmin interface {
	Create(ctx context.Context, p *dbmodels.Provider) error
	UpdateConfig(ctx context.Context, id string, name, description *string, rawConfig []byte) (*dbmodels.Provider, error)
	Enable(ctx context.Context, id string) (*dbmodels.Provider, error)
	Disable(ctx context.Context, id string) (*dbmodels.Provider, error)
}

// CheckTrigger is the slice of the scheduler the API needs.
type CheckTrigger interface {
	CheckNow(ctx context.Context, providerID string) (*core.CheckRun, error)
	CheckAll(ctx context.Context) (int, error)
}

// Server holds the dependencies for the HTTP API.
type Server struct {
	admin     ProviderAdmin
	trigger   CheckTrigger
	providers database.ProviderRepository
	catalog   database.CatalogRepository
	runs      database.CheckRunRepository
	log       *slog.Logger
}

func NewServer(admin ProviderAdmin, trigger CheckTrigger, providers database.ProviderRepository, catalog database.CatalogRepository, runs database.CheckRunRepository, log *slog.Logger) *Server {
	return &Server{
		admin:     admin,
		trigger:   trigger,
		providers: providers,
		catalog:   catalog,
		runs:      runs,
		log:       log,
	}
}

// RegisterRoutes registers all API endpoints with a new ServeMux.
func (s *Server) RegisterRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/providers", s.handleListProviders)
	mux.HandleFunc("POST /api/v1/providers", s.handleCreateProvider)
	mux.HandleFunc("GET /api/v1/providers/{id}", s.handleGetProvider)
	mux.HandleFunc("PATCH /api/v1/providers/{id}/config", s.handleUpdateConfig)
	mux.HandleFunc("POST /api/v1/providers/{id}/enable", s.handleEnableProvider)
	mux.HandleFunc("POST /api/v1/providers/{id}/disable", s.handleDisableProvider)
	mux.HandleFunc("POST /api/v1/providers/{id}/check", s.handleCheckProvider)
	mux.HandleFunc("POST /api/v1/providers/check-all", s.handleCheckAll)
	mux.HandleFunc("GET /api/v1/providers/{id}/runs", s.handleListRuns)

	mux.HandleFunc("GET /api/v1/downloads", s.handleListDownloads)
	mux.HandleFunc("GET /api/v1/downloads/stats", s.handleDownloadStats)
	mux.HandleFunc("GET /api/v1/downloads/{id}", s.handleGetDownload)
	mux.HandleFunc("DELETE /api/v1/downloads/{id}", s.handleDeleteDownload)

	return mux
}

// providerPayload renders the stored config blob as a JSON object instead
// of an escaped string.
type providerPayload struct {
	*dbmodels.Provider
	Config json.RawMessage `json:"config"`
}

func toPayload(p *dbmodels.Provider) providerPayload {
	return providerPayload{Provider: p, Config: json.RawMessage(p.Config)}
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := s.providers.ListProviders(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	payload := make([]providerPayload, 0, len(providers))
	for _, p := range providers {
		payload = append(payload, toPayload(p))
	}
	s.respond(w, http.StatusOK, payload)
}

func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	p, err := s.providers.GetProvider(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, toPayload(p))
}

type createProviderRequest struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Type        core.ProviderType `json:"type"`
	Enabled     bool              `json:"enabled,omitempty"`
	Config      json.RawMessage   `json:"config"`
}

func (s *Server) handleCreateProvider(w http.ResponseWriter, r *http.Request) {
	var req createProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if req.ID == "" || req.Name == "" {
		http.Error(w, "id and name are required", http.StatusBadRequest)
		return
	}

	p := &dbmodels.Provider{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		Enabled:     req.Enabled,
		Config:      string(req.Config),
	}
	if err := s.admin.Create(r.Context(), p); err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusCreated, toPayload(p))
}

type updateConfigRequest struct {
	Name        *string         `json:"name,omitempty"`
	Description *string         `json:"description,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req updateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}

	p, err := s.admin.UpdateConfig(r.Context(), r.PathValue("id"), req.Name, req.Description, req.Config)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, toPayload(p))
}

func (s *Server) handleEnableProvider(w http.ResponseWriter, r *http.Request) {
	p, err := s.admin.Enable(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, toPayload(p))
}

func (s *Server) handleDisableProvider(w http.ResponseWriter, r *http.Request) {
	p, err := s.admin.Disable(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, toPayload(p))
}

// handleCheckProvider dispatches a manual check. The check can take minutes
// (portal logins are slow) so the request does not wait for the outcome: it
// answers 202 and the check proceeds in the background. A provider already
// checking is simply joined, never doubled.
func (s *Server) handleCheckProvider(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := s.providers.GetProvider(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if !p.Enabled {
		http.Error(w, fmt.Sprintf("provider %s is disabled", id), http.StatusConflict)
		return
	}

	go func() {
		if _, err := s.trigger.CheckNow(context.Background(), id); err != nil {
			s.log.Warn("manual check failed to dispatch", slog.String("provider", id), slog.Any("error", err))
		}
	}()
	s.respond(w, http.StatusAccepted, map[string]string{"provider_id": id, "status": "checking"})
}

func (s *Server) handleCheckAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.trigger.CheckAll(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusAccepted, map[string]int{"dispatched": n})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.runs.ListCheckRuns(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, runs)
}

func (s *Server) handleListDownloads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	filter := database.ItemFilter{
		ProviderID: q.Get("provider"),
		Category:   q.Get("category"),
		Sort:       q.Get("sort"),
		SortDesc:   q.Get("order") == "desc",
		Page:       page,
		Limit:      limit,
	}

	items, total, err := s.catalog.ListItems(r.Context(), filter)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"items": items,
		"total": total,
	})
}

func (s *Server) handleGetDownload(w http.ResponseWriter, r *http.Request) {
	item, err := s.catalog.GetItem(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, item)
}

// handleDeleteDownload removes a catalog entry unconditionally. Deletion
// does not re-trigger ingestion; the file reappears only if a later check
// discovers it again.
func (s *Server) handleDeleteDownload(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.DeleteItem(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDownloadStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.catalog.Stats(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, stats)
}

func (s *Server) respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("failed to encode response", slog.Any("error", err))
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	var ce *core.CheckError
	switch {
	case errors.Is(err, database.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.As(err, &ce) && ce.Kind == core.ErrKindConfig:
		http.Error(w, ce.Message(), http.StatusBadRequest)
	default:
		s.log.Error("request failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
