// ABOUTME: Read-only HTTP server for operators and dashboards
// ABOUTME: Serves health, Prometheus metrics, the deal type catalog, pipeline graphs and deal records
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-graphviz"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/harperreed/closer/models"
	"github.com/harperreed/closer/pipeline"
	"github.com/harperreed/closer/viz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	svc      *pipeline.Service
	owner    string
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	now      func() time.Time
}

func NewServer(svc *pipeline.Service, owner string, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		svc:      svc,
		owner:    owner,
		gatherer: gatherer,
		logger:   logger,
		now:      time.Now,
	}
}

// Handler returns the router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")

	r.HandleFunc("/deal-types", s.handleDealTypes).Methods("GET")
	r.HandleFunc("/deal-types/{id}/graph", s.handleGraph).Methods("GET")

	r.HandleFunc("/dashboard", s.handleDashboard).Methods("GET")
	r.HandleFunc("/deals/{id}", s.handleDeal).Methods("GET")

	return r
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting web server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDealTypes(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.DealTypes())
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	dt, err := s.svc.DealType(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}

	format, contentType := graphviz.SVG, "image/svg+xml"
	if r.URL.Query().Get("format") == "dot" {
		format, contentType = graphviz.XDOT, "text/vnd.graphviz"
	}

	w.Header().Set("Content-Type", contentType)
	if err := viz.RenderPipeline(r.Context(), dt, format, w); err != nil {
		s.logger.Error("render pipeline graph", "deal_type", dt.ID, "error", err)
		http.Error(w, "failed to render graph", http.StatusInternalServerError)
	}
}

type dashboardStage struct {
	Stage string `json:"stage"`
	Label string `json:"label"`
	Count int    `json:"count"`
	Value string `json:"value"`
}

type dashboardResponse struct {
	DealTypes        map[string][]dashboardStage `json:"deal_types"`
	TotalDeals       int                         `json:"total_deals"`
	ActiveDeals      int                         `json:"active_deals"`
	WonDeals         int                         `json:"won_deals"`
	LostDeals        int                         `json:"lost_deals"`
	OpenValue        string                      `json:"open_value"`
	EarnedCommission string                      `json:"earned_commission"`
	StaleDeals       []viz.StaleDeal             `json:"stale_deals"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	deals, err := s.svc.AllDeals(r.Context(), s.owner, pipeline.ListDealsInput{
		DealTypeID: r.URL.Query().Get("type"),
	})
	if err != nil {
		s.logger.Error("load dashboard deals", "error", err)
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	stats := viz.BuildDashboard(s.svc.DealTypes(), deals, s.now())
	resp := dashboardResponse{
		DealTypes:        make(map[string][]dashboardStage, len(stats.Types)),
		TotalDeals:       stats.TotalDeals,
		ActiveDeals:      stats.ActiveDeals,
		WonDeals:         stats.WonDeals,
		LostDeals:        stats.LostDeals,
		OpenValue:        stats.OpenValue.StringFixed(2),
		EarnedCommission: stats.EarnedCommission.StringFixed(2),
		StaleDeals:       stats.StaleDeals,
	}
	for _, ts := range stats.Types {
		stages := make([]dashboardStage, 0, len(ts.Stages))
		for _, st := range ts.Stages {
			stages = append(stages, dashboardStage{Stage: st.Code, Label: st.Label, Count: st.Count, Value: st.Value.StringFixed(2)})
		}
		resp.DealTypes[ts.DealType.ID] = stages
	}

	s.writeJSON(w, http.StatusOK, resp)
}

type dealResponse struct {
	Deal       *models.Deal       `json:"deal"`
	Milestones []models.Milestone `json:"milestones"`
	Activities []models.Activity  `json:"activities"`
}

func (s *Server) handleDeal(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	deal, err := s.svc.GetDeal(ctx, s.owner, id)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	milestones, err := s.svc.ListMilestones(ctx, s.owner, id)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	acts, err := s.svc.ListActivities(ctx, s.owner, id)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, dealResponse{Deal: deal, Milestones: milestones, Activities: acts})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrNotFoundOrAccessDenied):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response", "error", err)
	}
}
