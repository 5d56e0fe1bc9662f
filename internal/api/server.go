package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/politrack/sentinel/internal/archive"
	"github.com/politrack/sentinel/internal/campaign"
	"github.com/politrack/sentinel/internal/config"
	"github.com/politrack/sentinel/internal/dedup"
	"github.com/politrack/sentinel/internal/models"
	"github.com/politrack/sentinel/internal/scheduler"
	"github.com/politrack/sentinel/internal/store"
)

// Server exposes the operational HTTP surface: collection triggers, task
// inspection, and the campaign dashboard.
type Server struct {
	config    *config.Config
	scheduler *scheduler.Service
	detector  *campaign.Detector
	store     store.Store
	dedupe    dedup.Cache
	archiver  archive.Archiver
}

// NewServer creates the API server
func NewServer(cfg *config.Config, sched *scheduler.Service, det *campaign.Detector, st store.Store, cache dedup.Cache, archiver archive.Archiver) *Server {
	return &Server{
		config:    cfg,
		scheduler: sched,
		detector:  det,
		store:     st,
		dedupe:    cache,
		archiver:  archiver,
	}
}

// Router builds the route table
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/collect/scheduled", s.handleCollectScheduled).Methods("POST")
	api.HandleFunc("/collect/cluster/{id}", s.handleCollectCluster).Methods("POST")
	api.HandleFunc("/collect/emergency", s.handleCollectEmergency).Methods("POST")

	api.HandleFunc("/clusters", s.handleListClusters).Methods("GET")

	api.HandleFunc("/archives", s.handleListArchives).Methods("GET")
	api.HandleFunc("/archives/{name:.+}", s.handleGetArchive).Methods("GET")

	api.HandleFunc("/tasks", s.handleListTasks).Methods("GET")
	api.HandleFunc("/tasks/{id}", s.handleGetTask).Methods("GET")
	api.HandleFunc("/tasks/{id}", s.handleCancelTask).Methods("DELETE")

	api.HandleFunc("/campaigns", s.handleListCampaigns).Methods("GET")
	api.HandleFunc("/campaigns/stats", s.handleCampaignStats).Methods("GET")
	api.HandleFunc("/campaigns/detect", s.handleDetect).Methods("POST")
	api.HandleFunc("/campaigns/{id}", s.handleGetCampaign).Methods("GET")
	api.HandleFunc("/campaigns/{id}/acknowledge", s.handleAcknowledge).Methods("POST")
	api.HandleFunc("/campaigns/{id}/resolve", s.handleResolve).Methods("POST")

	return router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	checks := map[string]string{"store": "ok", "dedup": "ok"}

	if err := s.store.Ping(ctx); err != nil {
		status = "degraded"
		checks["store"] = err.Error()
	}
	if err := s.dedupe.Ping(ctx); err != nil {
		status = "degraded"
		checks["dedup"] = err.Error()
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleCollectScheduled(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.scheduler.TriggerScheduled()
	if err != nil {
		writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, tasks)
}

func (s *Server) handleCollectCluster(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	task, err := s.scheduler.TriggerCluster(id)
	if err != nil {
		writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

func (s *Server) handleCollectEmergency(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ClusterID uuid.UUID `json:"cluster_id"`
		Keywords  []string  `json:"keywords"`
		Priority  int       `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.ClusterID == uuid.Nil && len(body.Keywords) == 0 {
		writeError(w, http.StatusBadRequest, "cluster_id or keywords is required")
		return
	}

	task, err := s.scheduler.TriggerEmergency(body.ClusterID, body.Keywords, body.Priority)
	if err != nil {
		writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

// clusterSummary pairs a configured cluster with its stored post count
type clusterSummary struct {
	models.Cluster
	PostCount int `json:"post_count"`
}

func (s *Server) handleListClusters(w http.ResponseWriter, r *http.Request) {
	clusters, err := s.config.LoadClusters()
	if err != nil {
		logrus.Errorf("Failed to load clusters: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load clusters")
		return
	}

	summaries := make([]clusterSummary, 0, len(clusters))
	for _, cluster := range clusters {
		count, err := s.store.CountPostsByCluster(r.Context(), cluster.ID)
		if err != nil {
			logrus.Errorf("Failed to count posts for cluster %s: %v", cluster.ID, err)
			writeError(w, http.StatusInternalServerError, "failed to count posts")
			return
		}
		summaries = append(summaries, clusterSummary{Cluster: cluster, PostCount: count})
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleListArchives(w http.ResponseWriter, r *http.Request) {
	names, err := s.archiver.List(r.URL.Query().Get("prefix"))
	if err != nil {
		logrus.Errorf("Failed to list archives: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"archives": names})
}

func (s *Server) handleGetArchive(w http.ResponseWriter, r *http.Request) {
	data, err := s.archiver.Retrieve(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, http.StatusNotFound, "archive not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logrus.Errorf("Failed to write archive response: %v", err)
	}
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scheduler.ListTasks())
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	task, err := s.scheduler.GetTask(id)
	if err != nil {
		writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.scheduler.CancelTask(id); err != nil {
		writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	filter := store.CampaignFilter{
		Status:      models.CampaignStatus(r.URL.Query().Get("status")),
		ThreatLevel: models.ThreatLevel(r.URL.Query().Get("threat_level")),
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		filter.Since = since
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	campaigns, err := s.store.ListCampaigns(r.Context(), filter)
	if err != nil {
		logrus.Errorf("Failed to list campaigns: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list campaigns")
		return
	}
	writeJSON(w, http.StatusOK, campaigns)
}

func (s *Server) handleCampaignStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.detector.Stats(r.Context())
	if err != nil {
		logrus.Errorf("Failed to compute campaign stats: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	task, err := s.scheduler.TriggerDetection()
	if err != nil {
		writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	found, err := s.store.GetCampaign(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "campaign not found")
			return
		}
		logrus.Errorf("Failed to load campaign %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to load campaign")
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		By   string `json:"by"`
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.By == "" {
		writeError(w, http.StatusBadRequest, "by is required")
		return
	}

	acked, err := s.detector.Acknowledge(r.Context(), id, body.By, body.Note)
	if err != nil {
		writeCampaignError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, acked)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resolved, err := s.detector.Resolve(r.Context(), id, body.Note)
	if err != nil {
		writeCampaignError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func writeSchedulerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, scheduler.ErrTaskDone):
		writeError(w, http.StatusConflict, "task already finished")
	case errors.Is(err, scheduler.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, "task queue is full")
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func writeCampaignError(w http.ResponseWriter, id uuid.UUID, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "campaign not found")
	case errors.Is(err, campaign.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		logrus.Errorf("Campaign %s operation failed: %v", id, err)
		writeError(w, http.StatusInternalServerError, "operation failed")
	}
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
