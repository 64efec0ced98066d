package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/aristath/swingsentinel/internal/database"
	"github.com/aristath/swingsentinel/internal/di"
	"github.com/aristath/swingsentinel/internal/scheduler"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// JobRunner runs registered jobs on demand.
type JobRunner interface {
	RunNow(job scheduler.Job) error
	Running(name string) bool
	Jobs() int
}

// SystemHandlers serves health, status and manual job triggers.
type SystemHandlers struct {
	databases []*database.DB
	runner    JobRunner
	jobs      *di.JobInstances
	started   time.Time
	log       zerolog.Logger
}

// NewSystemHandlers creates system handlers. Nil databases are ignored.
func NewSystemHandlers(log zerolog.Logger, dbs []*database.DB, runner JobRunner, jobs *di.JobInstances) *SystemHandlers {
	databases := make([]*database.DB, 0, len(dbs))
	for _, db := range dbs {
		if db != nil {
			databases = append(databases, db)
		}
	}
	return &SystemHandlers{
		databases: databases,
		runner:    runner,
		jobs:      jobs,
		started:   time.Now(),
		log:       log.With().Str("handler", "system").Logger(),
	}
}

// DBInfo describes one database file.
type DBInfo struct {
	Name   string  `json:"name"`
	Path   string  `json:"path"`
	SizeMB float64 `json:"size_mb"`
	OK     bool    `json:"ok"`
	Error  string  `json:"error,omitempty"`
}

// JobInfo describes one registered job.
type JobInfo struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
}

// HandleHealth handles GET /health. Every database must pass a quick check.
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	for _, db := range h.databases {
		if err := db.QuickCheck(ctx); err != nil {
			h.log.Error().Err(err).Str("database", db.Name()).Msg("Health check failed")
			status, code = "unhealthy", http.StatusServiceUnavailable
			break
		}
	}

	h.writeJSON(w, code, map[string]interface{}{
		"status":  status,
		"service": "swingsentinel",
	})
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	dbs := make([]DBInfo, 0, len(h.databases))
	totalSizeMB := 0.0
	for _, db := range h.databases {
		info := DBInfo{Name: db.Name(), Path: db.Path(), OK: true}
		if st, err := os.Stat(db.Path()); err == nil {
			info.SizeMB = float64(st.Size()) / 1024 / 1024
			totalSizeMB += info.SizeMB
		}
		if err := db.QuickCheck(ctx); err != nil {
			info.OK = false
			info.Error = err.Error()
		}
		dbs = append(dbs, info)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"scheduled_jobs": h.runner.Jobs(),
		"databases":      dbs,
		"total_size_mb":  totalSizeMB,
		"jobs":           h.jobInfos(),
	})
}

// HandleListJobs handles GET /api/system/jobs
func (h *SystemHandlers) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.jobInfos())
}

// HandleTriggerJob handles POST /api/system/jobs/{name}. The job runs in the
// background; the response only confirms it was started.
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job := h.jobs.ByName(name)
	if job == nil {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown job " + name})
		return
	}
	if h.runner.Running(name) {
		h.writeJSON(w, http.StatusConflict, map[string]string{"error": "job already running"})
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job trigger")
	go func() {
		if err := h.runner.RunNow(job); err != nil {
			h.log.Warn().Err(err).Str("job", name).Msg("Manually triggered job did not complete")
		}
	}()

	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"message": name + " triggered",
	})
}

func (h *SystemHandlers) jobInfos() []JobInfo {
	infos := []JobInfo{}
	if h.jobs == nil {
		return infos
	}
	for _, job := range h.jobs.All() {
		if job == nil {
			continue
		}
		infos = append(infos, JobInfo{Name: job.Name(), Running: h.runner.Running(job.Name())})
	}
	return infos
}

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
