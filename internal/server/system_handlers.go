package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/glidepath/internal/database"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemHandlers handles system-wide monitoring endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	db          *database.DB
	startupTime time.Time
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(db *database.DB, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		db:          db,
		startupTime: time.Now(),
	}
}

// HealthResponse is the system health payload.
type HealthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemPercent    float64 `json:"mem_percent"`

	Database struct {
		Healthy      bool  `json:"healthy"`
		SizeBytes    int64 `json:"size_bytes"`
		WALSizeBytes int64 `json:"wal_size_bytes"`
		PageCount    int64 `json:"page_count"`
	} `json:"database"`
}

// HandleSystemHealth handles GET /api/system/health
func (h *SystemHandlers) HandleSystemHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(h.startupTime).Seconds(),
	}
	resp.CPUPercent, resp.MemPercent = h.getSystemStats()

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp.Database.Healthy = true
	if err := h.db.HealthCheck(ctx); err != nil {
		h.log.Error().Err(err).Msg("Database health check failed")
		resp.Status = "degraded"
		resp.Database.Healthy = false
	}

	if stats, err := h.db.GetStats(); err == nil {
		resp.Database.SizeBytes = stats.SizeBytes
		resp.Database.WALSizeBytes = stats.WALSizeBytes
		resp.Database.PageCount = stats.PageCount
	}

	w.Header().Set("Content-Type", "application/json")
	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode health response")
	}
}

// getSystemStats returns CPU and RAM usage percentages. The 100ms sampling
// window keeps the endpoint responsive for pollers.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
