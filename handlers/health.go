package handlers

import (
	"net/http"
	"time"

	"keymint.app/commerce/internal/provision"
)

type healthResponse struct {
	Status      string          `json:"status"`
	Version     string          `json:"version"`
	Uptime      string          `json:"uptime"`
	Provisioner provision.Stats `json:"provisioner"`
	Timestamp   time.Time       `json:"timestamp"`
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "healthy",
		Version:     s.Version,
		Uptime:      time.Since(s.started).Round(time.Second).String(),
		Provisioner: s.Provisioner.Stats(),
		Timestamp:   time.Now(),
	})
}
