package handlers

import (
	"net/http"
	"strconv"

	"keymint.app/commerce/internal/logger"
	"keymint.app/commerce/models"
)

type contractListData struct {
	Contracts  []*models.Contract `json:"contracts"`
	Page       int                `json:"page"`
	PerPage    int                `json:"per_page"`
	Total      int                `json:"total"`
	TotalPages int                `json:"total_pages"`
}

// AccountContracts lists the authenticated user's own contracts, newest
// first, paginated by the contracts-page query parameter.
func (s *Server) AccountContracts(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	page := pageParam(r.URL.Query().Get("contracts-page"))
	offset := (page - 1) * rowsPerPage

	total, err := s.Store.CountContractsByUser(r.Context(), user.ID)
	if err != nil {
		logger.Error("account contract count failed", map[string]interface{}{
			"error":   err.Error(),
			"user_id": user.ID,
		})
		writeError(w, http.StatusInternalServerError, "Failed to load contracts")
		return
	}

	contracts, err := s.Store.ContractsByUser(r.Context(), user.ID, offset, rowsPerPage)
	if err != nil {
		logger.Error("account contract list failed", map[string]interface{}{
			"error":   err.Error(),
			"user_id": user.ID,
		})
		writeError(w, http.StatusInternalServerError, "Failed to load contracts")
		return
	}

	if contracts == nil {
		contracts = []*models.Contract{}
	}
	writeSuccess(w, contractListData{
		Contracts:  contracts,
		Page:       page,
		PerPage:    rowsPerPage,
		Total:      total,
		TotalPages: totalPages(total),
	})
}

func pageParam(raw string) int {
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func totalPages(total int) int {
	pages := (total + rowsPerPage - 1) / rowsPerPage
	if pages < 1 {
		pages = 1
	}
	return pages
}
