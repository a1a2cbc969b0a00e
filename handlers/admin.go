package handlers

import (
	"fmt"
	"net/http"

	"keymint.app/commerce/internal/logger"
	"keymint.app/commerce/models"
)

// userSearchLimit caps the type-ahead result list.
const userSearchLimit = 20

// AdminContracts is the admin list view's data source: free-text search
// across name, information and contract key, 10 rows per page via the
// paged query parameter.
func (s *Server) AdminContracts(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")
	page := pageParam(r.URL.Query().Get("paged"))
	offset := (page - 1) * rowsPerPage

	total, err := s.Store.CountContracts(r.Context(), search)
	if err != nil {
		logger.Error("admin contract count failed", map[string]interface{}{
			"error":  err.Error(),
			"search": search,
		})
		writeError(w, http.StatusInternalServerError, "Failed to load contracts")
		return
	}

	contracts, err := s.Store.SearchContracts(r.Context(), search, offset, rowsPerPage)
	if err != nil {
		logger.Error("admin contract search failed", map[string]interface{}{
			"error":  err.Error(),
			"search": search,
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

type userSearchItem struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// UserSearch backs the admin type-ahead user picker.
func (s *Server) UserSearch(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")

	users, err := s.Store.SearchUsers(r.Context(), search, userSearchLimit)
	if err != nil {
		logger.Error("user search failed", map[string]interface{}{
			"error":  err.Error(),
			"search": search,
		})
		writeError(w, http.StatusInternalServerError, "Failed to search users")
		return
	}

	items := make([]userSearchItem, 0, len(users))
	for _, user := range users {
		items = append(items, userSearchItem{
			ID:   user.ID,
			Text: fmt.Sprintf("%s (%s)", user.DisplayName, user.Email),
		})
	}
	writeSuccess(w, items)
}
