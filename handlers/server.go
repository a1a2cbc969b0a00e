package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"keymint.app/commerce/internal/config"
	"keymint.app/commerce/internal/orders"
	"keymint.app/commerce/internal/provision"
	"keymint.app/commerce/internal/ratelimit"
	"keymint.app/commerce/storage"
)

// rowsPerPage is the page size of both the admin list and the account list.
const rowsPerPage = 10

type Server struct {
	Router      *chi.Mux
	Store       storage.Store
	Orders      *orders.Service
	Provisioner *provision.Provisioner
	Config      *config.Config
	Limiter     ratelimit.RateLimit
	Version     string

	started time.Time
}

func NewServer(store storage.Store, ordersService *orders.Service, provisioner *provision.Provisioner, cfg *config.Config, version string) *Server {
	s := &Server{
		Store:       store,
		Orders:      ordersService,
		Provisioner: provisioner,
		Config:      cfg,
		Limiter:     ratelimit.New(120, time.Minute),
		Version:     version,
		started:     time.Now(),
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/health", s.Health)
	r.Post("/api/v1/webhooks/stripe", s.StripeWebhook)

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Use(s.requireUser)

		r.Get("/api/v1/account/contracts", s.AccountContracts)
		r.Get("/api/v1/orders/{orderID}/contracts", s.OrderContracts)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)

			r.Post("/api/v1/orders/{orderID}/confirm", s.ConfirmOrder)
			r.Get("/api/v1/admin/contracts", s.AdminContracts)
			r.Get("/api/v1/admin/users/search", s.UserSearch)
		})
	})

	s.Router = r
	return s
}

// envelope is the wire shape of every API response: data carries the
// payload on success and the error message otherwise.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Data: message})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
