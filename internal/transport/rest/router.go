package rest

import (
	"net/http"

	"nesugoshipanic/internal/service"
	"nesugoshipanic/internal/transport/rest/handler"
	"nesugoshipanic/internal/transport/rest/middleware"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Container holds all dependencies for the router.
type Container struct {
	GameService   *service.GameService
	Webhook       http.Handler
	LoginCallback http.Handler
	AdminAPIKey   string
	Stage3GameURL string
	Logger        zerolog.Logger
}

// NewRouter creates the HTTP router with all endpoints.
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(c.Logger))

	progress := handler.NewProgressHandler(c.GameService, c.Logger)

	// LINE-facing endpoints
	r.Handle("/webhook", c.Webhook).Methods("POST")
	r.Handle("/line-login-callback", c.LoginCallback).Methods("GET")

	// Game-facing progress API
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stage2-completed", progress.Stage2Completed).Methods("POST")
	api.HandleFunc("/stage3-completed", progress.Stage3Completed).Methods("POST")
	api.HandleFunc("/update-progress", progress.UpdateProgress).Methods("POST")
	api.HandleFunc("/verify-id/{gameId}", progress.VerifyID).Methods("GET")
	api.HandleFunc("/verify-stage3-id/{gameId}", progress.VerifyStage3ID).Methods("GET")
	api.HandleFunc("/ranking", progress.Ranking).Methods("GET")

	// Operator routes
	debug := api.PathPrefix("/debug").Subrouter()
	debug.Use(middleware.RequireAPIKey(c.AdminAPIKey))
	debug.HandleFunc("/advance-stage3", progress.DebugAdvanceStage3).Methods("POST")

	// Browser pages
	r.Handle("/stage3", handler.NewStage3RedirectPage(c.Stage3GameURL)).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	return r
}
