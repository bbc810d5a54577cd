package httpserver

import (
	"net/http"

	"tradesync/internal/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

type RouterDeps struct {
	Handler   *Handler
	Tokens    *TokenService
	WebOrigin string
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{d.WebOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	r.Use(SecurityHeaders)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Route("/v1", func(r chi.Router) {
		// Broker sync clients authenticate per request with their auth key.
		r.Post("/sync/fill", d.Handler.SyncFill)

		r.Group(func(r chi.Router) {
			r.Use(WithAuth(d.Tokens))
			r.Post("/trades/fill", withUser(d.Handler.Fill))
			r.Post("/trades/risk-level", withUser(d.Handler.RiskLevel))
			r.Post("/trades/aggregate", withUser(d.Handler.Aggregate))
			r.Get("/trades", withUser(d.Handler.Trades))
			r.Post("/references", withUser(d.Handler.AttachReference))
			r.Delete("/references/{id}", withUser(d.Handler.DetachReference))
		})
	})

	return r
}

func withUser(h func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserID(r)
		if !ok {
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
			return
		}
		h(w, r, userID)
	}
}
