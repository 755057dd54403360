package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/contaluz/energia-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса энергосчетов.
// Пути заканчиваются косой чертой, как в API, под которое написан клиент.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login/", h.Login)
		r.Post("/auth/register/", h.Register)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/auth/profile/", h.GetProfile)
			r.Patch("/auth/profile/", h.UpdateProfile)

			r.Get("/bills/", h.GetBills)
			r.Post("/bills/upload/", h.UploadBill)

			r.Get("/analytics/summary/", h.GetAnalyticsSummary)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
