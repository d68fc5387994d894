package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-calc-api/internal/config"
	"go-calc-api/internal/handler"
	"go-calc-api/internal/middleware"
)

type Handlers struct {
	Auth        *handler.AuthHandler
	Calculation *handler.CalculationHandler
	Pages       *handler.PagesHandler
	WS          http.HandlerFunc
}

func New(cfg *config.Config, authMiddleware *middleware.AuthMiddleware, h Handlers) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/", h.Pages.Index)
	r.Get("/login", h.Pages.Login)
	r.Get("/register", h.Pages.Register)
	r.Get("/dashboard", h.Pages.Dashboard)

	// Websocket upgrades hijack the connection, so the timeout wrapper must
	// not cover this route.
	r.Get("/ws", h.WS)

	r.Group(func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/register", h.Auth.Register)
			auth.Post("/login", h.Auth.Login)
			auth.Post("/token", h.Auth.Token)
			auth.Post("/refresh", h.Auth.Refresh)
			auth.With(authMiddleware.RequireAuth).Post("/logout", h.Auth.Logout)
			auth.With(authMiddleware.RequireAuth).Get("/me", h.Auth.Me)
		})

		api.Route("/calculations", func(calc chi.Router) {
			calc.Use(authMiddleware.RequireAuth)
			calc.Get("/", h.Calculation.Browse)
			calc.Post("/", h.Calculation.Add)
			calc.Get("/{calculation_id}", h.Calculation.Read)
			calc.Put("/{calculation_id}", h.Calculation.Edit)
			calc.Delete("/{calculation_id}", h.Calculation.Delete)
		})
	})

	return r
}
