package server

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/joeblew999/plat-tweetmap/internal/config"
)

const loginPath = "/api/v1/auth/login"

// middleware wraps h with panic recovery, CORS and the login rate limit.
func middleware(h http.Handler, cfg config.ServerConfig) http.Handler {
	if cfg.LoginRateLimit > 0 {
		h = limitLogin(h, httprate.LimitByIP(cfg.LoginRateLimit, time.Minute))
	}
	if len(cfg.CORSOrigins) > 0 {
		h = cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "Authorization", "Datastar-Request"},
			ExposedHeaders:   []string{"Link"},
			AllowCredentials: true,
			MaxAge:           86400,
		})(h)
	}
	return chimiddleware.Recoverer(h)
}

// limitLogin applies limit to login attempts only.
func limitLogin(next http.Handler, limit func(http.Handler) http.Handler) http.Handler {
	limited := limit(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == loginPath {
			limited.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
