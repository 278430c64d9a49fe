package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// Local origins of the storefront web apps, so they can run against the twin.
var defaultCORSOrigins = []string{
	"http://localhost:5173",
	"http://localhost:5174",
	"http://localhost:3000",
}

// CORS applies the twin's allowed origin policy. Extra origins are appended.
func CORS(extra ...string) func(http.Handler) http.Handler {
	origins := append(append([]string(nil), defaultCORSOrigins...), extra...)
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
