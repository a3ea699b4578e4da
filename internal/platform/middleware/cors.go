package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS returns a permissive CORS middleware. Browser clients need X-Request-Id and
// traceparent for correlation and Last-Event-ID to resume the session event stream.
func CORS() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodHead,
			http.MethodPost,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-Id",
			"traceparent",
			"Last-Event-ID",
		},
		ExposedHeaders: []string{"X-Request-Id", "Location"},
		MaxAge:         300,
	})
}
