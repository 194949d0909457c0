package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// CORS allows read-only access to served files. With no origins configured
// every origin is allowed and credentials are disabled.
func CORS(origins []string, logger *zap.Logger) func(http.Handler) http.Handler {
	methods := []string{http.MethodGet, http.MethodHead, http.MethodOptions}

	if len(origins) > 0 {
		logger.Info("cors origins loaded", zap.Int("count", len(origins)))
		return cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   methods,
			AllowedHeaders:   []string{"*"},
			ExposedHeaders:   []string{"Content-Disposition"},
			AllowCredentials: true,
			MaxAge:           86400,
		})
	}

	logger.Warn("no cors origins configured, allowing all origins")
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   methods,
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           86400,
	})
}
