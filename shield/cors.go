package shield

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS returns middleware answering cross-origin requests from origins.
// A single "*" allows any origin. Content-Disposition is exposed so browser
// clients can read the suggested download name.
func CORS(origins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Accept"},
		ExposedHeaders: []string{"Content-Disposition", "X-Trace-ID"},
		MaxAge:         600,
	})
	return c.Handler
}
