package middleware

import (
	"mime"
	"net/http"

	"github.com/weatherflows/weatherflows/internal/api/models"
)

// RequireJSON rejects request bodies that are not application/json with
// 415. Requests without a body or Content-Type pass through.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contentType := r.Header.Get("Content-Type"); contentType != "" {
			mediaType, _, err := mime.ParseMediaType(contentType)
			if err != nil || mediaType != "application/json" {
				problem := models.NewUnsupportedMediaType(GetRequestID(r.Context()),
					"Content-Type must be application/json")
				problem.Instance = r.URL.Path
				problem.Write(w)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
