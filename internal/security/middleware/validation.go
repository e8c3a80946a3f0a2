package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
)

// maxBodyBytes caps request payloads; orders are the largest bodies we accept
const maxBodyBytes = 1 << 20

// markup characters rejected in query values
const suspiciousChars = `<>"'&`

// reject writes a JSON error body, matching what the API handlers produce
func reject(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func hasBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return r.ContentLength != 0
	}
	return false
}

// ValidateJSONContentType requires application/json on requests that carry
// a body and caps the body size. Body-less commands (accept, submit) pass.
func ValidateJSONContentType(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hasBody(r) {
				next.ServeHTTP(w, r)
				return
			}
			mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mediaType != "application/json" {
				log.Warn("invalid content type",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("content_type", r.Header.Get("Content-Type")),
				)
				reject(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// RequireFields checks that the JSON object body carries every listed field,
// then restores the body so the handler can decode it again
func RequireFields(log *slog.Logger, fields ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			r.Body.Close()
			if err != nil {
				reject(w, http.StatusBadRequest, "unreadable body")
				return
			}

			var payload map[string]json.RawMessage
			if err := json.Unmarshal(raw, &payload); err != nil {
				log.Warn("invalid json payload", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
				reject(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
			var missing []string
			for _, f := range fields {
				if v, ok := payload[f]; !ok || string(v) == "null" {
					missing = append(missing, f)
				}
			}
			if len(missing) > 0 {
				log.Warn("missing required fields", slog.String("path", r.URL.Path), slog.Any("fields", missing))
				reject(w, http.StatusBadRequest, "missing required field: "+strings.Join(missing, ", "))
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(raw))
			r.ContentLength = int64(len(raw))
			next.ServeHTTP(w, r)
		})
	}
}

// SanitizeInputs rejects query values containing markup and paths with
// traversal patterns. Parameters named in exempt, such as the order filter
// expression, pass through untouched.
func SanitizeInputs(log *slog.Logger, exempt ...string) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(exempt))
	for _, name := range exempt {
		skip[name] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.Contains(r.URL.Path, "..") || strings.Contains(r.URL.Path, "//") {
				log.Warn("suspicious path", slog.String("path", r.URL.Path))
				reject(w, http.StatusBadRequest, "invalid path")
				return
			}
			for key, values := range r.URL.Query() {
				if skip[key] {
					continue
				}
				for _, v := range values {
					if strings.ContainsAny(v, suspiciousChars) {
						log.Warn("suspicious query value", slog.String("path", r.URL.Path), slog.String("param", key))
						reject(w, http.StatusBadRequest, "invalid input in "+key)
						return
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
