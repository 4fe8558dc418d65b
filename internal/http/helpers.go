package http

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"despesas/internal/core"
)

const maxRequestIDLen = 64

// parseMode reads the mode query parameter. Empty means the current month.
func parseMode(r *http.Request) (core.ViewMode, error) {
	return core.ParseViewMode(r.URL.Query().Get("mode"))
}

// pathID returns the cleaned {id} path value.
func pathID(r *http.Request) string {
	return sanitizeInput(r.PathValue("id"))
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// requestID reuses a well-formed X-Request-ID or generates one.
func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" && len(id) <= maxRequestIDLen && id == sanitizeInput(id) && !strings.ContainsAny(id, " \t") {
		return id
	}
	return generateRequestID()
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}
