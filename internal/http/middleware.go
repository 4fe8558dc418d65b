package http

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"despesas/internal/log"
)

// withMiddleware adds request ids, security headers, bearer auth, rate
// limiting on writes and the access log.
func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		reqID := requestID(r)

		logger := s.logger.With(log.FieldRequestID, reqID)
		ctx := context.WithValue(r.Context(), log.LoggerContextKey, logger)
		r = r.WithContext(ctx)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		defer func() {
			duration := time.Since(start)
			log.LogHTTPEnd(ctx, r, rw.statusCode, duration.Milliseconds(), clientIP)
			s.metrics.ObserveHTTP(r.Method, rw.statusCode, duration)
		}()

		rw.Header().Set("X-Request-ID", reqID)
		rw.Header().Set("X-Content-Type-Options", "nosniff")
		rw.Header().Set("X-Frame-Options", "DENY")
		rw.Header().Set("X-XSS-Protection", "1; mode=block")
		rw.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		rw.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if detectSuspiciousRequest(r, s.security) {
			logger.WarnContext(ctx, "Suspicious request",
				log.FieldClientIP, clientIP, log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
		}

		if strings.HasPrefix(r.URL.Path, "/api/") && !validBearer(r, s.cfg.APIToken) {
			atomic.AddInt64(&s.security.rejectedTokens, 1)
			logger.WarnContext(ctx, "Request with invalid token refused",
				log.FieldClientIP, clientIP, log.FieldErrorType, log.ErrorTypeAuth)
			ErrorResponse(http.StatusForbidden, "invalid or missing API token").Write(rw)
			return
		}

		if isMutation(r.Method) {
			if ok, wait := s.limiter.allow(clientIP); !ok {
				atomic.AddInt64(&s.security.rateLimitHits, 1)
				logger.WarnContext(ctx, "Rate limit exceeded",
					log.FieldClientIP, clientIP, log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
				ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").
					Header("Retry-After", strconv.Itoa(retryAfterSeconds(wait))).
					Write(rw)
				return
			}
		}

		next.ServeHTTP(rw, r)
	})
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// responseWriter captures the status code. It passes hijacking through so
// the feed endpoint can upgrade to a websocket.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	// A hijacked connection is reported as a protocol switch.
	rw.statusCode = http.StatusSwitchingProtocols
	rw.wroteHeader = true
	return h.Hijack()
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
