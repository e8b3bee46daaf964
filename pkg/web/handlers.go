package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dbehnke/turbocodec/pkg/codec"
	"github.com/dbehnke/turbocodec/pkg/logger"
)

const contentTypeBinary = "application/octet-stream"

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode JSON response", logger.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeBinary(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", contentTypeBinary)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		// Client disconnects are common; log at debug level
		s.logger.Debug("failed to write response body", logger.Error(err))
	}
}

// readBody enforces web.max_body_bytes.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, int, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.Web.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge,
				fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, http.StatusBadRequest, fmt.Errorf("failed to read request body: %w", err)
	}
	return body, http.StatusOK, nil
}

// statusFor maps codec errors to HTTP status codes.
func statusFor(err error) int {
	var malformed *codec.MalformedPacketError
	if errors.As(err, &malformed) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// checkMessageSize enforces web.max_message_bytes. Decode packets are
// judged by the N their header declares, not by the bytes sent.
func (s *Server) checkMessageSize(op string, data []byte) error {
	limit := s.config.Web.MaxMessageBytes
	switch op {
	case OpEncode:
		if int64(len(data)) > limit {
			return fmt.Errorf("message of %d bytes exceeds %d byte limit", len(data), limit)
		}
	case OpDecode:
		// Short headers are left to the codec, which reports them as malformed.
		if n, err := codec.DeclaredBits(data); err == nil && n > uint64(limit)*8 {
			return fmt.Errorf("packet declares %d bits, limit is %d", n, limit*8)
		}
	}
	return nil
}

// runCodec applies the size limit, waits for a codec slot and runs op. The
// returned status is meaningful only when err is non-nil.
func (s *Server) runCodec(ctx context.Context, op string, data []byte) ([]byte, int, error) {
	if err := s.checkMessageSize(op, data); err != nil {
		return nil, http.StatusRequestEntityTooLarge, err
	}

	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, http.StatusServiceUnavailable, fmt.Errorf("waiting for codec: %w", err)
	}
	defer s.slots.Release(1)

	var (
		out []byte
		err error
	)
	switch op {
	case OpEncode:
		out, err = s.codec.Encode(data)
	case OpDecode:
		out, err = s.codec.Decode(data)
	default:
		return nil, http.StatusBadRequest, fmt.Errorf("unknown op %q", op)
	}
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.WithError(err).Error("Codec operation failed", logger.String("op", op))
		}
		return nil, status, err
	}
	return out, http.StatusOK, nil
}

func (s *Server) handleCodec(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, status, err := s.readBody(w, r)
		if err != nil {
			s.writeError(w, status, err)
			return
		}

		out, status, err := s.runCodec(r.Context(), op, body)
		if err != nil {
			s.writeError(w, status, err)
			return
		}

		s.writeBinary(w, out)
	}
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed on %s", r.Method, r.URL.Path))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"uptime": int(time.Since(s.startTime).Seconds()),
		"codec":  s.codec.Stats(),
	}
	if s.reporter != nil {
		if last := s.reporter.Last(); last != nil {
			response["lastReport"] = last
		}
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":   s.version,
		"buildTime": s.buildTime,
		"host":      s.config.Web.Host,
		"port":      s.config.Web.Port,
	})
}

func (s *Server) handleGetCodecConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.codec.Config()

	generators := make([]string, len(cfg.Generators))
	for i, g := range cfg.Generators {
		generators[i] = fmt.Sprintf("%o", g)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"constraintLength": cfg.ConstraintLength,
		"iterations":       cfg.Iterations,
		"generators":       generators,
		"feedback":         fmt.Sprintf("%o", cfg.Feedback),
		"seed":             cfg.Seed,
		"interleaver":      cfg.Interleaver,
		"workers":          cfg.Workers,
	})
}
