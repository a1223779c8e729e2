package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// auditMiddleware records every admin request: who asked for what, the bodies
// in both directions, and for status transitions the old and new status.
func (s *Server) auditMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entry := AuditLogEntry{
			Timestamp: time.Now().UTC(),
			Method:    r.Method,
			Path:      r.URL.Path,
			Handler:   handlerName(r.URL.Path, r.Method),
		}

		vars := mux.Vars(r)
		if id, ok := vars["id"]; ok {
			if strings.Contains(r.URL.Path, "/returns/") {
				entry.ReturnID = id
			} else if strings.Contains(r.URL.Path, "/stores/") {
				entry.StoreID = id
			}
		}

		var requestBody []byte
		if r.Body != nil && !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
			requestBody, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(requestBody))
			entry.Request = string(requestBody)
		}

		if entry.ReturnID != "" && strings.HasSuffix(r.URL.Path, "/action") {
			var actionRequest struct {
				Action string `json:"action"`
			}
			if err := json.Unmarshal(requestBody, &actionRequest); err == nil {
				entry.Action = actionRequest.Action
				if id, err := uuid.Parse(entry.ReturnID); err == nil {
					if current, err := s.returns.GetForAudit(r.Context(), id); err == nil {
						entry.OldStatus = current
					}
				}
			}
		}

		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		entry.StatusCode = rec.status
		entry.Response = rec.body.String()
		if entry.Action != "" && entry.StatusCode == http.StatusOK {
			var actionResponse struct {
				Status string `json:"status"`
			}
			if err := json.Unmarshal(rec.body.Bytes(), &actionResponse); err == nil {
				entry.NewStatus = actionResponse.Status
			}
		}

		s.audit.LogEntry(r.Context(), entry)
	})
}

// responseRecorder tees what the handler writes so the audit entry can carry
// the response body and status alongside the request.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *responseRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func handlerName(path, method string) string {
	switch {
	case strings.HasSuffix(path, "/actions"):
		return "handleReturnHistory"
	case strings.HasSuffix(path, "/action"):
		return "handleReturnAction"
	case strings.HasSuffix(path, "/returns") && method == http.MethodGet:
		return "handleListReturns"
	case strings.Contains(path, "/stores"):
		switch method {
		case http.MethodPost:
			return "handleCreateStore"
		case http.MethodPut:
			return "handleUpdateStore"
		case http.MethodDelete:
			return "handleDeleteStore"
		default:
			return "handleListStores"
		}
	case strings.Contains(path, "/shopify/connect"):
		return "handleOAuthConnect"
	}
	return "unknown"
}
