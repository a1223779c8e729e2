package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/returnlab/portal/internal/blob"
	"github.com/returnlab/portal/internal/metrics"
	"github.com/returnlab/portal/internal/receipt"
	"github.com/returnlab/portal/internal/repository"
	"github.com/returnlab/portal/internal/returns"
	"github.com/returnlab/portal/internal/stores"
)

func (s *Server) handleOrderSearch(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")

	result, err := s.aggregator.Search(r.Context(), email)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateReturn(w http.ResponseWriter, r *http.Request) {
	var payload returns.CreatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := s.returns.Create(r.Context(), &payload)
	if err != nil {
		s.respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"id":               id.String(),
		"reference_number": receipt.ReferenceNumber(&repository.ReturnRequest{ID: id}),
		"status":           repository.StatusPending,
	})
}

func (s *Server) handleListReturns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := repository.ListFilter{Status: q.Get("status")}
	if raw := q.Get("store_id"); raw != "" {
		storeID, err := uuid.Parse(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid store_id")
			return
		}
		filter.StoreID = &storeID
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid value for 'limit' parameter")
			return
		}
		filter.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid value for 'offset' parameter")
			return
		}
		filter.Offset = offset
	}

	result, err := s.returns.List(r.Context(), filter)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleReturnAction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusNotFound, "return request not found")
		return
	}

	var body struct {
		Action string `json:"action"`
		Notes  string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := s.returns.Transition(r.Context(), id, body.Action, body.Notes)
	if err != nil {
		s.respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":              updated.ID.String(),
		"status":          updated.Status,
		"admin_notes":     updated.AdminNotes,
		"resolution_date": updated.ResolutionDate,
	})
}

func (s *Server) handleReturnHistory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusNotFound, "return request not found")
		return
	}

	actions, err := s.returns.History(r.Context(), id)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"actions": actions})
}

// maxUploadRequestBytes caps the whole upload request; the per-file ceilings
// live in the file store.
const maxUploadRequestBytes = 12 << 20

// handleUpload accepts the file bytes two ways: the wizard posts the raw body
// with its declared Content-Type and an X-Filename hint, the admin UI posts
// multipart/form-data with a "file" field. The document slot is selected with
// ?kind=document (or the form field of the same name).
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	kind := blob.KindImage
	if r.URL.Query().Get("kind") == string(blob.KindDocument) {
		kind = blob.KindDocument
	}

	contentType := r.Header.Get("Content-Type")
	filename := r.Header.Get("X-Filename")
	var body io.Reader = r.Body

	if strings.HasPrefix(contentType, "multipart/form-data") {
		// ParseMultipartForm's argument only bounds in-memory buffering, so
		// cap the request itself first.
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadRequestBytes)
		if err := r.ParseMultipartForm(4 << 20); err != nil {
			respondError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			respondError(w, http.StatusBadRequest, "missing 'file' field")
			return
		}
		defer file.Close()

		if r.FormValue("kind") == string(blob.KindDocument) {
			kind = blob.KindDocument
		}
		body = file
		contentType = header.Header.Get("Content-Type")
		filename = header.Filename
	}

	stored, err := s.files.Save(kind, contentType, filename, body)
	if err != nil {
		s.respondAppError(w, err)
		return
	}

	metrics.UploadsTotal.WithLabelValues(string(kind)).Inc()
	respondJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	var rawID, email string
	switch r.Method {
	case http.MethodGet:
		rawID = r.URL.Query().Get("id")
		email = r.URL.Query().Get("email")
	default:
		var body struct {
			ID    string `json:"id"`
			Email string `json:"customer_email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		rawID = body.ID
		email = body.Email
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		respondError(w, http.StatusNotFound, "return request not found")
		return
	}

	req, err := s.returns.GetForCustomer(r.Context(), id, email)
	if err != nil {
		s.respondAppError(w, err)
		return
	}

	storeName := ""
	if store, err := s.storeNames.GetByID(r.Context(), req.StoreID); err == nil {
		storeName = store.Name
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition",
		`attachment; filename="return-receipt-`+receipt.ReferenceNumber(req)+`.html"`)
	if err := receipt.Render(w, req, storeName); err != nil {
		s.logger.Error("receipt render failed", zap.Error(err))
	}
}

func (s *Server) handleListStores(w http.ResponseWriter, r *http.Request) {
	views, err := s.stores.List(r.Context())
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"stores": views})
}

func (s *Server) handleCreateStore(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name   string `json:"name"`
		Domain string `json:"storefront_domain"`
		Token  string `json:"storefront_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := s.stores.Create(r.Context(), body.Name, body.Domain, body.Token)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

func (s *Server) handleUpdateStore(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusNotFound, "store not found")
		return
	}

	var patch stores.UpdatePayload
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := s.stores.Update(r.Context(), id, patch)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteStore(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusNotFound, "store not found")
		return
	}

	if err := s.stores.Delete(r.Context(), id); err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleOAuthConnect(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Domain       string `json:"domain"`
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
		StoreName    string `json:"store_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	authURL, err := s.oauth.Connect(body.Domain, body.ClientID, body.ClientSecret, body.StoreName)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"auth_url": authURL})
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirect := s.oauth.Callback(r.Context(), q.Get("code"), q.Get("shop"), q.Get("state"))
	http.Redirect(w, r, redirect, http.StatusFound)
}
