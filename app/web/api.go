package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/jobord/app/joborder"
)

// APIConfigResponse is the JSON response for /api/config
type APIConfigResponse struct {
	LastSerial int `json:"lastSerial"`
	NextSerial int `json:"nextSerial"`
}

// APIListResponse is the JSON response for job orders list
type APIListResponse struct {
	Records []joborder.Record `json:"records"`
}

// APICreateResponse is the JSON response for a created job order
type APICreateResponse struct {
	Success  bool   `json:"success"`
	ID       string `json:"id"`
	Location string `json:"location"`
}

// APISuccessResponse is the JSON response for operations without payload
type APISuccessResponse struct {
	Success bool `json:"success"`
}

// handleConfig returns the last used and the suggested next serial number, never fails
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	last := s.serials.LastSerial(r.Context())
	s.metrics.observe("config", start, nil)
	s.writeJSON(w, http.StatusOK, APIConfigResponse{LastSerial: last, NextSerial: last + 1})
}

// handleSchema returns JSON schema of a job order record
func (s *Server) handleSchema(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, joborder.Schema())
}

// handleListOrders returns all job orders, optionally filtered by serial number with q param
func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	records, err := s.orders.Search(r.Context(), r.URL.Query().Get("q"))
	s.metrics.observe("list", start, err)
	if err != nil {
		log.Printf("[ERROR] failed to list job orders: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to list job orders")
		return
	}
	s.metrics.listed.Set(float64(len(records)))
	s.writeJSON(w, http.StatusOK, APIListResponse{Records: records})
}

// handleGetOrder returns a single job order by id
func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	start := time.Now()
	rec, err := s.orders.Get(r.Context(), id)
	s.metrics.observe("get", start, err)
	if err != nil {
		if errors.Is(err, joborder.ErrNotFound) {
			s.writeJSONError(w, http.StatusNotFound, "job order not found")
			return
		}
		log.Printf("[ERROR] failed to get job order %s: %v", id, err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to load job order")
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

// handleCreateOrder stores a new job order and notifies about it
func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var rec joborder.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		log.Printf("[WARN] invalid job order request: %v", err)
		s.writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start := time.Now()
	created, err := s.orders.Create(r.Context(), rec)
	s.metrics.observe("create", start, err)
	if err != nil {
		if errors.Is(err, joborder.ErrInvalidRecord) {
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("[ERROR] failed to create job order #%s: %v", rec.Serial(), err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to save job order")
		return
	}
	log.Printf("[INFO] job order #%s created, id %s", rec.Serial(), created.ID)

	if s.notifier != nil {
		rec.ID = created.ID
		if err := s.notifier.OnCreated(r.Context(), rec); err != nil {
			log.Printf("[WARN] failed to send notification for job order %s: %v", created.ID, err)
		}
	}

	s.writeJSON(w, http.StatusOK, APICreateResponse{Success: true, ID: created.ID, Location: created.Location})
}

// handleDeleteOrder deletes job order by id, taken from the path or from id query param
func (s *Server) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get("id"))
	}
	if id == "" {
		s.writeJSONError(w, http.StatusBadRequest, "job order id required")
		return
	}

	start := time.Now()
	err := s.orders.DeleteByID(r.Context(), id)
	s.metrics.observe("delete", start, err)
	if err != nil {
		if errors.Is(err, joborder.ErrNotFound) {
			s.writeJSONError(w, http.StatusNotFound, "job order not found")
			return
		}
		log.Printf("[ERROR] failed to delete job order %s: %v", id, err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to delete job order")
		return
	}
	log.Printf("[INFO] job order %s deleted", id)
	s.writeJSON(w, http.StatusOK, APISuccessResponse{Success: true})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[WARN] failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes a JSON error response
func (s *Server) writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]string{"error": message}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("[WARN] failed to encode JSON error response: %v", err)
	}
}
