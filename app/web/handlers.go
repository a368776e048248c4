package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/jobord/app/joborder"
)

// pageData holds data passed to page templates
type pageData struct {
	Hostname    string
	Version     string
	FullVersion string
	AuthEnabled bool
	CurrentYear int
	Today       string
	Query       string
	NextSerial  int
	Records     []joborder.Record
	Record      joborder.Record
	Error       string
}

func (s *Server) newPageData() pageData {
	return pageData{
		Hostname:    s.hostname,
		Version:     shortVersion(s.version),
		FullVersion: s.version,
		AuthEnabled: s.passwordHash != "",
		CurrentYear: time.Now().Year(),
		Today:       time.Now().Format(joborder.DateLayout),
	}
}

// handleIndex renders the list page with the new job order form
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := s.newPageData()
	data.Query = strings.TrimSpace(r.URL.Query().Get("q"))
	data.NextSerial = s.serials.NextSerial(r.Context())

	start := time.Now()
	records, err := s.orders.Search(r.Context(), data.Query)
	s.metrics.observe("list", start, err)
	if err != nil {
		log.Printf("[ERROR] failed to list job orders: %v", err)
		data.Error = "Failed to load job orders"
		s.render(w, http.StatusInternalServerError, "index", data)
		return
	}
	data.Records = records
	s.render(w, http.StatusOK, "index", data)
}

// handlePrint renders printable view of a single job order
func (s *Server) handlePrint(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	start := time.Now()
	rec, err := s.orders.Get(r.Context(), id)
	s.metrics.observe("get", start, err)
	if err != nil {
		if errors.Is(err, joborder.ErrNotFound) {
			http.Error(w, "Job order not found", http.StatusNotFound)
			return
		}
		log.Printf("[ERROR] failed to get job order %s: %v", id, err)
		http.Error(w, "Failed to load job order", http.StatusInternalServerError)
		return
	}

	data := s.newPageData()
	data.Record = rec
	s.render(w, http.StatusOK, "print", data)
}
