package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/vbonduro/calscan/internal/domain"
)

const historyPageSize = 50

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	var (
		scans []*domain.Scan
		err   error
	)
	if query != "" {
		scans, err = s.history.Search(r.Context(), query, historyPageSize)
	} else {
		scans, err = s.history.List(r.Context(), historyPageSize)
	}
	if err != nil {
		http.Error(w, "Nie udało się wczytać historii.", http.StatusInternalServerError)
		s.logger.Error("list history failed", "query", query, "error", err)
		return
	}

	// HTMX partial update: return only the results fragment.
	if isHTMX(r) {
		if err := s.renderPartial(w, "partials/history_list.html", scans); err != nil {
			s.logger.Error("render partial failed", "error", err)
		}
		return
	}

	if err := s.renderPage(w,
		map[string]any{"Scans": scans, "Query": query, "ActiveNav": "history"},
		"base.html", "pages/history.html", "partials/history_list.html",
	); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, "invalid scan id", http.StatusBadRequest)
		return
	}

	scan, err := s.history.GetByID(r.Context(), id)
	if err != nil {
		http.Error(w, "Nie udało się wczytać wpisu.", http.StatusInternalServerError)
		s.logger.Error("get history entry failed", "scan_id", id, "error", err)
		return
	}
	if scan == nil {
		http.NotFound(w, r)
		return
	}

	if err := s.renderPage(w,
		map[string]any{"Scan": scan, "ActiveNav": "history"},
		"base.html", "pages/history_entry.html",
	); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		http.Error(w, "invalid scan id", http.StatusBadRequest)
		return
	}

	if err := s.history.Delete(r.Context(), id); err != nil {
		http.Error(w, "Nie udało się usunąć wpisu.", http.StatusNotFound)
		s.logger.Error("delete history entry failed", "scan_id", id, "error", err)
		return
	}

	// An empty 200 lets HTMX swap the row out.
	w.WriteHeader(http.StatusOK)
}

// parseID extracts the {id} path variable and returns it as int64.
func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}
