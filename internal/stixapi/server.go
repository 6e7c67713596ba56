// Package stixapi exposes the stix-to-ability matching pipeline over HTTP.
package stixapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/RachHavoc/stixmapper/internal/stixcore"
)

const maxUploadBytes = 32 << 20 // 32MB multipart memory cap

// Server wires the matcher (and optionally the ability search index) into
// HTTP handlers.
type Server struct {
	matcher *stixcore.Matcher
	index   *stixcore.AbilityIndex
}

// NewServer creates a Server over the given ability store. index may be
// nil, which disables the search endpoint.
func NewServer(store stixcore.AbilityStore, index *stixcore.AbilityIndex) *Server {
	return &Server{
		matcher: stixcore.NewMatcher(store),
		index:   index,
	}
}

// Handler returns the routed handler wrapped in CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /stix/match", s.handleMatch)
	mux.HandleFunc("POST /stix/mirror", s.handleMirror)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.index != nil {
		mux.HandleFunc("GET /abilities/search", s.handleSearch)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
	})
	return c.Handler(mux)
}

// matchRequest is the JSON body shape: either a wrapped bundle with
// options, or a bare bundle at the top level.
type matchRequest struct {
	Stix    json.RawMessage `json:"stix"`
	Options json.RawMessage `json:"options"`
}

// handleMatch accepts a STIX 2.x bundle and returns the technique-to-
// ability mapping. JSON bodies carry {"stix": <bundle>, "options": {...}}
// or the bundle itself; multipart/form-data carries the bundle JSON in a
// 'file' field.
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	body, err := readBundleBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := stixcore.DefaultOptions()
	bundleData := body

	var req matchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if len(req.Stix) > 0 {
		bundleData = req.Stix
	}
	if len(req.Options) > 0 {
		// Partial options override the defaults key by key.
		if err := json.Unmarshal(req.Options, &opts); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid options")
			return
		}
	}

	bundle, err := stixcore.DecodeBundle(bundleData)
	if err != nil {
		if errors.Is(err, stixcore.ErrInvalidBundle) {
			writeError(w, http.StatusBadRequest, "Invalid request. Provide a STIX 2.x bundle.")
		} else {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
		}
		return
	}

	report, err := s.matcher.MatchBundle(r.Context(), bundle, opts)
	if err != nil {
		log.Printf("Match failed: %v", err)
		writeError(w, http.StatusInternalServerError, "matching failed")
		return
	}
	report.ID = uuid.NewString()

	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		*stixcore.MatchReport
	}{Status: "success", MatchReport: report})
}

// handleMirror echoes the request body back, a connectivity check kept
// from the original plugin surface.
func (s *Server) handleMirror(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	var echoed interface{}
	if err := json.Unmarshal(body, &echoed); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	writeJSON(w, http.StatusOK, echoed)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSearch queries the ability index: ?q=<free text> or
// ?technique=<T####>, with an optional size.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	size := 10
	if raw := r.URL.Query().Get("size"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			size = n
		}
	}

	var (
		results interface{}
		err     error
	)
	switch {
	case r.URL.Query().Get("technique") != "":
		results, err = s.index.SearchByTechnique(r.URL.Query().Get("technique"), size)
	case r.URL.Query().Get("q") != "":
		results, err = s.index.Search(r.URL.Query().Get("q"), size)
	default:
		writeError(w, http.StatusBadRequest, "provide a 'q' or 'technique' query parameter")
		return
	}
	if err != nil {
		log.Printf("Ability search failed: %v", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// readBundleBody extracts the raw bundle JSON from either a multipart
// upload ('file' field) or a plain request body.
func readBundleBody(r *http.Request) ([]byte, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, fmt.Errorf("failed to parse multipart form")
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("multipart request is missing a 'file' field")
		}
		defer file.Close()
		return io.ReadAll(file)
	}

	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxUploadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body")
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": message})
}
