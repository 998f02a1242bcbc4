package game

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Server ties the registry and the results store to HTTP routes.
type Server struct {
	registry *Registry
	verifier TokenVerifier
	results  *ResultsStore // optional
}

func NewServer(registry *Registry, verifier TokenVerifier, results *ResultsStore) *Server {
	return &Server{
		registry: registry,
		verifier: verifier,
		results:  results,
	}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("GET /api/results/{roomCode}", s.handleResults)
}

// handleResults serves the stored final results of a finished game.
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		http.Error(w, "results lookup disabled", http.StatusNotFound)
		return
	}
	code := r.PathValue("roomCode")
	rec, found, err := s.results.Load(r.Context(), code)
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "no results for this room", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// IsClientError reports whether err belongs to the recoverable taxonomy the
// protocol returns to callers, as opposed to an internal failure.
func IsClientError(err error) bool {
	for _, e := range []error{
		ErrAlreadyInRoom, ErrRoomNotFound, ErrRoomFull, ErrPlayerNotInRoom,
		ErrPlayerNotFound, ErrGameFull, ErrAllRoundsCompleted, ErrGameNotFinished,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
