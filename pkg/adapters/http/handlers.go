package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/go-chi/chi/v5"
)

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if spec, err := GetSwagger(); err == nil && spec.Info != nil {
		apiVersion = spec.Info.Version
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":         "arbor-http",
		"version":     strings.TrimSpace(arbor.Version),
		"api_version": apiVersion,
	})
}

// GenerateRequest is the body of POST /api/generate_map. Input is either a
// string or a list of strings (a chat history).
type GenerateRequest struct {
	Input json.RawMessage `json:"input"`
	MapID string          `json:"map_id,omitempty"`
}

func (g GenerateRequest) history() ([]string, error) {
	if len(g.Input) == 0 {
		return nil, fmt.Errorf("%w: missing input", ErrBadRequest)
	}
	var one string
	if err := json.Unmarshal(g.Input, &one); err == nil {
		return []string{one}, nil
	}
	var many []string
	if err := json.Unmarshal(g.Input, &many); err != nil {
		return nil, fmt.Errorf("%w: input must be a string or a list of strings", ErrBadRequest)
	}
	return many, nil
}

// emptyMap is returned for blank generation input, in the shape older
// clients expect.
var emptyMap = map[string]any{"name": "", "attributes": map[string]string{domain.AttrNote: ""}, "children": []any{}}

// GenerateMap handles POST /api/generate_map. The generated tree replaces
// the map and is broadcast to its participants.
func (s *Server) GenerateMap(w http.ResponseWriter, r *http.Request) {
	var body GenerateRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, "generate", err)
		return
	}
	history, err := body.history()
	if err != nil {
		s.writeError(w, r, "generate", err)
		return
	}
	mapID := body.MapID
	if mapID == "" {
		mapID = DefaultMapID
	}

	root, err := s.Relay.Generate(r.Context(), mapID, history)
	if s.metrics != nil {
		s.metrics.Generation(err)
	}
	if err != nil {
		s.writeError(w, r, "generate", err)
		return
	}
	if root == nil {
		s.writeJSON(w, http.StatusOK, emptyMap)
		return
	}
	s.writeJSON(w, http.StatusOK, root)
}

// ListMaps handles GET /api/maps.
func (s *Server) ListMaps(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Relay.List(r.Context())
	if err != nil {
		s.writeError(w, r, "list maps", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"maps": ids})
}

// GetMap handles GET /api/maps/{mapID}.
func (s *Server) GetMap(w http.ResponseWriter, r *http.Request) {
	root, err := s.Relay.Get(r.Context(), chi.URLParam(r, "mapID"))
	if err != nil {
		s.writeError(w, r, "get map", err)
		return
	}
	s.writeJSON(w, http.StatusOK, root)
}

// PutMap handles PUT /api/maps/{mapID}: the body replaces the whole map.
// Legacy trees (label-only, "attribute" key) are accepted.
func (s *Server) PutMap(w http.ResponseWriter, r *http.Request) {
	var raw any
	if err := decodeBody(w, r, &raw); err != nil {
		s.writeError(w, r, "put map", err)
		return
	}
	root, err := domain.DecodeTree(raw)
	if err != nil {
		s.writeError(w, r, "put map", err)
		return
	}
	stored, err := s.Relay.Replace(r.Context(), chi.URLParam(r, "mapID"), root)
	if err != nil {
		s.writeError(w, r, "put map", err)
		return
	}
	s.writeJSON(w, http.StatusOK, stored)
}

// DeleteMap handles DELETE /api/maps/{mapID}.
func (s *Server) DeleteMap(w http.ResponseWriter, r *http.Request) {
	if err := s.Relay.Delete(r.Context(), chi.URLParam(r, "mapID")); err != nil {
		s.writeError(w, r, "delete map", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PatchResponse reports what the relay did with a posted patch.
type PatchResponse struct {
	Outcome domain.Outcome `json:"outcome"`
	Map     *domain.Node   `json:"map,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// PostPatch handles POST /api/maps/{mapID}/patches. A patch whose parent is
// unknown is answered with 202 and not stored.
func (s *Server) PostPatch(w http.ResponseWriter, r *http.Request) {
	var p domain.Patch
	if err := decodeBody(w, r, &p); err != nil {
		s.writeError(w, r, "patch", err)
		return
	}
	if p.ID == "" {
		p.ID = domain.NewID()
	}

	res, tree, err := s.Relay.Apply(r.Context(), chi.URLParam(r, "mapID"), "", p)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusAccepted {
			s.writeJSON(w, status, PatchResponse{Outcome: domain.OutcomeBuffered, Error: err.Error()})
			return
		}
		s.writeError(w, r, "patch", err)
		return
	}
	s.writeJSON(w, http.StatusOK, PatchResponse{Outcome: res.Outcome, Map: tree})
}

// GetSnapshot handles GET /api/maps/{mapID}/snapshot.
func (s *Server) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Relay.Snapshot(r.Context(), chi.URLParam(r, "mapID"))
	if err != nil {
		s.writeError(w, r, "snapshot", err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}
