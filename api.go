package visionstream

import (
	"errors"
	"net/http"

	"github.com/lanikai/visionstream/internal/serve"
	"github.com/lanikai/visionstream/internal/stream"
)

// Request bodies larger than this are rejected.
const maxRequestBody = 64 << 10

type streamStatus struct {
	stream.Config
	State   serve.State `json:"state"`
	Viewers int         `json:"viewers"`
}

type updateResponse struct {
	streamStatus
	RestartRequired bool `json:"restartRequired"`
}

type snapshotResponse struct {
	Location string `json:"location"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) registerAPI(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/streams", s.listStreams)
	mux.HandleFunc("GET /api/streams/{type}", s.withStream(s.getStream))
	mux.HandleFunc("PATCH /api/streams/{type}", s.withStream(s.updateStream))
	mux.HandleFunc("POST /api/streams/{type}/snapshot", s.withStream(s.takeSnapshot))
	mux.HandleFunc("GET /api/streams/{type}/stats", s.withStream(s.getStats))
}

type streamHandler func(w http.ResponseWriter, r *http.Request, st stream.StreamType)

func (s *Server) withStream(h streamHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := stream.ParseStreamType(r.PathValue("type"))
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		h(w, r, st)
	}
}

func (s *Server) status(st stream.StreamType) streamStatus {
	return streamStatus{
		Config:  s.Manager.Config(st),
		State:   s.loop.State(st),
		Viewers: s.hub.Viewers(st),
	}
}

func (s *Server) listStreams(w http.ResponseWriter, r *http.Request) {
	all := make(map[string]streamStatus, len(stream.Types))
	for _, st := range stream.Types {
		all[st.String()] = s.status(st)
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) getStream(w http.ResponseWriter, r *http.Request, st stream.StreamType) {
	writeJSON(w, http.StatusOK, s.status(st))
}

func (s *Server) updateStream(w http.ResponseWriter, r *http.Request, st stream.StreamType) {
	var p stream.Params
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	restart, err := s.Manager.SetStreamParams(st, p)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if restart {
		log.Info("%v stream needs a pipeline restart at %s", st, s.Manager.GetResolution(st))
		if s.OnRestart != nil {
			s.OnRestart(st)
		}
	}

	writeJSON(w, http.StatusOK, updateResponse{
		streamStatus:    s.status(st),
		RestartRequired: restart,
	})
}

func (s *Server) takeSnapshot(w http.ResponseWriter, r *http.Request, st stream.StreamType) {
	location, err := s.Manager.TakeSnapshot(st)
	switch {
	case errors.Is(err, stream.ErrNoFrameAvailable):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, stream.ErrNoSnapshotSink):
		writeError(w, http.StatusNotImplemented, err)
	case err != nil:
		log.Error("Snapshot of %v stream failed: %v", st, err)
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusCreated, snapshotResponse{Location: location})
	}
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request, st stream.StreamType) {
	writeJSON(w, http.StatusOK, s.Manager.Stats(st))
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}
