package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/golang/snappy"
	"github.com/google/uuid"

	"github.com/claude/splitlog/internal/remote"
	"github.com/claude/splitlog/internal/storage"
)

// pullPageLimit caps one pull response; clients page with the cursor.
const pullPageLimit = 500

// maxPushBody bounds a push request after decompression.
const maxPushBody = 16 << 20

type pushResult struct {
	Accepted int `json:"accepted"`
	Ignored  int `json:"ignored"`
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPushBody))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "body too large"})
		return
	}
	if r.Header.Get("Content-Encoding") == "snappy" {
		n, err := snappy.DecodedLen(body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid snappy body: " + err.Error()})
			return
		}
		if n > maxPushBody {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "body too large"})
			return
		}
		body, err = snappy.Decode(nil, body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid snappy body: " + err.Error()})
			return
		}
	}

	var records []remote.Record
	if err := json.Unmarshal(body, &records); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	for i, rec := range records {
		if rec.ID == uuid.Nil || rec.Kind == "" || rec.UpdatedAt.IsZero() {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "record " + strconv.Itoa(i) + " missing id, kind or updatedAt",
			})
			return
		}
	}

	accepted, err := s.records.UpsertRecords(r.Context(), records)
	if err != nil {
		s.log.Error("push failed", "records", len(records), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	s.log.Info("push", "records", len(records), "accepted", accepted)
	writeJSON(w, http.StatusOK, pushResult{Accepted: accepted, Ignored: len(records) - accepted})
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	cursorParam := r.URL.Query().Get("cursor")
	cursor := int64(0)
	if cursorParam != "" {
		var err error
		cursor, err = strconv.ParseInt(cursorParam, 10, 64)
		if err != nil || cursor < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid cursor"})
			return
		}
	}

	records, next, err := s.records.RecordsSince(r.Context(), cursor, pullPageLimit)
	if err != nil {
		s.log.Error("pull failed", "cursor", cursor, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	result := remote.PullResult{Records: records, NextCursor: cursorParam}
	if next != cursor {
		result.NextCursor = strconv.FormatInt(next, 10)
	}
	writeSnappyJSON(w, http.StatusOK, result)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid record ID"})
		return
	}

	if err := s.records.Tombstone(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "record not found"})
			return
		}
		s.log.Error("tombstone failed", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeSnappyJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Encoding", "snappy")
	w.WriteHeader(status)
	w.Write(snappy.Encode(nil, data))
}
