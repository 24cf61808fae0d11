package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/meterload/internal/core"
)

// multipartMemory is how much of a multipart upload is buffered in memory
// before spilling to a temporary file.
const multipartMemory = 32 << 20

type meterStateView struct {
	Reading        float64   `json:"reading"`
	StartTimestamp time.Time `json:"startTimestamp"`
	EndTimestamp   time.Time `json:"endTimestamp"`
}

type meterView struct {
	Name       string          `json:"name"`
	ID         int64           `json:"id,omitempty"`
	Mapper     string          `json:"mapper,omitempty"`
	Cumulative bool            `json:"cumulative"`
	EndOnly    bool            `json:"endOnly"`
	State      *meterStateView `json:"state,omitempty"`
}

type ingestView struct {
	ID           string    `json:"id"`
	FileName     string    `json:"fileName,omitempty"`
	Source       string    `json:"source,omitempty"`
	Status       string    `json:"status"`
	RowsAccepted int       `json:"rowsAccepted"`
	RowsWritten  int64     `json:"rowsWritten"`
	AllAccepted  bool      `json:"allAccepted"`
	Diagnostics  string    `json:"diagnostics,omitempty"`
	DurationMS   int64     `json:"durationMs"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"ingests": s.service.LimiterStatus(),
	})
}

// handleListMeters lists configured meters with their stored state, if any.
func (s *Server) handleListMeters(w http.ResponseWriter, r *http.Request) {
	names := s.profiles.Names()
	out := make([]meterView, 0, len(names))
	for _, name := range names {
		v, err := s.meterView(r, name)
		if err != nil {
			respondError(w, r, err, nil)
			return
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetMeter(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "meterName")
	v, err := s.meterView(r, name)
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	if v.State == nil && v.Mapper == "" {
		respondError(w, r, fmt.Errorf("%w: %s", core.ErrMeterNotFound, name), nil)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// meterView combines a meter's profile and stored state. Either may be
// missing.
func (s *Server) meterView(r *http.Request, name string) (meterView, error) {
	v := meterView{Name: name}
	if p, ok := s.profiles.Get(name); ok {
		v.Mapper = p.Mapper
		v.Cumulative = p.Cumulative
		if def, err := p.Definition(); err == nil {
			v.EndOnly = p.EndOnly || def.EndOnly
		}
	}

	m, err := s.service.Meter(r.Context(), name)
	switch {
	case errors.Is(err, core.ErrMeterNotFound):
		return v, nil
	case err != nil:
		return v, err
	}
	v.ID = m.ID
	v.State = &meterStateView{
		Reading:        m.State.Reading,
		StartTimestamp: m.State.StartTimestamp,
		EndTimestamp:   m.State.EndTimestamp,
	}
	return v, nil
}

// handleIngest loads a file into a meter. The body is either the raw file
// or a multipart form with a "file" field. ?profile= selects a profile
// other than the one named after the meter.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	meterName := chi.URLParam(r, "meterName")

	profile, err := s.profiles.Resolve(meterName, r.URL.Query().Get("profile"))
	if err != nil {
		respondError(w, r, errUnknownProfile{err}, nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxFileSize)

	src, fileName, size, cleanup, err := uploadSource(r)
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	defer cleanup()

	req, err := profile.Request(meterName, fileName, src, size)
	if err != nil {
		respondError(w, r, err, nil)
		return
	}

	res, err := s.service.Ingest(withIngestSource(r.Context(), r), req)
	if err != nil {
		if res != nil && res.MeterID == 0 {
			res = nil
		}
		respondError(w, r, err, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// uploadSource returns the file carried by r, its name, and its size in
// bytes (negative if unknown).
func uploadSource(r *http.Request) (io.Reader, string, int64, func(), error) {
	noop := func() {}

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if r.ContentLength == 0 {
			return nil, "", 0, noop, errNoFile
		}
		return r.Body, r.URL.Query().Get("file"), r.ContentLength, noop, nil
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, "", 0, noop, err
		}
		return nil, "", 0, noop, badRequest{fmt.Errorf("invalid csv upload form: %w", err)}
	}
	cleanup := func() { _ = r.MultipartForm.RemoveAll() }

	file, header, err := r.FormFile("file")
	if err != nil {
		cleanup()
		return nil, "", 0, noop, errNoFile
	}
	return file, header.Filename, header.Size, func() {
		file.Close()
		cleanup()
	}, nil
}

// handleListReadings returns stored readings starting in [from, to).
func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	meterName := chi.URLParam(r, "meterName")

	from, err := parseTimeParam(r, "from")
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		respondError(w, r, err, nil)
		return
	}

	readings, err := s.service.Readings(r.Context(), meterName, from, to)
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	if readings == nil {
		readings = []core.Reading{}
	}
	writeJSON(w, http.StatusOK, readings)
}

func (s *Server) handleIngestHistory(w http.ResponseWriter, r *http.Request) {
	meterName := chi.URLParam(r, "meterName")
	limit := parseIntParam(r, "limit", 20)

	records, err := s.service.History(r.Context(), meterName, limit)
	if err != nil {
		respondError(w, r, err, nil)
		return
	}

	out := make([]ingestView, len(records))
	for i, rec := range records {
		out[i] = ingestView{
			ID:           rec.ID.String(),
			FileName:     rec.FileName,
			Source:       rec.Source,
			Status:       string(rec.Status),
			RowsAccepted: rec.RowsAccepted,
			RowsWritten:  rec.RowsWritten,
			AllAccepted:  rec.AllAccepted,
			Diagnostics:  rec.Diagnostics,
			DurationMS:   rec.Duration.Milliseconds(),
			CreatedAt:    rec.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// parseTimeParam parses an optional timestamp query parameter. Missing
// parameters yield the zero time.
func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return time.Time{}, nil
	}
	t, err := core.ParseTimestamp(val)
	if err != nil {
		return time.Time{}, badRequest{fmt.Errorf("%s: %w", name, err)}
	}
	return t, nil
}
