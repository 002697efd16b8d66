package server

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/qdrk/bf-blackbox-parser/internal/blackbox"
	"github.com/qdrk/bf-blackbox-parser/internal/chart"
	"github.com/qdrk/bf-blackbox-parser/internal/common"
	"github.com/qdrk/bf-blackbox-parser/internal/export"
	"github.com/qdrk/bf-blackbox-parser/internal/health"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		common.Logf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

// UploadedLog is the response shape for one registered upload.
type UploadedLog struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Logs  int    `json:"logs,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "parse multipart: %v", err)
		return
	}
	if r.MultipartForm == nil {
		writeError(w, http.StatusBadRequest, "no files provided")
		return
	}
	var uploaded []UploadedLog
	for _, files := range r.MultipartForm.File {
		for _, fh := range files {
			entry, err := s.saveUploadedFile(fh)
			if err != nil {
				writeError(w, http.StatusBadRequest, "save upload %s: %v", fh.Filename, err)
				return
			}
			uploaded = append(uploaded, s.describe(entry))
		}
	}
	if len(uploaded) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": uploaded})
}

func (s *Server) saveUploadedFile(fh *multipart.FileHeader) (*logEntry, error) {
	if fh == nil {
		return nil, fmt.Errorf("nil file header")
	}
	if fh.Size > s.maxUploadBytes {
		return nil, fmt.Errorf("file is %d bytes, over the %d-byte limit", fh.Size, s.maxUploadBytes)
	}
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	ext := filepath.Ext(fh.Filename)
	pattern := "upload-*"
	if ext != "" {
		pattern = fmt.Sprintf("upload-*%s", ext)
	}
	dest, err := os.CreateTemp(s.uploadsDir, pattern)
	if err != nil {
		return nil, err
	}
	n, err := io.Copy(dest, src)
	if err != nil {
		dest.Close()
		os.Remove(dest.Name())
		return nil, err
	}
	dest.Close()
	return s.register(fh.Filename, dest.Name(), n), nil
}

func (s *Server) describe(entry *logEntry) UploadedLog {
	out := UploadedLog{ID: entry.ID, Name: entry.Name, Size: entry.Size}
	err := entry.withFlight(func(fl *blackbox.FlightLog) error {
		out.Logs = fl.LogCount()
		return nil
	})
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		var out []UploadedLog
		for _, entry := range s.listEntries() {
			out = append(out, s.describe(entry))
		}
		writeJSON(w, http.StatusOK, map[string]any{"uploads": out})
		return
	}

	entry, ok := s.lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no such upload %s", id)
		return
	}
	type subLog struct {
		Index   int    `json:"index"`
		Error   string `json:"error,omitempty"`
		MinTime int64  `json:"minTimeUs,omitempty"`
		MaxTime int64  `json:"maxTimeUs,omitempty"`
		Chunks  int    `json:"chunks"`
	}
	var subLogs []subLog
	err := entry.withFlight(func(fl *blackbox.FlightLog) error {
		for i := 0; i < fl.LogCount(); i++ {
			item := subLog{Index: i, Error: fl.LogError(i)}
			if dir, err := fl.Directory(i); err == nil {
				item.MinTime = dir.MinTime
				item.MaxTime = dir.MaxTime
				item.Chunks = dir.ChunkCount()
			}
			subLogs = append(subLogs, item)
		}
		return nil
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "decode: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "logs": subLogs})
}

// openLogFromQuery resolves the id/log query parameters and opens the
// requested sub-log inside fn.
func (s *Server) openLogFromQuery(w http.ResponseWriter, r *http.Request, fn func(fl *blackbox.FlightLog) error) {
	entry, ok := s.lookup(r.URL.Query().Get("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "no such upload")
		return
	}
	logIndex := 0
	if v := r.URL.Query().Get("log"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad log index %q", v)
			return
		}
		logIndex = n
	}
	err := entry.withFlight(func(fl *blackbox.FlightLog) error {
		if err := fl.Open(logIndex); err != nil {
			return err
		}
		return fn(fl)
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "%v", err)
	}
}

func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.openLogFromQuery(w, r, func(fl *blackbox.FlightLog) error {
		names, err := fl.MainFieldNames()
		if err != nil {
			return err
		}
		type field struct {
			Name    string `json:"name"`
			Display string `json:"display"`
			Unit    string `json:"unit"`
			Group   string `json:"group,omitempty"`
		}
		fields := make([]field, 0, len(names))
		for _, name := range names {
			entry := s.dict.Lookup(name)
			fields = append(fields, field{
				Name:    name,
				Display: entry.Name,
				Unit:    string(entry.Unit),
				Group:   entry.Group,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"fields": fields})
		return nil
	})
}

// handleFrames streams the selected time range as NDJSON records.
func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.openLogFromQuery(w, r, func(fl *blackbox.FlightLog) error {
		logIndex := fl.OpenLogIndex()
		start, err := timeParam(r, "start", func() (int64, error) { return fl.MinTime(logIndex) })
		if err != nil {
			return err
		}
		end, err := timeParam(r, "end", func() (int64, error) { return fl.MaxTime(logIndex) })
		if err != nil {
			return err
		}
		chunks, err := fl.ChunksInTimeRange(start, end)
		if err != nil {
			return err
		}
		fieldNames, err := fl.MainFieldNames()
		if err != nil {
			return err
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		nw := NewNDJSONWriter(w)
		for _, chunk := range chunks {
			for _, frame := range chunk.Frames {
				record := make(map[string]int64, len(fieldNames))
				for i, name := range fieldNames {
					if i < len(frame) {
						record[name] = int64(frame[i])
					}
				}
				if err := nw.WriteObject(record); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	s.openLogFromQuery(w, r, func(fl *blackbox.FlightLog) error {
		switch format {
		case "csv":
			w.Header().Set("Content-Type", "text/csv")
		case "json":
			w.Header().Set("Content-Type", "application/json")
		case "ndjson":
			w.Header().Set("Content-Type", "application/x-ndjson")
		}
		return export.ExportLog(w, fl, format)
	})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	fieldsParam := r.URL.Query().Get("fields")
	if fieldsParam == "" {
		fieldsParam = "gyroADC[0],gyroADC[1],gyroADC[2]"
	}
	fields := strings.Split(fieldsParam, ",")
	s.openLogFromQuery(w, r, func(fl *blackbox.FlightLog) error {
		logIndex := fl.OpenLogIndex()
		minTime, err := fl.MinTime(logIndex)
		if err != nil {
			return err
		}
		maxTime, err := fl.MaxTime(logIndex)
		if err != nil {
			return err
		}
		chunks, err := fl.ChunksInTimeRange(minTime, maxTime)
		if err != nil {
			return err
		}
		fieldNames, err := fl.MainFieldNames()
		if err != nil {
			return err
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		return chart.RenderChunks(w, fieldNames, chunks, chart.Options{
			Title:  fmt.Sprintf("log %d", logIndex),
			Fields: fields,
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	entry, ok := s.lookup(r.URL.Query().Get("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "no such upload")
		return
	}
	var report health.Report
	err := entry.withFlight(func(fl *blackbox.FlightLog) error {
		report = health.Evaluate(entry.Name, fl, health.Builtin())
		return nil
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func timeParam(r *http.Request, key string, fallback func() (int64, error)) (int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback()
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q", key, v)
	}
	return n, nil
}
