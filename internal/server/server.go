// Package server exposes uploaded blackbox logs over HTTP: summaries, field
// lists, frame streaming and quick-look charts.
package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/qdrk/bf-blackbox-parser/internal/blackbox"
	"github.com/qdrk/bf-blackbox-parser/internal/dict"
)

// Options configures server creation.
type Options struct {
	StorageDir string
	// DictPath optionally overlays a field dictionary on the built-in one.
	DictPath string
	// MaxUploadBytes caps a single uploaded log; zero means the default.
	MaxUploadBytes int64
}

const defaultMaxUploadBytes = 512 << 20

// Server owns the uploaded-log registry. Each uploaded file is assigned a
// uuid and decoded on demand; the decoded facade is cached per upload.
type Server struct {
	storageDir     string
	uploadsDir     string
	maxUploadBytes int64
	dict           *dict.Store

	mu   sync.Mutex
	logs map[string]*logEntry
}

type logEntry struct {
	ID      string
	Name    string
	Path    string
	Size    int64
	mu      sync.Mutex
	flight  *blackbox.FlightLog
	loadErr error
}

// New prepares the storage layout and loads the dictionary.
func New(opts Options) (*Server, error) {
	if strings.TrimSpace(opts.StorageDir) == "" {
		return nil, errors.New("storage directory is required")
	}
	uploadsDir := filepath.Join(opts.StorageDir, "uploads")
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	store := dict.Default()
	if opts.DictPath != "" {
		loaded, err := dict.EnsureLoaded(opts.DictPath)
		if err != nil {
			return nil, fmt.Errorf("load dictionary: %w", err)
		}
		store = loaded
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	return &Server{
		storageDir:     opts.StorageDir,
		uploadsDir:     uploadsDir,
		maxUploadBytes: maxUpload,
		dict:           store,
		logs:           make(map[string]*logEntry),
	}, nil
}

// register stores an uploaded log file under a fresh id.
func (s *Server) register(name, path string, size int64) *logEntry {
	entry := &logEntry{
		ID:   uuid.NewString(),
		Name: name,
		Path: path,
		Size: size,
	}
	s.mu.Lock()
	s.logs[entry.ID] = entry
	s.mu.Unlock()
	return entry
}

func (s *Server) lookup(id string) (*logEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.logs[id]
	return entry, ok
}

// listEntries returns the registry sorted by name for stable listings.
func (s *Server) listEntries() []*logEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*logEntry, 0, len(s.logs))
	for _, entry := range s.logs {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// withFlight runs fn with the entry's decoded facade under the entry lock:
// the facade's decode state is single-threaded by design, so concurrent
// requests against one upload serialize here.
func (e *logEntry) withFlight(fn func(*blackbox.FlightLog) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.flight == nil && e.loadErr == nil {
		data, err := os.ReadFile(e.Path)
		if err != nil {
			e.loadErr = err
		} else {
			e.flight, e.loadErr = blackbox.New(data)
		}
	}
	if e.loadErr != nil {
		return e.loadErr
	}
	return fn(e.flight)
}
