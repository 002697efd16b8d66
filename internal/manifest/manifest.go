// Package manifest records the identity of an export bundle: the source log
// plus every artifact produced from it, each with its digest.
package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/qdrk/bf-blackbox-parser/internal/common"
)

type Item struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Sha256 string `json:"sha256"`
	Type   string `json:"type"`
}

type Manifest struct {
	CreatedAt time.Time `json:"createdAt"`
	ShaAlgo   string    `json:"shaAlgo"`
	Items     []Item    `json:"items"`
}

// Build hashes every path and classifies it by extension.
func Build(paths []string) (Manifest, error) {
	m := Manifest{CreatedAt: time.Now().UTC(), ShaAlgo: "sha256"}
	for _, p := range paths {
		hex, sz, err := common.Sha256OfFile(p)
		if err != nil {
			return m, err
		}
		m.Items = append(m.Items, Item{
			Path:   p,
			Size:   sz,
			Sha256: hex,
			Type:   classify(p),
		})
	}
	return m, nil
}

func classify(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bbl", ".bfl", ".cfl":
		return "log"
	case ".csv", ".json", ".ndjson":
		return "export"
	case ".pdf":
		return "report"
	case ".html":
		return "chart"
	default:
		return "other"
	}
}

// Save writes the manifest as indented JSON.
func Save(m Manifest, out string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

// Load reads a manifest back from disk.
func Load(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

// Verify recomputes every item's digest and returns the paths that no longer
// match.
func Verify(m Manifest) ([]string, error) {
	var mismatched []string
	for _, item := range m.Items {
		hex, _, err := common.Sha256OfFile(item.Path)
		if err != nil {
			return mismatched, err
		}
		if hex != item.Sha256 {
			mismatched = append(mismatched, item.Path)
		}
	}
	return mismatched, nil
}
