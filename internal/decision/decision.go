// Package decision models the per-event decision documents the external
// decision service writes under <event_dir>/api/vN/decision.json. Versions
// only grow; the highest version present is authoritative.
package decision

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"clipper/internal/fileutil"
	"clipper/internal/services"
)

const documentName = "decision.json"

var versionDirPattern = regexp.MustCompile(`^v(\d+)$`)

// Document is one decision: a sub-window inside the event clip plus crop
// and metadata for the rendered short. Offsets are seconds relative to the
// start of the event window.
type Document struct {
	StartSecRel int     `json:"start_sec_rel"`
	EndSecRel   int     `json:"end_sec_rel"`
	CropX       float64 `json:"crop_x"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
}

// Bounds constrain an acceptable decision.
type Bounds struct {
	MinDurationSec int
	MaxDurationSec int
	WindowSeconds  int
}

// Validate checks the document against the event window and the configured
// duration bounds.
func (d Document) Validate(b Bounds) error {
	reject := func(msg string) error {
		return services.Wrap(services.ErrValidation, "decision", "validate", msg, nil)
	}
	if d.StartSecRel < 0 {
		return reject(fmt.Sprintf("start_sec_rel %d is negative", d.StartSecRel))
	}
	if d.EndSecRel <= d.StartSecRel {
		return reject(fmt.Sprintf("end_sec_rel %d not after start_sec_rel %d", d.EndSecRel, d.StartSecRel))
	}
	if b.WindowSeconds > 0 && d.EndSecRel > b.WindowSeconds {
		return reject(fmt.Sprintf("end_sec_rel %d exceeds window of %ds", d.EndSecRel, b.WindowSeconds))
	}
	duration := d.EndSecRel - d.StartSecRel
	if b.MinDurationSec > 0 && duration < b.MinDurationSec {
		return reject(fmt.Sprintf("duration %ds below minimum %ds", duration, b.MinDurationSec))
	}
	if b.MaxDurationSec > 0 && duration > b.MaxDurationSec {
		return reject(fmt.Sprintf("duration %ds above maximum %ds", duration, b.MaxDurationSec))
	}
	if d.CropX < 0 {
		return reject(fmt.Sprintf("crop_x %v is negative", d.CropX))
	}
	if strings.TrimSpace(d.Title) == "" {
		return reject("title is empty")
	}
	return nil
}

// Path returns the document path for a version inside eventDir.
func Path(eventDir string, version int) string {
	return filepath.Join(eventDir, "api", fmt.Sprintf("v%d", version), documentName)
}

// LatestVersion returns the highest version number under eventDir/api that
// contains a decision document, or zero when none exists.
func LatestVersion(eventDir string) (int, error) {
	entries, err := os.ReadDir(filepath.Join(eventDir, "api"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, services.Wrap(services.ErrTransient, "decision", "scan-versions", eventDir, err)
	}
	latest := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		m := versionDirPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		version, err := strconv.Atoi(m[1])
		if err != nil || version <= latest {
			continue
		}
		if _, err := os.Stat(Path(eventDir, version)); err == nil {
			latest = version
		}
	}
	return latest, nil
}

// Load reads and parses one decision document version.
func Load(eventDir string, version int) (Document, error) {
	path := Path(eventDir, version)
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, services.Wrap(services.ErrNotFound, "decision", "load", path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, services.Wrap(services.ErrValidation, "decision", "load", path, err)
	}
	return doc, nil
}

// Save writes a document as the given version. Used by manual injection and
// tests; the decision service normally writes its own documents.
func Save(eventDir string, version int, doc Document) error {
	path := Path(eventDir, version)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return services.Wrap(services.ErrTransient, "decision", "save", path, err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrValidation, "decision", "save", path, err)
	}
	if err := fileutil.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "decision", "save", path, err)
	}
	return nil
}
