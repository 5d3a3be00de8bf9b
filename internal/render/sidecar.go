package render

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"clipper/internal/fileutil"
	"clipper/internal/services"
)

var titleCaser = cases.Title(language.Und, cases.NoLower)

// NormalizeTitle tidies a decision title for the uploader: whitespace
// collapsed and leading word characters title-cased without touching
// existing capitals or non-Latin text.
func NormalizeTitle(title string) string {
	collapsed := strings.Join(strings.Fields(title), " ")
	return titleCaser.String(collapsed)
}

// WriteSidecars writes the title and description next to the artifact so
// the uploader does not need to parse decision documents.
func WriteSidecars(eventDir string, version int, title, description string) error {
	shortsDir := filepath.Join(eventDir, "shorts")
	titlePath := filepath.Join(shortsDir, fmt.Sprintf("title_v%d.txt", version))
	descPath := filepath.Join(shortsDir, fmt.Sprintf("desc_v%d.txt", version))

	if err := fileutil.WriteFileAtomic(titlePath, []byte(NormalizeTitle(title)+"\n"), 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "render", "sidecar", titlePath, err)
	}
	if err := fileutil.WriteFileAtomic(descPath, []byte(strings.TrimSpace(description)+"\n"), 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "render", "sidecar", descPath, err)
	}
	return nil
}
