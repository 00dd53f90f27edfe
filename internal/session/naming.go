// internal/session/naming.go
package session

import (
	"path/filepath"
	"regexp"
	"time"
)

// layout Go equivalente a HH_mm_dd_MM_yyyy
const fileTimeLayout = "15_04_02_01_2006"

var invalidNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Sanitize troca todo caractere fora de [A-Za-z0-9_-] por '_'.
// Nome vazio vira camera_<id>.
func Sanitize(name, cameraID string) string {
	if name == "" {
		return "camera_" + cameraID
	}
	return invalidNameChars.ReplaceAllString(name, "_")
}

// RecordingPath monta <base>/<nome>/<nome>_<HH_mm_dd_MM_yyyy>.mp4.
func RecordingPath(basePath, sanitized string, t time.Time) string {
	return filepath.Join(basePath, sanitized, sanitized+"_"+t.Format(fileTimeLayout)+".mp4")
}
