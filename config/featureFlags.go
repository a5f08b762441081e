package config

import (
	"os"
	"strings"
)

// AIFallbackEnabled gates the external AI-extraction fallback used when a
// supplier has no transformation rules (or rule execution fails).
//
// Set via env:
// - AI_FALLBACK_ENABLED=true
// - AI_EXTRACT_URL=https://...
func AIFallbackEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("AI_FALLBACK_ENABLED")))
	if !(v == "1" || v == "true" || v == "yes" || v == "y") {
		return false
	}
	return strings.TrimSpace(os.Getenv("AI_EXTRACT_URL")) != ""
}

// ArchiveUploadsEnabled gates best-effort archiving of raw pricelist files
// to cloud storage after intake.
//
// Set via env:
// - ARCHIVE_UPLOADS=true
// - GCS_BUCKET=<bucket>
func ArchiveUploadsEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("ARCHIVE_UPLOADS")))
	if !(v == "1" || v == "true" || v == "yes" || v == "y") {
		return false
	}
	return strings.TrimSpace(os.Getenv("GCS_BUCKET")) != ""
}
