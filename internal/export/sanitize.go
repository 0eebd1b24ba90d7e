package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

func SanitizeName(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = string(runes[:maxLen])
		}
	}
	return cleaned
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', ',', '(', ')':
		return true
	default:
		return false
	}
}

// OutputExtensions are the containers an export may be written as.
var OutputExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
	".mkv": true,
}

// ValidateOutputPath checks that path is a clean, absolute file path with a
// supported container extension whose directory exists or can be created.
func ValidateOutputPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("output path is required")
	}

	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("output path cannot contain path traversal")
		}
	}

	if filepath.Clean(path) != path {
		return fmt.Errorf("output path must be a clean path")
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("output path must be absolute")
	}
	if !OutputExtensions[strings.ToLower(filepath.Ext(path))] {
		return fmt.Errorf("output path must end in .mp4, .mov or .mkv")
	}

	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		return fmt.Errorf("output path is a directory")
	}

	dir := filepath.Dir(path)
	info, err = os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			// created on finalize
			return nil
		}
		return fmt.Errorf("invalid output directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output directory is not a directory")
	}

	return nil
}
