package api

import (
	"path/filepath"
	"strings"
)

// blockedExtensions are never accepted as audio or cover uploads whatever
// content type the client claims.
var blockedExtensions = map[string]bool{
	".exe":   true,
	".bat":   true,
	".cmd":   true,
	".com":   true,
	".msi":   true,
	".scr":   true,
	".sh":    true,
	".ps1":   true,
	".vbs":   true,
	".js":    true,
	".jar":   true,
	".php":   true,
	".py":    true,
	".dll":   true,
	".so":    true,
	".dylib": true,
}

func IsBlockedExtension(filename string) bool {
	return blockedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// SanitizeFilename strips directory components and control characters from a
// client-supplied filename before it is logged.
func SanitizeFilename(filename string) string {
	if idx := strings.LastIndex(filename, "\\"); idx != -1 {
		filename = filename[idx+1:]
	}
	filename = filepath.Base(filename)

	var sanitized strings.Builder
	for _, r := range filename {
		if r >= 32 && r != 127 && !strings.ContainsRune(`/\:*?"<>|`, r) {
			sanitized.WriteRune(r)
		}
	}

	result := strings.Trim(sanitized.String(), ". ")
	if len(result) > 255 {
		ext := filepath.Ext(result)
		if len(ext) > 16 {
			ext = ""
		}
		result = result[:255-len(ext)] + ext
	}
	if result == "" {
		return "unnamed_file"
	}
	return result
}
