package utils

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var photoExtensions = []string{"jpg", "jpeg", "png", "gif", "bmp", "tiff", "webp"}

// Upload is a photo read from disk with its sniffed MIME type
type Upload struct {
	Path     string
	Data     []byte
	MIMEType string
}

// ReadUpload reads a photo and detects its MIME type from the content
func ReadUpload(path string) (*Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return &Upload{
		Path:     path,
		Data:     data,
		MIMEType: mimetype.Detect(data).String(),
	}, nil
}

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// GetFileExtension returns the lowercased file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsPhotoFile checks if a file has a supported photo extension
func IsPhotoFile(filename string) bool {
	return slices.Contains(photoExtensions, GetFileExtension(filename))
}

// OutputFilename derives the output path for a processed photo.
// The extension follows the output format ("jpeg" becomes "jpg").
func OutputFilename(inputFile, outputDir, suffix, format string) string {
	base := filepath.Base(inputFile)
	name := SanitizeFilename(strings.TrimSuffix(base, filepath.Ext(base)))

	ext := strings.ToLower(format)
	switch ext {
	case "", "jpeg":
		ext = "jpg"
	}

	return filepath.Join(outputDir, fmt.Sprintf("%s%s.%s", name, suffix, ext))
}

// ListPhotoFiles recursively lists photo files under dir in lexical order
func ListPhotoFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsPhotoFile(path) {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// DirExists checks if a directory exists
func DirExists(dirname string) bool {
	info, err := os.Stat(dirname)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// SanitizeFilename replaces characters that are invalid in filenames with underscores
func SanitizeFilename(filename string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := filename
	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}

	// Leading/trailing spaces and dots
	return strings.Trim(result, " .")
}

// FormatFileSize formats a byte count in human-readable form
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
