package services

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"teamdrive/models"
)

const maxNameLength = 200

var pictureExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true,
	".gif": true, ".bmp": true, ".webp": true,
}

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".mkv": true, ".webm": true, ".avi": true,
}

// detectKind classifies a committed upload by its name.
func detectKind(name string) models.ResourceKind {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case pictureExtensions[ext]:
		return models.KindPicture
	case videoExtensions[ext]:
		return models.KindVideo
	}
	return models.KindFile
}

// validName reports whether name can be stored as a sibling name.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00")
}

// getMimeType is the content type stored objects are served with.
func getMimeType(ext string) string {
	mimeTypes := map[string]string{
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".png":  "image/png",
		".gif":  "image/gif",
		".bmp":  "image/bmp",
		".webp": "image/webp",
		".pdf":  "application/pdf",
		".txt":  "text/plain",
		".mp4":  "video/mp4",
		".mov":  "video/quicktime",
		".webm": "video/webm",
		".mp3":  "audio/mpeg",
		".zip":  "application/zip",
	}
	if mt, ok := mimeTypes[strings.ToLower(ext)]; ok {
		return mt
	}
	return "application/octet-stream"
}
