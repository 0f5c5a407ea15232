package helper

import (
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var archiveTypes = []string{
	"application/gzip",
	"application/zip",
}

// SniffMIMEType returns the media type detected from the magic bytes of
// content, without parameters
func SniffMIMEType(content []byte) string {
	detected := mimetype.Detect(content).String()
	mediaType, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return detected
	}
	return mediaType
}

// Extension returns the canonical file extension of a media type including
// the leading dot, or an empty string for unknown types
func Extension(mediaType string) string {
	m := mimetype.Lookup(mediaType)
	if m == nil {
		return ""
	}
	return m.Extension()
}

// IsSupportedArchive reports whether content starts with a gzip or zip signature
func IsSupportedArchive(content []byte) bool {
	m := mimetype.Detect(content)
	for _, t := range archiveTypes {
		if m.Is(t) {
			return true
		}
	}
	return false
}

// IsGenericMIMEType reports whether the declared type says nothing about the
// content, which is common for report attachments
func IsGenericMIMEType(mimeType string) bool {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = mimeType
	}
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "", "application/octet-stream", "binary/octet-stream", "application/x-download":
		return true
	default:
		return false
	}
}
