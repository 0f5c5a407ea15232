package dmarc

import (
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ContainerKind is the outer encoding of a report attachment
type ContainerKind int

const (
	Unknown ContainerKind = iota
	Gzip
	Zip
	RawXML
)

func (k ContainerKind) String() string {
	switch k {
	case Gzip:
		return "gzip"
	case Zip:
		return "zip"
	case RawXML:
		return "xml"
	default:
		return "unknown"
	}
}

// Detect maps the declared mime type of an attachment to a container kind
// using the canonical extension from the mime database.
func Detect(mimeType string) ContainerKind {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = strings.TrimSpace(mimeType)
	}
	mediaType = strings.ToLower(mediaType)
	if mediaType == "" {
		return Unknown
	}

	m := mimetype.Lookup(mediaType)
	if m == nil {
		return Unknown
	}

	switch m.Extension() {
	case ".gz":
		return Gzip
	case ".zip":
		return Zip
	case ".xml":
		return RawXML
	default:
		return Unknown
	}
}
