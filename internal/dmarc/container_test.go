package dmarc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mimeType string
		want     ContainerKind
	}{
		{"application/gzip", Gzip},
		{"application/x-gzip", Gzip},
		{"Application/GZIP", Gzip},
		{"application/gzip; name=\"google.com!example.com!1!2.xml.gz\"", Gzip},
		{"application/zip", Zip},
		{"application/x-zip-compressed", Zip},
		{"text/xml", RawXML},
		{"application/xml", RawXML},
		{"application/pdf", Unknown},
		{"application/octet-stream", Unknown},
		{"not/a-type", Unknown},
		{"", Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.mimeType, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Detect(tt.mimeType))
		})
	}
}

func TestContainerKindString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "gzip", Gzip.String())
	assert.Equal(t, "zip", Zip.String())
	assert.Equal(t, "xml", RawXML.String())
	assert.Equal(t, "unknown", Unknown.String())
}
