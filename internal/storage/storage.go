package storage

import (
	"context"
	"fmt"
	"time"
)

// Store archives raw attachments
type Store interface {
	Put(ctx context.Context, key string, content []byte) error
}

// ArchiveKey returns the key a raw attachment received at t is archived under
// in the form "{UTC year}/{UTC month 1-12}/{filename}"
func ArchiveKey(t time.Time, filename string) string {
	t = t.UTC()
	return fmt.Sprintf("%d/%d/%s", t.Year(), int(t.Month()), filename)
}
