// Package snapshot persists raw API pages as immutable bronze artifacts.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// timestampLayout keeps sub-second precision so concurrent writers with the
// same prefix do not collide.
const timestampLayout = "20060102T150405.000000Z"

// Ref points at one stored artifact.
type Ref struct {
	Name      string    `json:"name" bson:"name"`
	Location  string    `json:"location" bson:"location"`
	Prefix    string    `json:"prefix" bson:"prefix"`
	Page      int       `json:"page,omitempty" bson:"page,omitempty"`
	Size      int64     `json:"size" bson:"size"`
	WrittenAt time.Time `json:"writtenAt" bson:"writtenAt"`
}

// Writer stores one JSON payload. page is nil for artifacts that are not part
// of a paginated run.
type Writer interface {
	Write(ctx context.Context, payload []byte, prefix string, page *int) (Ref, error)
}

// ObjectName builds <prefix>[_pNNNN]_<timestamp>.json.
func ObjectName(prefix string, page *int, at time.Time) string {
	suffix := ""
	if page != nil {
		suffix = fmt.Sprintf("_p%04d", *page)
	}
	return fmt.Sprintf("%s%s_%s.json", prefix, suffix, at.UTC().Format(timestampLayout))
}

// formatPayload indents the document without touching its content.
func formatPayload(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, payload, "", "  "); err != nil {
		return nil, fmt.Errorf("snapshot: payload is not JSON: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func pageNumber(page *int) int {
	if page == nil {
		return 0
	}
	return *page
}
