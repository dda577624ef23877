package domain

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// ContentKindZip is the content kind recorded for session bundles.
const ContentKindZip = "application/zip"

// SessionRecord is the persisted metadata for one tenant's session bundle.
// Exactly one of BlobRef and InlinePayload is set on any retrievable record.
type SessionRecord struct {
	TenantKey     string
	BlobRef       string
	InlinePayload string // legacy base64 bundle, read-only
	SizeBytes     int64
	ContentKind   string
	SavedAt       time.Time
	Seq           int64
}

// Payload is the decoded location of a record's bundle bytes.
type Payload interface {
	isPayload()
}

// BlobPayload points at a bundle stored in the blob backend.
type BlobPayload struct {
	Ref string
}

// InlinePayload carries a legacy bundle embedded in the record itself.
type InlinePayload struct {
	Data []byte
}

func (BlobPayload) isPayload()   {}
func (InlinePayload) isPayload() {}

// ErrStaleSession is returned by metadata stores when a newer save already committed.
var ErrStaleSession = errors.New("domain: stale session write")

// ErrNoPayload is returned for records carrying neither a blob reference nor an inline bundle.
var ErrNoPayload = errors.New("domain: session record has no payload")

// Payload resolves which storage format the record uses.
func (r SessionRecord) Payload() (Payload, error) {
	switch {
	case r.BlobRef != "" && r.InlinePayload != "":
		return nil, fmt.Errorf("domain: session record %q carries both blob reference and inline payload", r.TenantKey)
	case r.BlobRef != "":
		return BlobPayload{Ref: r.BlobRef}, nil
	case r.InlinePayload != "":
		data, err := base64.StdEncoding.DecodeString(r.InlinePayload)
		if err != nil {
			return nil, fmt.Errorf("domain: decode inline payload: %w", err)
		}
		return InlinePayload{Data: data}, nil
	default:
		return nil, ErrNoPayload
	}
}
