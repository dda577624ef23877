package archive

import (
	"context"

	"orderbridge/internal/metrics"
)

// SaveOutcome describes how a background save ended.
type SaveOutcome struct {
	TenantKey string
	BlobKey   string
	Seq       int64
	SizeBytes int64
	// Status is one of metrics.SaveCommitted, SaveFailed, SaveRolledBack or SaveSuperseded.
	Status string
	Err    error
}

// Committed reports whether the bundle is now the tenant's durable session.
func (o SaveOutcome) Committed() bool {
	return o.Status == metrics.SaveCommitted
}

// Pending is the handle of an accepted save.
type Pending struct {
	done    chan struct{}
	outcome SaveOutcome
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) resolve(out SaveOutcome) {
	p.outcome = out
	close(p.done)
}

// Done is closed once the background save has finished.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the save finishes or ctx ends.
func (p *Pending) Wait(ctx context.Context) (SaveOutcome, error) {
	select {
	case <-p.done:
		return p.outcome, nil
	case <-ctx.Done():
		return SaveOutcome{}, ctx.Err()
	}
}
