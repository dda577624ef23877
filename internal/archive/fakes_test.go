package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"orderbridge/internal/domain"
)

var errBlobNotFound = errors.New("fake blob not found")

type fakeBlobs struct {
	mu        sync.Mutex
	objects   map[string][]byte
	putErr    error
	getErr    error
	deleteErr error
	getCalls  int
	deleted   []string

	// Put calls whose body equals blockOn wait for release (or ctx).
	blockOn []byte
	release chan struct{}
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}}
}

func (f *fakeBlobs) Put(ctx context.Context, key string, body []byte, _ string) error {
	f.mu.Lock()
	block := f.blockOn != nil && bytes.Equal(body, f.blockOn)
	release := f.release
	f.mu.Unlock()
	if block {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[key] = append([]byte(nil), body...)
	return nil
}

func (f *fakeBlobs) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("get %q: %w", key, errBlobNotFound)
	}
	return data, nil
}

func (f *fakeBlobs) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, key)
	delete(f.objects, key)
	return nil
}

func (f *fakeBlobs) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

func (f *fakeBlobs) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// fakeMeta mirrors the conditional upsert and tombstones of the DynamoDB repository.
type fakeMeta struct {
	mu        sync.Mutex
	records   map[string]domain.SessionRecord
	fences    map[string]int64 // seq of the latest delete
	getErr    error
	putErr    error
	deleteErr error
	puts      int
}

func newFakeMeta() *fakeMeta {
	return &fakeMeta{records: map[string]domain.SessionRecord{}, fences: map[string]int64{}}
}

func (f *fakeMeta) GetSession(_ context.Context, tenantKey string) (domain.SessionRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return domain.SessionRecord{}, false, f.getErr
	}
	rec, ok := f.records[tenantKey]
	return rec, ok, nil
}

func (f *fakeMeta) PutSession(_ context.Context, rec domain.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.putErr != nil {
		return f.putErr
	}
	if f.staleLocked(rec.TenantKey, rec.Seq) {
		return fmt.Errorf("put %q: %w", rec.TenantKey, domain.ErrStaleSession)
	}
	f.records[rec.TenantKey] = rec
	return nil
}

func (f *fakeMeta) DeleteSession(_ context.Context, tenantKey string, seq int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if f.staleLocked(tenantKey, seq) {
		return fmt.Errorf("delete %q: %w", tenantKey, domain.ErrStaleSession)
	}
	delete(f.records, tenantKey)
	f.fences[tenantKey] = seq
	return nil
}

func (f *fakeMeta) staleLocked(tenantKey string, seq int64) bool {
	if cur, ok := f.records[tenantKey]; ok && cur.Seq >= seq {
		return true
	}
	fence, ok := f.fences[tenantKey]
	return ok && fence >= seq
}

func (f *fakeMeta) set(rec domain.SessionRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.TenantKey] = rec
}

func (f *fakeMeta) get(tenantKey string) (domain.SessionRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[tenantKey]
	return rec, ok
}
