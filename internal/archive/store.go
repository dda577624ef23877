// Package archive keeps tenant automation sessions alive across restarts by
// persisting their bundle to a blob backend plus a metadata record.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"orderbridge/internal/domain"
	"orderbridge/internal/metrics"
)

const (
	sessionPrefix        = "RemoteAuth-"
	blobKeyPrefix        = "sessions/"
	defaultUploadTimeout = 2 * time.Minute
	cleanupTimeout       = 30 * time.Second
)

// ErrNoBundle is returned by Save when there is no local bundle to persist.
var ErrNoBundle = errors.New("archive: no local bundle to save")

// BlobStore holds bundle bytes. Get must wrap a not-found error when the key is absent.
type BlobStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// MetadataStore holds one SessionRecord per tenant. PutSession and DeleteSession must
// reject writes whose seq is not greater than the stored one with domain.ErrStaleSession,
// and DeleteSession must keep that seq so a later PutSession with a lower one still fails.
type MetadataStore interface {
	GetSession(ctx context.Context, tenantKey string) (domain.SessionRecord, bool, error)
	PutSession(ctx context.Context, rec domain.SessionRecord) error
	DeleteSession(ctx context.Context, tenantKey string, seq int64) error
}

// Store is the durable session-archive store.
type Store struct {
	blobs         BlobStore
	meta          MetadataStore
	logger        *slog.Logger
	metrics       *metrics.Metrics
	uploadTimeout time.Duration
	localDir      string
	onOutcome     func(SaveOutcome)
	now           func() time.Time
	newID         func() string

	seqMu   sync.Mutex
	lastSeq int64

	inflight sync.WaitGroup
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for lifecycle and failure logging.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records save, extract and delete results.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithUploadTimeout bounds each background save (upload + metadata upsert).
func WithUploadTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.uploadTimeout = d
		}
	}
}

// WithLocalDir sets the directory holding local bundle files.
func WithLocalDir(dir string) Option {
	return func(s *Store) {
		if strings.TrimSpace(dir) != "" {
			s.localDir = dir
		}
	}
}

// WithOutcomeHook registers a callback receiving every background save outcome.
func WithOutcomeHook(fn func(SaveOutcome)) Option {
	return func(s *Store) { s.onOutcome = fn }
}

// WithClock overrides the clock used for sequence numbers and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Store over the given backends.
func New(blobs BlobStore, meta MetadataStore, opts ...Option) (*Store, error) {
	if blobs == nil {
		return nil, errors.New("archive: blob store must not be nil")
	}
	if meta == nil {
		return nil, errors.New("archive: metadata store must not be nil")
	}
	s := &Store{
		blobs:         blobs,
		meta:          meta,
		logger:        slog.Default(),
		uploadTimeout: defaultUploadTimeout,
		localDir:      ".",
		now:           time.Now,
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TenantKeyFromSession strips the RemoteAuth- prefix automation clients put on session names.
func TenantKeyFromSession(session string) string {
	return strings.TrimPrefix(session, sessionPrefix)
}

// LocalBundlePath returns where the automation client leaves a tenant's bundle in dir.
func LocalBundlePath(dir, tenantKey string) string {
	return filepath.Join(dir, sessionPrefix+tenantKey+".zip")
}

// LocalBundlePath returns the local bundle path for tenantKey in the store's directory.
func (s *Store) LocalBundlePath(tenantKey string) string {
	return LocalBundlePath(s.localDir, tenantKey)
}

func blobKey(tenantKey string, seq int64, id string) string {
	return blobKeyPrefix + tenantKey + "/" + strconv.FormatInt(seq, 10) + "-" + id + ".zip"
}

// nextSeq returns a strictly increasing sequence derived from the clock.
func (s *Store) nextSeq() int64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	seq := s.now().UnixNano()
	if seq <= s.lastSeq {
		seq = s.lastSeq + 1
	}
	s.lastSeq = seq
	return seq
}

// Exists reports whether a readable session record exists for tenantKey.
// Backend errors are logged and reported as false.
func (s *Store) Exists(ctx context.Context, tenantKey string) bool {
	_, found, err := s.meta.GetSession(ctx, tenantKey)
	if err != nil {
		s.logger.Error("session existence check failed", "tenant", tenantKey, "err", err)
		return false
	}
	return found
}

// Save captures the bundle at localPath and persists it in the background.
//
// The bytes are read before Save returns, so the caller may remove the file
// afterwards. A nil error means the save was accepted, not that it is durable;
// use the returned Pending to observe the outcome. ErrNoBundle is returned when
// localPath does not exist.
func (s *Store) Save(ctx context.Context, tenantKey, localPath string) (*Pending, error) {
	if strings.TrimSpace(tenantKey) == "" {
		return nil, errors.New("archive: Save: tenant key is required")
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Info("no local bundle to save", "tenant", tenantKey, "path", localPath)
			return nil, ErrNoBundle
		}
		return nil, fmt.Errorf("archive: Save read bundle: %w", err)
	}

	seq := s.nextSeq()
	job := saveJob{
		tenantKey: tenantKey,
		localPath: localPath,
		data:      data,
		seq:       seq,
		key:       blobKey(tenantKey, seq, s.newID()),
	}
	p := newPending()

	// The caller's cancellation must not abort a save it already handed off.
	bg := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	s.metrics.SaveStarted()
	go func() {
		defer s.inflight.Done()
		started := time.Now()
		out := s.persist(bg, job)
		s.metrics.SaveFinished(out.Status, time.Since(started))
		p.resolve(out)
		if s.onOutcome != nil {
			s.onOutcome(out)
		}
	}()

	s.logger.Info("session save scheduled", "tenant", tenantKey, "bytes", len(data), "seq", seq)
	return p, nil
}

type saveJob struct {
	tenantKey string
	localPath string
	data      []byte
	seq       int64
	key       string
}

func (s *Store) persist(ctx context.Context, job saveJob) SaveOutcome {
	ctx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
	defer cancel()

	out := SaveOutcome{
		TenantKey: job.tenantKey,
		BlobKey:   job.key,
		Seq:       job.seq,
		SizeBytes: int64(len(job.data)),
	}
	log := s.logger.With("tenant", job.tenantKey, "seq", job.seq, "key", job.key)

	previous, hadPrevious, err := s.meta.GetSession(ctx, job.tenantKey)
	if err != nil {
		// Only costs the cleanup of the superseded blob.
		log.Warn("could not read current session record before save", "err", err)
		hadPrevious = false
	}

	if err := s.blobs.Put(ctx, job.key, job.data, domain.ContentKindZip); err != nil {
		log.Error("session upload failed", "err", err)
		out.Status, out.Err = metrics.SaveFailed, fmt.Errorf("archive: upload: %w", err)
		return out
	}

	rec := domain.SessionRecord{
		TenantKey:   job.tenantKey,
		BlobRef:     job.key,
		SizeBytes:   out.SizeBytes,
		ContentKind: domain.ContentKindZip,
		SavedAt:     s.now().UTC(),
		Seq:         job.seq,
	}
	if err := s.meta.PutSession(ctx, rec); err != nil {
		// The blob is unreferenced either way; it must not outlive this attempt.
		if rbErr := s.deleteBlob(job.key); rbErr != nil {
			log.Error("rollback of uploaded session blob failed, blob orphaned", "err", rbErr)
		}
		if errors.Is(err, domain.ErrStaleSession) {
			log.Info("session save superseded by a newer save")
			out.Status, out.Err = metrics.SaveSuperseded, err
			return out
		}
		log.Error("session metadata upsert failed, upload rolled back", "err", err)
		out.Status, out.Err = metrics.SaveRolledBack, fmt.Errorf("archive: metadata upsert: %w", err)
		return out
	}

	if err := os.Remove(job.localPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("could not delete local bundle after save", "path", job.localPath, "err", err)
	}
	if hadPrevious && previous.BlobRef != "" && previous.BlobRef != job.key {
		if err := s.deleteBlob(previous.BlobRef); err != nil {
			log.Warn("could not delete superseded session blob", "previous", previous.BlobRef, "err", err)
		}
	}

	log.Info("session saved", "bytes", out.SizeBytes)
	out.Status = metrics.SaveCommitted
	return out
}

// deleteBlob runs on its own deadline so cleanup still happens after an upload timeout.
func (s *Store) deleteBlob(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	return s.blobs.Delete(ctx, key)
}

// Extract restores the tenant's bundle to dest. It reports false when there is no
// record or the bundle cannot be retrieved; dest is never left partially written.
func (s *Store) Extract(ctx context.Context, tenantKey, dest string) bool {
	log := s.logger.With("tenant", tenantKey, "dest", dest)

	rec, found, err := s.meta.GetSession(ctx, tenantKey)
	if err != nil {
		log.Error("session record read failed", "err", err)
		s.metrics.RecordExtract("error")
		return false
	}
	if !found {
		log.Info("no session record found")
		s.metrics.RecordExtract("not_found")
		return false
	}

	data, err := s.load(ctx, rec)
	if err != nil {
		log.Error("session bundle unavailable", "err", err)
		s.metrics.RecordExtract("error")
		return false
	}
	if err := writeFileAtomic(dest, data); err != nil {
		log.Error("writing session bundle failed", "err", err)
		s.metrics.RecordExtract("error")
		return false
	}

	log.Info("session extracted", "bytes", len(data))
	s.metrics.RecordExtract("found")
	return true
}

func (s *Store) load(ctx context.Context, rec domain.SessionRecord) ([]byte, error) {
	payload, err := rec.Payload()
	if err != nil {
		return nil, err
	}
	switch p := payload.(type) {
	case domain.BlobPayload:
		return s.blobs.Get(ctx, p.Ref)
	case domain.InlinePayload:
		s.logger.Info("using legacy inline session payload", "tenant", rec.TenantKey)
		return p.Data, nil
	default:
		return nil, fmt.Errorf("archive: unsupported payload %T", payload)
	}
}

// Delete removes every trace of the tenant's session: the local bundle, the blob
// and, last, the metadata record. Only a failure to remove the record is returned;
// a blob that could not be removed is logged and left behind. Saves accepted before
// Delete are fenced off and end as superseded.
func (s *Store) Delete(ctx context.Context, tenantKey string) error {
	seq := s.nextSeq()
	log := s.logger.With("tenant", tenantKey, "seq", seq)

	local := s.LocalBundlePath(tenantKey)
	if err := os.Remove(local); err == nil {
		log.Info("local session bundle deleted", "path", local)
	} else if !errors.Is(err, fs.ErrNotExist) {
		log.Warn("could not delete local session bundle", "path", local, "err", err)
	}

	leaked := false
	rec, found, err := s.meta.GetSession(ctx, tenantKey)
	switch {
	case err != nil:
		log.Warn("could not read session record before delete, blob may leak", "err", err)
		leaked = true
	case found && rec.Seq >= seq:
		// Saved after this Delete began; DeleteSession rejects it below.
		log.Warn("session record is newer than the delete, leaving it in place", "record_seq", rec.Seq)
	case found && rec.BlobRef != "":
		if err := s.blobs.Delete(ctx, rec.BlobRef); err != nil {
			log.Warn("could not delete session blob", "key", rec.BlobRef, "err", err)
			leaked = true
		}
	}

	if err := s.meta.DeleteSession(ctx, tenantKey, seq); err != nil {
		log.Error("session record delete failed", "err", err)
		s.metrics.RecordDelete("error")
		return fmt.Errorf("archive: Delete %q: %w", tenantKey, err)
	}

	if leaked {
		s.metrics.RecordDelete("blob_leaked")
	} else {
		s.metrics.RecordDelete("ok")
	}
	log.Info("session deleted")
	return nil
}

// Flush waits for every accepted save to finish or for ctx to end.
func (s *Store) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("archive: Flush: %w", ctx.Err())
	}
}

// writeFileAtomic writes data to a temp file next to dest and renames it into place.
func writeFileAtomic(dest string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("archive: create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("archive: write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("archive: sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("archive: close temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("archive: rename into place: %w", err)
	}
	return nil
}
