package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderbridge/internal/archive"
	"orderbridge/internal/domain"
)

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func (m *memBlobs) Put(_ context.Context, key string, body []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[key] = append([]byte(nil), body...)
	return nil
}

func (m *memBlobs) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, errors.New("missing object")
	}
	return b, nil
}

func (m *memBlobs) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

type memMeta struct {
	mu        sync.Mutex
	records   map[string]domain.SessionRecord
	deleteErr error
}

func (m *memMeta) GetSession(_ context.Context, tenantKey string) (domain.SessionRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[tenantKey]
	return rec, ok, nil
}

func (m *memMeta) PutSession(_ context.Context, rec domain.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.records[rec.TenantKey]; ok && cur.Seq >= rec.Seq {
		return domain.ErrStaleSession
	}
	m.records[rec.TenantKey] = rec
	return nil
}

func (m *memMeta) DeleteSession(_ context.Context, tenantKey string, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.records, tenantKey)
	return nil
}

type fixture struct {
	blobs *memBlobs
	meta  *memMeta
	store *archive.Store
	dir   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		blobs: &memBlobs{objects: map[string][]byte{}},
		meta:  &memMeta{records: map[string]domain.SessionRecord{}},
		dir:   t.TempDir(),
	}
	s, err := archive.New(f.blobs, f.meta, archive.WithLocalDir(f.dir))
	require.NoError(t, err)
	f.store = s
	return f
}

func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand(func(context.Context) (Archive, error) { return f.store, nil })
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func (f *fixture) bundle(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(f.dir, "bundle.zip")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestSaveExistsExtractDelete(t *testing.T) {
	f := newFixture(t)
	bundle := f.bundle(t, "PK-session")

	out, err := f.run(t, "save", "RemoteAuth-est-1", bundle)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ saved est-1")
	_, statErr := os.Stat(bundle)
	require.True(t, os.IsNotExist(statErr), "committed bundle is removed locally")

	out, err = f.run(t, "exists", "est-1")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ session stored for est-1")

	dest := filepath.Join(f.dir, "restored.zip")
	out, err = f.run(t, "extract", "est-1", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ extracted est-1")
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "PK-session", string(got))

	out, err = f.run(t, "delete", "est-1")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ deleted session for est-1")
	assert.Empty(t, f.blobs.objects)

	out, err = f.run(t, "exists", "est-1")
	require.NoError(t, err)
	assert.Contains(t, out, "✗ no session stored")
}

func TestSave_NoBundle(t *testing.T) {
	f := newFixture(t)
	out, err := f.run(t, "save", "est-1", filepath.Join(f.dir, "missing.zip"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "no bundle at")
}

func TestSave_FailedUploadJSON(t *testing.T) {
	f := newFixture(t)
	f.blobs.putErr = errors.New("bucket unreachable")
	bundle := f.bundle(t, "PK")

	out, err := f.run(t, "--format", "json", "save", "est-1", bundle)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "SAVE_FAILED", resp.Error.Code)
	assert.FileExists(t, bundle)
}

func TestExtract_MissingSession(t *testing.T) {
	f := newFixture(t)
	dest := filepath.Join(f.dir, "restored.zip")
	_, err := f.run(t, "extract", "est-1", dest)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.NoFileExists(t, dest)
}

func TestDelete_MetadataFailure(t *testing.T) {
	f := newFixture(t)
	f.meta.deleteErr = errors.New("throttled")
	out, err := f.run(t, "delete", "est-1")
	require.Error(t, err)
	assert.Contains(t, out, "throttled")
}

func TestExistsJSON(t *testing.T) {
	f := newFixture(t)
	f.meta.records["est-1"] = domain.SessionRecord{TenantKey: "est-1", BlobRef: "sessions/est-1/1-a.zip"}

	out, err := f.run(t, "--format", "json", "exists", "est-1")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   existsResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, existsResult{TenantKey: "est-1", Exists: true}, resp.Data)
}

func TestInvalidFormat(t *testing.T) {
	f := newFixture(t)
	_, err := f.run(t, "--format", "yaml", "exists", "est-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestOpenFailure(t *testing.T) {
	cmd := NewRootCommand(func(context.Context) (Archive, error) { return nil, errors.New("no credentials") })
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"exists", "est-1"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("x")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad")))
}
