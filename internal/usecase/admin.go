package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"sync"

	"orderbridge/internal/archive"
	"orderbridge/internal/integrations/paramstore"
)

const maxTenantKeyLen = 128

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// SessionArchive is the part of the archive store exposed to operators.
type SessionArchive interface {
	Exists(ctx context.Context, tenantKey string) bool
	Delete(ctx context.Context, tenantKey string) error
}

type SessionStatus struct {
	TenantKey string
	Exists    bool
}

// SessionAdmin serves operator requests against stored sessions.
type SessionAdmin struct {
	archive     SessionArchive
	params      ParamGetter
	paramPrefix string

	cacheMu     sync.RWMutex
	tokenLoaded bool
	adminToken  string
}

func NewSessionAdmin(a SessionArchive, p ParamGetter, paramPrefix string) (*SessionAdmin, error) {
	if a == nil {
		return nil, errors.New("usecase: session archive must not be nil")
	}
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	return &SessionAdmin{archive: a, params: p, paramPrefix: paramPrefix}, nil
}

// Authorize checks token against the admin token stored in SSM.
func (s *SessionAdmin) Authorize(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return newError(ErrorUnauthorized, "missing_token", nil)
	}
	want, err := s.loadToken(ctx)
	if err != nil {
		return newError(ErrorInternal, "ssm_load_error", err)
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(want)) != 1 {
		return newError(ErrorUnauthorized, "invalid_token", nil)
	}
	return nil
}

// Status reports whether a session is stored for the tenant.
func (s *SessionAdmin) Status(ctx context.Context, tenantKey string) (SessionStatus, error) {
	tenantKey, err := normalizeTenantKey(tenantKey)
	if err != nil {
		return SessionStatus{}, err
	}
	return SessionStatus{TenantKey: tenantKey, Exists: s.archive.Exists(ctx, tenantKey)}, nil
}

// Teardown removes the tenant's stored session and returns the tenant key it acted on.
func (s *SessionAdmin) Teardown(ctx context.Context, tenantKey string) (string, error) {
	tenantKey, err := normalizeTenantKey(tenantKey)
	if err != nil {
		return "", err
	}
	if err := s.archive.Delete(ctx, tenantKey); err != nil {
		return "", newError(ErrorInternal, "session_delete_error", err)
	}
	return tenantKey, nil
}

// loadToken caches the token after the first successful read; failures are retried.
func (s *SessionAdmin) loadToken(ctx context.Context) (string, error) {
	s.cacheMu.RLock()
	if s.tokenLoaded {
		token := s.adminToken
		s.cacheMu.RUnlock()
		return token, nil
	}
	s.cacheMu.RUnlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.tokenLoaded {
		return s.adminToken, nil
	}
	token, err := paramstore.Token(ctx, s.params, s.paramPrefix+"/admin-token")
	if err != nil {
		return "", err
	}
	s.adminToken = token
	s.tokenLoaded = true
	return token, nil
}

// normalizeTenantKey accepts a bare tenant key or an automation session name.
func normalizeTenantKey(tenantKey string) (string, error) {
	tenantKey = archive.TenantKeyFromSession(strings.TrimSpace(tenantKey))
	switch {
	case tenantKey == "":
		return "", newError(ErrorInvalidInput, "empty_tenant_key", nil)
	case len(tenantKey) > maxTenantKeyLen:
		return "", newError(ErrorInvalidInput, "tenant_key_too_long", nil)
	case strings.ContainsAny(tenantKey, "/\\ \t\n"):
		return "", newError(ErrorInvalidInput, "invalid_tenant_key", nil)
	}
	return tenantKey, nil
}
