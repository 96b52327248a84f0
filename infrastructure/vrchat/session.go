package vrchat

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AzielCF/az-grouppost/infrastructure/storage"
)

const (
	authDocument    = "auth"
	authCookie      = "auth"
	twoFactorCookie = "twoFactorAuth"
)

type sessionDocument struct {
	Cookies   map[string]string `json:"cookies"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// SessionStore keeps the remote session cookies in the encrypted auth
// document. The document is read once; afterwards the in-memory copy is
// served and every change is written through.
type SessionStore struct {
	store storage.Store

	mu      sync.Mutex
	cookies map[string]string
}

func NewSessionStore(store storage.Store) *SessionStore {
	return &SessionStore{store: store}
}

// loadLocked fills the in-memory cookies from storage on first use.
func (s *SessionStore) loadLocked(ctx context.Context) map[string]string {
	if s.cookies != nil {
		return s.cookies
	}
	doc := sessionDocument{Cookies: map[string]string{}}
	s.store.Read(ctx, authDocument, &doc, storage.Encrypted())
	if doc.Cookies == nil {
		doc.Cookies = map[string]string{}
	}
	s.cookies = doc.Cookies
	return s.cookies
}

// Merge applies response cookies by name, last write wins. Expired or
// emptied cookies are dropped. Storage is only written when something
// changed.
func (s *SessionStore) Merge(ctx context.Context, cookies []*http.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.loadLocked(ctx)
	next := make(map[string]string, len(current)+len(cookies))
	for k, v := range current {
		next[k] = v
	}
	changed := false
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		if c.Value == "" || c.MaxAge < 0 {
			if _, ok := next[c.Name]; ok {
				delete(next, c.Name)
				changed = true
			}
			continue
		}
		if next[c.Name] != c.Value {
			next[c.Name] = c.Value
			changed = true
		}
	}
	if !changed {
		return nil
	}

	doc := sessionDocument{Cookies: next, UpdatedAt: time.Now().UTC()}
	if err := s.store.Write(ctx, authDocument, doc, storage.Encrypted()); err != nil {
		logrus.WithError(err).Error("[VRCHAT] failed to persist session cookies")
		return err
	}
	s.cookies = next
	return nil
}

// Header flattens the cookies into a single Cookie header value.
func (s *SessionStore) Header(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	cookies := s.loadLocked(ctx)

	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+cookies[name])
	}
	return strings.Join(parts, "; ")
}

// Cookies returns a copy of the current cookies.
func (s *SessionStore) Cookies(ctx context.Context) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	cookies := s.loadLocked(ctx)
	out := make(map[string]string, len(cookies))
	for k, v := range cookies {
		out[k] = v
	}
	return out
}

// HasCredential reports whether an auth cookie is stored.
func (s *SessionStore) HasCredential(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)[authCookie] != ""
}

func (s *SessionStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Delete(ctx, authDocument); err != nil {
		return err
	}
	s.cookies = map[string]string{}
	return nil
}
