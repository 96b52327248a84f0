package vrchat

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AzielCF/az-grouppost/infrastructure/storage"
	"github.com/AzielCF/az-grouppost/pkg/crypto"
)

// countingStore counts document reads and writes.
type countingStore struct {
	storage.Store
	reads  int32
	writes int32
}

func (c *countingStore) Read(ctx context.Context, name string, dest any, opts ...storage.Option) bool {
	atomic.AddInt32(&c.reads, 1)
	return c.Store.Read(ctx, name, dest, opts...)
}

func (c *countingStore) Write(ctx context.Context, name string, doc any, opts ...storage.Option) error {
	atomic.AddInt32(&c.writes, 1)
	return c.Store.Write(ctx, name, doc, opts...)
}

func newCountingSession(t *testing.T) (*SessionStore, *countingStore, *storage.DocumentStore) {
	t.Helper()
	docs, err := storage.NewFileStore(t.TempDir(), crypto.NewProvider("test-secret"))
	require.NoError(t, err)
	counting := &countingStore{Store: docs}
	return NewSessionStore(counting), counting, docs
}

func TestSessionStore_HeaderReadsStorageOnce(t *testing.T) {
	ctx := context.Background()
	session, counting, _ := newCountingSession(t)

	require.NoError(t, session.Merge(ctx, []*http.Cookie{{Name: "auth", Value: "a1"}, {Name: "twoFactorAuth", Value: "t1"}}))
	for i := 0; i < 50; i++ {
		assert.Equal(t, "auth=a1; twoFactorAuth=t1", session.Header(ctx))
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&counting.reads))
	assert.Equal(t, int32(1), atomic.LoadInt32(&counting.writes))
}

func TestSessionStore_MergeWritesThrough(t *testing.T) {
	ctx := context.Background()
	session, _, docs := newCountingSession(t)

	require.NoError(t, session.Merge(ctx, []*http.Cookie{{Name: "auth", Value: "a1"}}))
	require.NoError(t, session.Merge(ctx, []*http.Cookie{{Name: "auth", Value: "a2"}, {Name: "twoFactorAuth", Value: "t1"}}))

	reopened := NewSessionStore(docs)
	assert.Equal(t, map[string]string{"auth": "a2", "twoFactorAuth": "t1"}, reopened.Cookies(ctx))
	assert.True(t, reopened.HasCredential(ctx))
}

func TestSessionStore_UnchangedCookiesAreNotRewritten(t *testing.T) {
	ctx := context.Background()
	session, counting, _ := newCountingSession(t)

	require.NoError(t, session.Merge(ctx, []*http.Cookie{{Name: "auth", Value: "a1"}}))
	require.NoError(t, session.Merge(ctx, []*http.Cookie{{Name: "auth", Value: "a1"}}))
	require.NoError(t, session.Merge(ctx, []*http.Cookie{{Name: "gone", Value: ""}}))
	assert.Equal(t, int32(1), atomic.LoadInt32(&counting.writes))
}

func TestSessionStore_ExpiredCookieIsDropped(t *testing.T) {
	ctx := context.Background()
	session, _, _ := newCountingSession(t)

	require.NoError(t, session.Merge(ctx, []*http.Cookie{{Name: "auth", Value: "a1"}, {Name: "twoFactorAuth", Value: "t1"}}))
	require.NoError(t, session.Merge(ctx, []*http.Cookie{{Name: "twoFactorAuth", Value: "x", MaxAge: -1}}))
	assert.Equal(t, "auth=a1", session.Header(ctx))
}

func TestSessionStore_ClearEmptiesMemoryAndStorage(t *testing.T) {
	ctx := context.Background()
	session, _, docs := newCountingSession(t)

	require.NoError(t, session.Merge(ctx, []*http.Cookie{{Name: "auth", Value: "a1"}}))
	require.NoError(t, session.Clear(ctx))

	assert.Empty(t, session.Header(ctx))
	assert.False(t, session.HasCredential(ctx))
	assert.Empty(t, NewSessionStore(docs).Cookies(ctx))
}

func TestSessionStore_CookiesReturnsCopy(t *testing.T) {
	ctx := context.Background()
	session, _, _ := newCountingSession(t)

	require.NoError(t, session.Merge(ctx, []*http.Cookie{{Name: "auth", Value: "a1"}}))
	got := session.Cookies(ctx)
	got["auth"] = "tampered"
	assert.Equal(t, "auth=a1", session.Header(ctx))
}
