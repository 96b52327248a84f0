package vrchat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AzielCF/az-grouppost/domains/post"
	"github.com/AzielCF/az-grouppost/infrastructure/storage"
	"github.com/AzielCF/az-grouppost/pkg/crypto"
)

type testHarness struct {
	client *Client
	clock  *clockwork.FakeClock
	store  *storage.DocumentStore

	mu    sync.Mutex
	waits []time.Duration
}

func (h *testHarness) recordedWaits() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Duration(nil), h.waits...)
}

// newHarness wires a client to handler. Waits advance the fake clock
// instantly and are recorded instead of slept.
func newHarness(t *testing.T, handler http.HandlerFunc) *testHarness {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store, err := storage.NewFileStore(t.TempDir(), crypto.NewProvider("test-secret"))
	require.NoError(t, err)

	h := &testHarness{clock: clockwork.NewFakeClock(), store: store}
	h.client = NewClient(Options{
		BaseURL:     srv.URL,
		UserAgent:   "grouppost-test",
		MinInterval: time.Second,
		MaxRetries:  3,
		BaseBackoff: 2 * time.Second,
		MaxBackoff:  30 * time.Second,
	}, NewSessionStore(store), WithClock(h.clock))
	h.client.wait = func(ctx context.Context, d time.Duration) error {
		h.mu.Lock()
		h.waits = append(h.waits, d)
		h.mu.Unlock()
		h.clock.Advance(d)
		return nil
	}
	return h
}

func TestClient_SpacesRequestsByMinInterval(t *testing.T) {
	var h *testHarness
	var mu sync.Mutex
	var seen []time.Time
	h = newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, h.clock.Now())
		mu.Unlock()
		_, _ = w.Write([]byte(`[]`))
	})

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := h.client.ListGroupRoles(ctx, "grp_1")
		require.NoError(t, err)
	}

	require.Len(t, seen, 4)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i].Sub(seen[i-1]), time.Second)
	}
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, h.recordedWaits())
}

func TestClient_RetriesRateLimitWithDoublingBackoff(t *testing.T) {
	var calls int32
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	var reasons []WaitReason
	ctx := WithWaitObserver(context.Background(), func(reason WaitReason, d time.Duration) {
		reasons = append(reasons, reason)
	})
	_, err := h.client.ListGroupRoles(ctx, "grp_1")

	var failed *RequestFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, 4, failed.Attempts)
	assert.Equal(t, http.StatusTooManyRequests, failed.LastStatus)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, h.recordedWaits())
	assert.Equal(t, []WaitReason{WaitBackoff, WaitBackoff, WaitBackoff}, reasons)
}

func TestClient_BackoffIsCapped(t *testing.T) {
	c := NewClient(Options{BaseBackoff: 2 * time.Second, MaxBackoff: 30 * time.Second}, nil)
	assert.Equal(t, 2*time.Second, c.backoff(0))
	assert.Equal(t, 16*time.Second, c.backoff(3))
	assert.Equal(t, 30*time.Second, c.backoff(4))
	assert.Equal(t, 30*time.Second, c.backoff(10))
}

func TestClient_RecoversAfterServerError(t *testing.T) {
	var calls int32
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[{"id":"grol_1","name":"Admin","permissions":["*"]}]`))
	})

	roles, err := h.client.ListGroupRoles(context.Background(), "grp_1")
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.True(t, roles[0].GrantsAnnouncements())
	assert.Equal(t, []time.Duration{2 * time.Second}, h.recordedWaits())
}

func TestClient_ApplicationErrorIsNotRetried(t *testing.T) {
	var calls int32
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"message":"\"You can't do that\"","status_code":403}}`))
	})

	_, err := h.client.CreateGroupPost(context.Background(), "grp_1", post.PublishRequest{Title: "t", Text: "x"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "You can't do that", apiErr.Message)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

// dropConnection closes the connection without writing a response.
func dropConnection(t *testing.T, w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	require.True(t, ok)
	conn, _, err := hj.Hijack()
	require.NoError(t, err)
	_ = conn.Close()
}

func TestClient_TransportErrorOnPostIsNotResent(t *testing.T) {
	var calls int32
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		dropConnection(t, w)
	})

	_, err := h.client.CreateGroupPost(context.Background(), "grp_1", post.PublishRequest{Title: "t", Text: "x"})

	var failed *RequestFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, 1, failed.Attempts)
	assert.Error(t, failed.Err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, h.recordedWaits())
}

func TestClient_TransportErrorOnGetIsRetried(t *testing.T) {
	var calls int32
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			dropConnection(t, w)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := h.client.ListGroupRoles(context.Background(), "grp_1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}

func TestClient_GetGroupNotFoundIsAbsent(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"Group not found","status_code":404}}`))
	})

	g, err := h.client.GetGroup(context.Background(), "grp_missing")
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestClient_GetGroupReadsOwnRoles(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/groups/grp_1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"grp_1","name":"Club","shortCode":"CLUB","ownerId":"usr_o","myMember":{"roleIds":["grol_a","grol_b"]}}`))
	})

	g, err := h.client.GetGroup(context.Background(), "grp_1")
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "Club", g.Name)
	assert.Equal(t, []string{"grol_a", "grol_b"}, g.MyRoleIDs)
}

func TestClient_ListUserGroupsUsesGroupID(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/usr_1/groups", r.URL.Path)
		_, _ = w.Write([]byte(`[{"id":"gmem_1","groupId":"grp_1","name":"Club","ownerId":"usr_1"}]`))
	})

	groups, err := h.client.ListUserGroups(context.Background(), "usr_1")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "grp_1", groups[0].ID)
}

func TestClient_MergesCookiesAcrossResponses(t *testing.T) {
	var lastCookie atomic.Value
	var calls int32
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		lastCookie.Store(r.Header.Get("Cookie"))
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			http.SetCookie(w, &http.Cookie{Name: "auth", Value: "authcookie_1"})
			_, _ = w.Write([]byte(`{"requiresTwoFactorAuth":["totp","otp"]}`))
		case 2:
			http.SetCookie(w, &http.Cookie{Name: "twoFactorAuth", Value: "tfa_1"})
			_, _ = w.Write([]byte(`{"verified":true}`))
		default:
			http.SetCookie(w, &http.Cookie{Name: "auth", Value: "authcookie_2"})
			_, _ = w.Write([]byte(`{"id":"usr_1","displayName":"Tester"}`))
		}
	})
	ctx := context.Background()

	res, err := h.client.Login(ctx, "user@example.com", "p@ss:word")
	require.NoError(t, err)
	assert.True(t, res.RequiresTwoFactor)
	assert.Equal(t, []string{"totp", "otp"}, res.TwoFactorMethods)

	require.NoError(t, h.client.VerifyTwoFactor(ctx, "", "123456"))
	assert.Equal(t, "auth=authcookie_1", lastCookie.Load())

	user, err := h.client.CurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "usr_1", user.ID)
	assert.Equal(t, "auth=authcookie_1; twoFactorAuth=tfa_1", lastCookie.Load())

	assert.Equal(t, map[string]string{"auth": "authcookie_2", "twoFactorAuth": "tfa_1"}, h.client.Session().Cookies(ctx))
}

func TestClient_LoginSendsEscapedBasicAuth(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Basic ")
		decoded, err := base64.StdEncoding.DecodeString(raw)
		require.NoError(t, err)
		assert.Equal(t, "user%40example.com:p%40ss%3Aword", string(decoded))
		_, _ = w.Write([]byte(`{"id":"usr_1","displayName":"Tester"}`))
	})

	res, err := h.client.Login(context.Background(), "user@example.com", "p@ss:word")
	require.NoError(t, err)
	require.NotNil(t, res.User)
	assert.Equal(t, "Tester", res.User.DisplayName)
}

func TestClient_CurrentUserWithoutCredentialMakesNoCall(t *testing.T) {
	var calls int32
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	user, err := h.client.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestClient_CreateGroupPostBody(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/groups/grp_1/posts", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, "Hello", body["title"])
		assert.Equal(t, "public", body["visibility"])
		assert.Equal(t, true, body["sendNotification"])
		assert.Equal(t, []any{}, body["roleIds"])
		_, _ = w.Write([]byte(`{"id":"gpos_1","groupId":"grp_1"}`))
	})

	out, err := h.client.CreateGroupPost(context.Background(), "grp_1", post.PublishRequest{Title: "Hello", Text: "World", SendNotification: true})
	require.NoError(t, err)
	assert.Equal(t, "gpos_1", out.ID)
}

func TestClient_LogoutClearsSession(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	ctx := context.Background()
	require.NoError(t, h.client.Session().Merge(ctx, []*http.Cookie{{Name: "auth", Value: "a"}}))
	require.True(t, h.client.Session().HasCredential(ctx))

	require.NoError(t, h.client.Logout(ctx))
	assert.False(t, h.client.Session().HasCredential(ctx))
}

func TestClient_ThrottleWaitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()
	store, err := storage.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	c := NewClient(Options{BaseURL: srv.URL, MinInterval: time.Hour}, NewSessionStore(store))

	_, err = c.ListGroupRoles(context.Background(), "grp_1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.ListGroupRoles(ctx, "grp_1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
