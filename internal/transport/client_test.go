package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PersonalGroceryManager/go-client/internal/auth"
	"github.com/PersonalGroceryManager/go-client/internal/storage"
)

const (
	staleToken   = "stale-access"
	freshToken   = "fresh-access"
	refreshToken = "refresh-credential"
)

// fakeAPI simulates the backend's auth behavior: protected routes
// demand the fresh access token, and the refresh endpoint exchanges
// the refresh credential for it.
type fakeAPI struct {
	t *testing.T

	refreshCalls atomic.Int32
	dataCalls    atomic.Int32

	refreshDelay time.Duration
	failRefresh  bool

	// barrier, when set, holds all unauthorized data responses until
	// expected callers have arrived, so they observe expiry together.
	barrier  chan struct{}
	expected int32
	arrived  atomic.Int32
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /users/refresh", func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)
		time.Sleep(f.refreshDelay)
		if f.failRefresh {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+refreshToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": freshToken})
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		f.dataCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+freshToken {
			if f.barrier != nil {
				if f.arrived.Add(1) == f.expected {
					close(f.barrier)
				}
				<-f.barrier
			}
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	})
	return mux
}

func newTestClient(t *testing.T, api *fakeAPI) (*Client, *auth.Session) {
	t.Helper()
	ts := httptest.NewServer(api.handler())
	t.Cleanup(ts.Close)

	session := auth.NewSession(storage.NewMemoryStore(), "")
	return New(ts.URL, session, 5*time.Second), session
}

func TestDo_AttachesBearerWithoutMutatingCaller(t *testing.T) {
	var gotAuth, gotReqID string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-ID")
	}))
	defer ts.Close()

	session := auth.NewSession(storage.NewMemoryStore(), "")
	session.Store("tok", "")
	client := New(ts.URL, session, 5*time.Second)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.URL+"/data", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer tok", gotAuth)
	assert.NotEmpty(t, gotReqID)
	assert.Empty(t, req.Header.Get("Authorization"), "caller's request must stay untouched")
	assert.Empty(t, req.Header.Get("X-Request-ID"))
}

func TestDo_RefreshesAndRetriesOnce(t *testing.T) {
	api := &fakeAPI{t: t}
	client, session := newTestClient(t, api)
	session.Store(staleToken, refreshToken)

	body := strings.NewReader(`{"payload":1}`)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, client.URL("/data"), body)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, api.refreshCalls.Load())
	assert.EqualValues(t, 2, api.dataCalls.Load(), "original dispatch plus exactly one retry")

	access, _ := session.AccessToken()
	assert.Equal(t, freshToken, access)
	refresh, _ := session.RefreshToken()
	assert.Equal(t, refreshToken, refresh, "refresh token survives an access refresh")
}

func TestDo_ReplaysRequestBodyOnRetry(t *testing.T) {
	var bodies []string
	var mu sync.Mutex
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/users/refresh" {
			json.NewEncoder(w).Encode(map[string]string{"access_token": freshToken})
			return
		}
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer "+freshToken {
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer ts.Close()

	session := auth.NewSession(storage.NewMemoryStore(), "")
	session.Store(staleToken, refreshToken)
	client := New(ts.URL, session, 5*time.Second)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPut, ts.URL+"/data", strings.NewReader("hello"))
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Len(t, bodies, 2)
	assert.Equal(t, "hello", bodies[0])
	assert.Equal(t, "hello", bodies[1], "retry must carry the full body again")
}

func TestDo_RefreshFailureReturnsOriginalResponse(t *testing.T) {
	api := &fakeAPI{t: t, failRefresh: true}
	client, session := newTestClient(t, api)
	session.Store(staleToken, refreshToken)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, client.URL("/data"), nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.EqualValues(t, 1, api.dataCalls.Load(), "no retry without a fresh token")

	access, _ := session.AccessToken()
	assert.Equal(t, staleToken, access, "failed refresh must not touch stored tokens")
}

func TestDo_NoRefreshWithoutRefreshToken(t *testing.T) {
	api := &fakeAPI{t: t}
	client, session := newTestClient(t, api)
	session.Store(staleToken, "")

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, client.URL("/data"), nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.EqualValues(t, 0, api.refreshCalls.Load())
}

func TestDo_SecondUnauthorizedDoesNotLoop(t *testing.T) {
	// The server accepts the refresh but keeps rejecting the data
	// call; the pipeline must stop after one retry.
	var refreshCalls, dataCalls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/users/refresh" {
			refreshCalls.Add(1)
			json.NewEncoder(w).Encode(map[string]string{"access_token": freshToken})
			return
		}
		dataCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	session := auth.NewSession(storage.NewMemoryStore(), "")
	session.Store(staleToken, refreshToken)
	client := New(ts.URL, session, 5*time.Second)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.URL+"/data", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.EqualValues(t, 2, dataCalls.Load())
	assert.EqualValues(t, 1, refreshCalls.Load(), "a 401 on the retry must not trigger another refresh")
}

func TestDo_MalformedRefreshBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/users/refresh" {
			fmt.Fprint(w, `{"something_else":"x"}`)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	session := auth.NewSession(storage.NewMemoryStore(), "")
	session.Store(staleToken, refreshToken)
	client := New(ts.URL, session, 5*time.Second)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.URL+"/data", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	access, _ := session.AccessToken()
	assert.Equal(t, staleToken, access, "missing access_token must not overwrite the stored one")
}

func TestDo_SingleFlightRefresh(t *testing.T) {
	const callers = 8

	api := &fakeAPI{
		t: t,
		// Hold the 401s until every caller has observed expiry, then
		// slow the refresh so all of them coalesce onto one flight.
		barrier:      make(chan struct{}),
		expected:     callers,
		refreshDelay: 200 * time.Millisecond,
	}
	client, session := newTestClient(t, api)
	session.Store(staleToken, refreshToken)

	var wg sync.WaitGroup
	statuses := make([]int, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, client.URL("/data"), nil)
			if err != nil {
				errs[i] = err
				return
			}
			resp, err := client.Do(req)
			if err != nil {
				errs[i] = err
				return
			}
			statuses[i] = resp.StatusCode
			resp.Body.Close()
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, http.StatusOK, statuses[i], "caller %d should succeed after the shared refresh", i)
	}
	assert.EqualValues(t, 1, api.refreshCalls.Load(), "concurrent expiries must share one refresh call")

	access, _ := session.AccessToken()
	assert.Equal(t, freshToken, access)
}

func TestDo_RefreshSurvivesCanceledTrigger(t *testing.T) {
	api := &fakeAPI{t: t, refreshDelay: 100 * time.Millisecond}
	client, session := newTestClient(t, api)
	session.Store(staleToken, refreshToken)

	// The triggering caller's context dies right after its first
	// dispatch; the shared refresh must still complete and store the
	// new token for everyone else.
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, client.URL("/data"), nil)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	resp, err := client.Do(req)
	if err == nil {
		resp.Body.Close()
	}

	assert.Eventually(t, func() bool {
		access, _ := session.AccessToken()
		return access == freshToken
	}, 2*time.Second, 10*time.Millisecond, "refresh should finish despite the canceled trigger")
}

func TestDoJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		json.NewEncoder(w).Encode(map[string]string{"echo": in["msg"]})
	}))
	defer ts.Close()

	session := auth.NewSession(storage.NewMemoryStore(), "")
	client := New(ts.URL, session, 5*time.Second)

	var out struct {
		Echo string `json:"echo"`
	}
	code, err := client.DoJSON(context.Background(), http.MethodPost, "/echo", map[string]string{"msg": "hi"}, &out)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "hi", out.Echo)
}
