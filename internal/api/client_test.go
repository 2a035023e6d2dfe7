package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpalmerr/pulsedeck/internal/storage"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...ClientOption) (*Client, *storage.MemoryStorage) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	st := storage.NewMemoryStorage()
	c := NewClient(srv.URL, st, opts...)
	t.Cleanup(c.Close)
	return c, st
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient_BaseURL(t *testing.T) {
	c := NewClient("http://localhost:8000/", storage.NewMemoryStorage())
	assert.Equal(t, "http://localhost:8000/api/v1", c.BaseURL())
}

func TestClient_SendsTokenHeader(t *testing.T) {
	var gotAuth, gotPath string
	c, st := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		writeJSON(w, http.StatusOK, map[string]any{"id": 1, "username": "admin"})
	})
	require.NoError(t, st.Set(storage.KeyAuthToken, "t1"))

	user, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Username)
	assert.Equal(t, "Token t1", gotAuth)
	assert.Equal(t, "/api/v1/auth/user/", gotPath)
}

func TestClient_NoTokenNoHeader(t *testing.T) {
	var gotAuth string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, []any{})
	})

	_, err := c.ListEvents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestClient_Login(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var creds Credentials
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if r.Method != http.MethodPost || creds.Username != "admin" || creds.Password != "admin123" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token": "t1",
			"user":  map[string]any{"id": 1, "username": "admin", "is_superuser": true},
		})
	})

	resp, err := c.Login(context.Background(), "admin", "admin123")
	require.NoError(t, err)
	assert.Equal(t, "t1", resp.Token)
	assert.True(t, resp.User.IsSuperuser)

	_, err = c.Login(context.Background(), "admin", "wrong")
	require.Error(t, err)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Invalid credentials", apiErr.Detail)
}

func TestClient_UnauthorizedClearsTokenAndCallsHook(t *testing.T) {
	var calls atomic.Int32
	c, st := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid token."})
	}, WithUnauthorizedHandler(func() { calls.Add(1) }))
	require.NoError(t, st.Set(storage.KeyAuthToken, "stale"))

	_, err := c.ListServices(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, int32(1), calls.Load())

	_, err = st.Get(storage.KeyAuthToken)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestClient_UnauthorizedOnLoginSkipsHook(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid credentials"})
	}, WithUnauthorizedHandler(func() { calls.Add(1) }))

	_, err := c.Login(context.Background(), "admin", "nope")
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Zero(t, calls.Load())
}

func TestClient_ErrorBodyNormalization(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantDetail string
	}{
		{"object with detail", 400, `{"detail":"bad"}`, "bad"},
		{"object with error", 500, `{"error":"Docker unavailable"}`, "Docker unavailable"},
		{"double encoded object", 400, `"{\"detail\":\"Username and password are required\"}"`, "Username and password are required"},
		{"json string", 400, `"plain message"`, "plain message"},
		{"html", 502, `<html>Bad Gateway</html>`, "<html>Bad Gateway</html>"},
		{"empty", 500, ``, genericErrorDetail},
		{"object without detail", 404, `{"foo":"bar"}`, "Not Found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.ServiceStats(context.Background())
			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantDetail, apiErr.Detail)
			assert.Equal(t, tt.wantDetail, apiErr.Body["detail"])
		})
	}
}

func TestNormalizeErrorBody_Empty(t *testing.T) {
	assert.Equal(t, map[string]any{"detail": genericErrorDetail}, normalizeErrorBody(nil))
}

func TestClient_ListServicesPaginatedOrBare(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"paginated", `{"count":2,"results":[{"id":1,"name":"api"},{"id":2,"name":"db"}]}`},
		{"bare", `[{"id":1,"name":"api"},{"id":2,"name":"db"}]`},
		{"double encoded", `"[{\"id\":1,\"name\":\"api\"},{\"id\":2,\"name\":\"db\"}]"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/services/", r.URL.Path)
				_, _ = w.Write([]byte(tt.body))
			})

			services, err := c.ListServices(context.Background())
			require.NoError(t, err)
			require.Len(t, services, 2)
			assert.Equal(t, "db", services[1].Name)
		})
	}
}

func TestClient_ServiceActions(t *testing.T) {
	var paths []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		paths = append(paths, r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	ctx := context.Background()

	_, err := c.StartContainer(ctx, 3)
	require.NoError(t, err)
	_, err = c.StopContainer(ctx, 3)
	require.NoError(t, err)
	_, err = c.CheckServiceHealth(ctx, 4)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/api/v1/services/3/start_container/",
		"/api/v1/services/3/stop_container/",
		"/api/v1/services/4/check_health/",
	}, paths)
}

func TestClient_DockerMetricsQuery(t *testing.T) {
	var gotQuery string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		writeJSON(w, http.StatusOK, []map[string]any{{"container_id": "abc", "cpu_percent": 12.5}})
	})

	metrics, err := c.DockerMetrics(context.Background(), "abc", 0)
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.InDelta(t, 12.5, metrics[0].CPUPercent, 0.001)
	assert.Equal(t, "container_id=abc&hours=1", gotQuery)
}

func TestClient_EmptySuccessBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, c.Logout(context.Background()))
}

func TestDetail(t *testing.T) {
	assert.Equal(t, "Invalid credentials", Detail(&Error{StatusCode: 401, Detail: "Invalid credentials"}, "Login failed"))
	assert.Equal(t, "boom", Detail(errors.New("boom"), "Login failed"))
	assert.Equal(t, "Login failed", Detail(nil, "Login failed"))
}
