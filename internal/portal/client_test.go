package portal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/portal-listings/internal/entity"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...ClientOption) *HTTPClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, opts...)
	require.NoError(t, err)
	return client
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient("")
	assert.ErrorIs(t, err, ErrBaseURLRequired)
}

func TestNewClient_Defaults(t *testing.T) {
	client, err := NewClient("https://portal.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "https://portal.example.com", client.baseURL)
	assert.Equal(t, 0, client.maxRetries)
	assert.Nil(t, client.limiter)
}

func TestHTTPClient_List_SelectsEndpointByScope(t *testing.T) {
	tests := []struct {
		typ   entity.Type
		scope Scope
		path  string
	}{
		{entity.TypeJob, ScopePublished, "/api/published-jobs/"},
		{entity.TypeJob, ScopeManaged, "/api/manage-jobs/"},
		{entity.TypeInternship, ScopePublished, "/api/published-internship/"},
		{entity.TypeInternship, ScopeManaged, "/api/manage-internships/"},
		{entity.TypeExam, ScopePublished, "/api/published-exams/"},
		{entity.TypeExam, ScopeManaged, "/api/manage-exams/"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, tt.path, r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"data":[{"id":"1"},{"id":"1"},{"id":"2"}]}`))
			})

			got, err := client.List(context.Background(), tt.typ, tt.scope)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, tt.typ, got[0].Type)
		})
	}
}

func TestHTTPClient_List_UnknownType(t *testing.T) {
	client, err := NewClient("http://unused")
	require.NoError(t, err)

	_, err = client.List(context.Background(), entity.Type("course"), ScopePublished)
	assert.ErrorIs(t, err, entity.ErrUnknownType)
}

func TestHTTPClient_List_UnexpectedShape(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"maintenance"}`))
	})

	_, err := client.List(context.Background(), entity.TypeJob, ScopePublished)
	assert.ErrorIs(t, err, entity.ErrUnexpectedShape)
}

func TestHTTPClient_Authorization(t *testing.T) {
	var got atomic.Value
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[]`))
	}, WithToken("service-token"))

	_, err := client.List(context.Background(), entity.TypeJob, ScopePublished)
	require.NoError(t, err)
	assert.Equal(t, "Bearer service-token", got.Load())

	ctx := ContextWithToken(context.Background(), "user-token")
	_, err = client.List(ctx, entity.TypeJob, ScopePublished)
	require.NoError(t, err)
	assert.Equal(t, "Bearer user-token", got.Load())
}

func TestHTTPClient_NoRetryByDefault(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.List(context.Background(), entity.TypeJob, ScopePublished)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPClient_RetriesWhenConfigured(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"id":"ok"}]`))
	}, WithMaxRetries(3), WithBaseBackoff(time.Millisecond))

	got, err := client.List(context.Background(), entity.TypeJob, ScopePublished)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHTTPClient_RetriesExhausted(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}, WithMaxRetries(2), WithBaseBackoff(time.Millisecond))

	_, err := client.List(context.Background(), entity.TypeJob, ScopePublished)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Contains(t, err.Error(), "max retries exceeded")
}

func TestHTTPClient_ClientErrorsNotRetried(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}, WithMaxRetries(3), WithBaseBackoff(time.Millisecond))

	_, err := client.List(context.Background(), entity.TypeJob, ScopePublished)
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPClient_Unauthorized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := client.List(context.Background(), entity.TypeJob, ScopeManaged)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestHTTPClient_SaveAndUnsave(t *testing.T) {
	var paths []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		paths = append(paths, r.URL.Path)
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	})
	ctx := context.Background()

	require.NoError(t, client.Save(ctx, entity.TypeJob, "abc"))
	require.NoError(t, client.Unsave(ctx, entity.TypeInternship, "def"))
	require.NoError(t, client.Save(ctx, entity.TypeExam, "g h"))

	assert.Equal(t, []string{
		"/api/save-job/abc/",
		"/api/unsave-internship/def/",
		"/api/save-exam/g h/",
	}, paths)
}

func TestHTTPClient_Save_ErrorField(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"already saved"}`))
	})

	err := client.Save(context.Background(), entity.TypeJob, "abc")
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Contains(t, err.Error(), "already saved")
}

func TestHTTPClient_Save_RequiresID(t *testing.T) {
	client, err := NewClient("http://unused")
	require.NoError(t, err)

	assert.ErrorIs(t, client.Save(context.Background(), entity.TypeJob, ""), ErrIDRequired)
	assert.ErrorIs(t, client.Unsave(context.Background(), entity.TypeJob, ""), ErrIDRequired)
	assert.ErrorIs(t, client.IncrementViewCount(context.Background(), ""), ErrIDRequired)
}

func TestHTTPClient_SavedIDs(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/saved-jobs/u1/", r.URL.Path)
		_, _ = w.Write([]byte(`{"saved_jobs":[{"id":"a"},{"id":"b"}]}`))
	})

	ids, err := client.SavedIDs(context.Background(), entity.TypeJob, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	_, err = client.SavedIDs(context.Background(), entity.TypeJob, "")
	assert.ErrorIs(t, err, ErrUserIDRequired)
}

func TestHTTPClient_Saved(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/saved-exams/u1/", r.URL.Path)
		_, _ = w.Write([]byte(`[{"id":"e1","exam_data":{"exam_name":"NET"}}]`))
	})

	got, err := client.Saved(context.Background(), entity.TypeExam, "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "NET", got[0].Title)
}

func TestHTTPClient_IncrementViewCount(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/increment-view-count/j1/", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.IncrementViewCount(context.Background(), "j1"))
}

func TestHTTPClient_RateLimitHonorsContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}, WithRateLimit(0.001, 1))

	_, err := client.List(context.Background(), entity.TypeJob, ScopePublished)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.List(ctx, entity.TypeJob, ScopePublished)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}

func TestHTTPClient_TimeoutOption(t *testing.T) {
	client, err := NewClient("http://unused", WithTimeout(3*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, client.httpClient.Timeout)

	shared := &http.Client{Timeout: time.Minute}
	client, err = NewClient("http://unused", WithHTTPClient(shared), WithTimeout(3*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, client.httpClient.Timeout)
	assert.Equal(t, time.Minute, shared.Timeout)
	assert.NotSame(t, shared, client.httpClient)

	client, err = NewClient("http://unused", WithHTTPClient(shared))
	require.NoError(t, err)
	assert.Same(t, shared, client.httpClient)

	assert.NotPanics(t, func() {
		client, err = NewClient("http://unused", WithHTTPClient(nil), WithTimeout(time.Second))
	})
	require.NoError(t, err)
	require.NotNil(t, client.httpClient)
	assert.Equal(t, time.Second, client.httpClient.Timeout)
}
