package clients

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_GetAndPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Method", r.Method)
		w.Header().Set("X-Auth", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	client := NewHTTPClient()
	headers := http.Header{}
	headers.Set("Authorization", "Bearer t")

	tests := []struct {
		name       string
		call       func() (int, []byte, http.Header, error)
		wantMethod string
		wantBody   string
	}{
		{
			name: "get",
			call: func() (int, []byte, http.Header, error) {
				return client.Get(context.Background(), srv.URL, headers)
			},
			wantMethod: http.MethodGet,
			wantBody:   "",
		},
		{
			name: "post",
			call: func() (int, []byte, http.Header, error) {
				return client.Post(context.Background(), srv.URL, headers, []byte(`{"a":1}`))
			},
			wantMethod: http.MethodPost,
			wantBody:   `{"a":1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body, respHeaders, err := tt.call()
			require.NoError(t, err)
			assert.Equal(t, http.StatusCreated, code)
			assert.Equal(t, tt.wantBody, string(body))
			assert.Equal(t, tt.wantMethod, respHeaders.Get("X-Method"))
			assert.Equal(t, "Bearer t", respHeaders.Get("X-Auth"))
		})
	}
}

func TestHTTPClient_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, _, err := NewHTTPClient().Get(ctx, srv.URL, nil)
	assert.Error(t, err)
}
