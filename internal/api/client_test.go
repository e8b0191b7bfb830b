package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func TestClientStatusMapping(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/limited", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"value":"hello"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), nil)
	ctx := context.Background()

	err := c.Get(ctx, "/limited", nil, nil)
	assert.True(t, IsRateLimited(err))
	assert.True(t, IsSilent(err))

	err = c.Get(ctx, "/gone", nil, nil)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, IsSilent(err))

	err = c.Get(ctx, "/broken", nil, nil)
	require.Error(t, err)
	assert.False(t, IsSilent(err))
	assert.False(t, IsRateLimited(err))

	var out struct {
		Value string `json:"value"`
	}
	require.NoError(t, c.Get(ctx, "/ok", nil, &out))
	assert.Equal(t, "hello", out.Value)
}

func TestClientAuthorizationHeader(t *testing.T) {
	t.Parallel()

	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx := context.Background()

	c := NewClient(srv.URL, srv.Client(), staticToken("secret"))
	require.NoError(t, c.Get(ctx, "/", nil, nil))
	assert.Equal(t, "Bearer secret", got)

	// An empty token means anonymous: no header at all.
	c = NewClient(srv.URL, srv.Client(), staticToken(""))
	require.NoError(t, c.Get(ctx, "/", nil, nil))
	assert.Empty(t, got)

	c = NewClient(srv.URL, srv.Client(), nil)
	require.NoError(t, c.Get(ctx, "/", nil, nil))
	assert.Empty(t, got)
}

func TestClientPostEncodesJSON(t *testing.T) {
	t.Parallel()

	var contentType, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		body = string(buf)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), nil)
	var out struct {
		OK bool `json:"ok"`
	}
	err := c.Post(context.Background(), "/watched", map[string]interface{}{"episodeNumber": 3}, &out)
	require.NoError(t, err)
	assert.Equal(t, "application/json", contentType)
	assert.JSONEq(t, `{"episodeNumber":3}`, body)
	assert.True(t, out.OK)
}
