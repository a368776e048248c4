package store

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRemote starts a blob service backed by the given store and returns a client for it
func newTestRemote(t *testing.T, backend Store) *Remote {
	t.Helper()
	ts := httptest.NewServer(blobServiceHandler(backend, ""))
	t.Cleanup(ts.Close)
	r, err := NewRemote(RemoteParams{URL: ts.URL + "/", Timeout: time.Second})
	require.NoError(t, err)
	return r
}

// blobServiceHandler emulates the remote blob service
func blobServiceHandler(backend Store, token string) http.Handler {
	mux := http.NewServeMux()
	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}
	mux.HandleFunc("GET /list", auth(func(w http.ResponseWriter, r *http.Request) {
		objs, err := backend.List(r.Context(), r.URL.Query().Get("prefix"))
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(remoteListResponse{Blobs: objs})
	}))
	mux.HandleFunc("GET /blob/{key...}", auth(func(w http.ResponseWriter, r *http.Request) {
		data, err := backend.Get(r.Context(), r.PathValue("key"))
		if errors.Is(err, ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(data)
	}))
	mux.HandleFunc("PUT /blob/{key...}", auth(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		obj, err := backend.Put(r.Context(), r.PathValue("key"), data,
			PutOpts{AllowOverwrite: r.Header.Get("X-Allow-Overwrite") == "1"})
		switch {
		case errors.Is(err, ErrExists):
			w.WriteHeader(http.StatusConflict)
		case err != nil:
			w.WriteHeader(http.StatusBadRequest)
		default:
			obj.Location = "https://blob.example.com/" + obj.Key
			_ = json.NewEncoder(w).Encode(obj)
		}
	}))
	mux.HandleFunc("DELETE /blob/{key...}", auth(func(w http.ResponseWriter, r *http.Request) {
		if err := backend.Delete(r.Context(), r.PathValue("key")); errors.Is(err, ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	return mux
}

func TestNewRemote(t *testing.T) {
	_, err := NewRemote(RemoteParams{URL: "ftp://example.com"})
	assert.Error(t, err)

	_, err = NewRemote(RemoteParams{URL: "://bad"})
	assert.Error(t, err)

	r, err := NewRemote(RemoteParams{URL: "https://blob.example.com/api/", Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "https://blob.example.com/api", r.baseURL)
	assert.Equal(t, "https://blob.example.com/api/blob/job-orders/job-order%201.json", r.objectURL("job-orders/job-order 1.json"))
}

func TestRemote_Token(t *testing.T) {
	backend := NewMemory()
	ts := httptest.NewServer(blobServiceHandler(backend, "secret"))
	defer ts.Close()

	t.Run("with token", func(t *testing.T) {
		r, err := NewRemote(RemoteParams{URL: ts.URL, Token: "secret", Timeout: time.Second})
		require.NoError(t, err)
		obj, err := r.Put(t.Context(), "job-orders/a.json", []byte("{}"), PutOpts{})
		require.NoError(t, err)
		assert.Equal(t, "https://blob.example.com/job-orders/a.json", obj.Location)
		objs, err := r.List(t.Context(), "job-orders/")
		require.NoError(t, err)
		assert.Len(t, objs, 1)
	})

	t.Run("without token", func(t *testing.T) {
		r, err := NewRemote(RemoteParams{URL: ts.URL, Timeout: time.Second})
		require.NoError(t, err)
		_, err = r.List(t.Context(), "job-orders/")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
		_, err = r.Get(t.Context(), "job-orders/a.json")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}

func TestRemote_ServerErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	r, err := NewRemote(RemoteParams{URL: ts.URL, Timeout: time.Second})
	require.NoError(t, err)

	_, err = r.List(t.Context(), "")
	assert.ErrorContains(t, err, "unexpected status code: 500")
	_, err = r.Get(t.Context(), "a.json")
	assert.ErrorContains(t, err, "unexpected status code: 500")
	_, err = r.Put(t.Context(), "a.json", []byte("{}"), PutOpts{})
	assert.ErrorContains(t, err, "unexpected status code: 500")
	err = r.Delete(t.Context(), "a.json")
	assert.ErrorContains(t, err, "unexpected status code: 500")
}

func TestRemote_BadListResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer ts.Close()

	r, err := NewRemote(RemoteParams{URL: ts.URL, Timeout: time.Second})
	require.NoError(t, err)
	_, err = r.List(t.Context(), "")
	assert.ErrorContains(t, err, "failed to parse list response")
}

func TestRemote_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	r, err := NewRemote(RemoteParams{URL: url, Timeout: time.Second})
	require.NoError(t, err)
	_, err = r.List(t.Context(), "")
	assert.Error(t, err)
}
