package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
)

const maxRemoteObjectSize = 16 * 1024 * 1024

// Remote is a client of an HTTP blob service:
//
//	GET    {base}/list?prefix=p   -> {"blobs": [{"pathname", "url", "size", "uploadedAt"}]}
//	GET    {base}/blob/{key}      -> raw content
//	PUT    {base}/blob/{key}      -> {"pathname", "url"}, X-Allow-Overwrite header, 409 if exists
//	DELETE {base}/blob/{key}      -> 200 or 204
//
// Missing keys are reported with 404. Requests are sent once, never retried.
type Remote struct {
	baseURL string
	token   string
	client  *http.Client
}

// RemoteParams defines remote blob service access
type RemoteParams struct {
	URL     string
	Token   string // bearer token, optional
	Timeout time.Duration
	Client  *http.Client // optional, overrides Timeout
}

// NewRemote makes a remote store client
func NewRemote(p RemoteParams) (*Remote, error) {
	u, err := url.Parse(p.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid store URL %q: %w", p.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme in store URL: %q", u.Scheme)
	}
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: p.Timeout}
	}
	return &Remote{baseURL: strings.TrimSuffix(p.URL, "/"), token: p.Token, client: client}, nil
}

type remoteListResponse struct {
	Blobs []Object `json:"blobs"`
}

// List requests objects with keys starting with prefix
func (r *Remote) List(ctx context.Context, prefix string) ([]Object, error) {
	resp, err := r.do(ctx, http.MethodGet, r.baseURL+"/list?prefix="+url.QueryEscape(prefix), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list prefix %q: %w", prefix, err)
	}
	defer r.closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to list prefix %q: unexpected status code: %d", prefix, resp.StatusCode)
	}
	var lr remoteListResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxRemoteObjectSize)).Decode(&lr); err != nil {
		return nil, fmt.Errorf("failed to parse list response: %w", err)
	}
	if lr.Blobs == nil {
		lr.Blobs = []Object{}
	}
	return lr.Blobs, nil
}

// Get downloads the object's content
func (r *Remote) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := r.do(ctx, http.MethodGet, r.objectURL(key), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer r.closeBody(resp)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
	default:
		return nil, fmt.Errorf("failed to get %s: unexpected status code: %d", key, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteObjectSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Put uploads the object
func (r *Remote) Put(ctx context.Context, key string, data []byte, opts PutOpts) (Object, error) {
	if err := validateKey(key); err != nil {
		return Object{}, err
	}
	headers := map[string]string{"X-Allow-Overwrite": "0"}
	if opts.AllowOverwrite {
		headers["X-Allow-Overwrite"] = "1"
	}
	if opts.ContentType != "" {
		headers["Content-Type"] = opts.ContentType
	}

	resp, err := r.do(ctx, http.MethodPut, r.objectURL(key), bytes.NewReader(data), headers)
	if err != nil {
		return Object{}, fmt.Errorf("failed to put %s: %w", key, err)
	}
	defer r.closeBody(resp)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict:
		return Object{}, fmt.Errorf("put %s: %w", key, ErrExists)
	default:
		return Object{}, fmt.Errorf("failed to put %s: unexpected status code: %d", key, resp.StatusCode)
	}

	obj := Object{Key: key, Size: int64(len(data)), UpdatedAt: time.Now()}
	var body Object
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&body); err != nil {
		log.Printf("[DEBUG] no object description in put response for %s: %v", key, err)
	}
	obj.Location = body.Location
	if obj.Location == "" {
		obj.Location = r.objectURL(key)
	}
	return obj, nil
}

// Delete removes the object
func (r *Remote) Delete(ctx context.Context, key string) error {
	resp, err := r.do(ctx, http.MethodDelete, r.objectURL(key), nil, nil)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	defer r.closeBody(resp)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("delete %s: %w", key, ErrNotFound)
	default:
		return fmt.Errorf("failed to delete %s: unexpected status code: %d", key, resp.StatusCode)
	}
}

func (r *Remote) do(ctx context.Context, method, u string, body io.Reader, headers map[string]string) (*http.Response, error) {
	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return r.client.Do(req)
}

func (r *Remote) objectURL(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return r.baseURL + "/blob/" + strings.Join(parts, "/")
}

func (r *Remote) closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		log.Printf("[WARN] failed to close response body: %v", err)
	}
}
