package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/diarysync/internal/client/models"
	"github.com/dmitrijs2005/diarysync/internal/logging"
)

// Change log page size bounds accepted by the server.
const (
	DefaultChangeLimit = 100
	MaxChangeLimit     = 1000
)

// HeaderClientID carries the per-install client identity.
const HeaderClientID = "X-Client-ID"

// TokenSource supplies the bearer credential for outgoing requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// HTTPClient is the REST client of the journal API.
type HTTPClient struct {
	baseURL  *url.URL
	tokens   TokenSource
	hc       *http.Client
	clientID string
	log      logging.Logger
}

type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying http.Client. Its transport is used
// as is, without rate limiting.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.hc = hc }
}

// WithRateLimit limits outgoing requests to rps with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *HTTPClient) {
		c.hc.Transport = newRateLimitedTransport(c.hc.Transport, rps, burst)
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) { c.hc.Timeout = d }
}

func WithClientID(id string) Option {
	return func(c *HTTPClient) { c.clientID = id }
}

func WithLogger(l logging.Logger) Option {
	return func(c *HTTPClient) { c.log = l }
}

// NewHTTPClient returns a client for the API rooted at baseURL.
func NewHTTPClient(baseURL string, tokens TokenSource, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid API endpoint %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API endpoint %q: scheme and host are required", baseURL)
	}

	c := &HTTPClient{
		baseURL: u,
		tokens:  tokens,
		hc:      &http.Client{Transport: http.DefaultTransport},
		log:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *HTTPClient) endpoint(p string, q url.Values) string {
	u := *c.baseURL
	u.Path = path.Join(u.Path, p)
	if strings.HasSuffix(p, "/") {
		u.Path += "/"
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *HTTPClient) newRequest(ctx context.Context, method, p string, q url.Values, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(p, q), body)
	if err != nil {
		return nil, fmt.Errorf("constructing http request: %w", err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrUnauthorized
	}
	req.Header.Set("Authorization", "Bearer "+token)

	if c.clientID != "" {
		req.Header.Set(HeaderClientID, c.clientID)
	}
	return req, nil
}

// do sends req and converts transport failures and error statuses into the
// client error taxonomy. On success the caller owns the response body.
func (c *HTTPClient) do(req *http.Request) (*http.Response, error) {
	op := req.Method + " " + req.URL.Path
	c.log.Debug(req.Context(), "http request", "op", op)

	res, err := c.hc.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	if err := checkResponse(res); err != nil {
		res.Body.Close()
		return nil, err
	}
	return res, nil
}

func checkResponse(res *http.Response) error {
	if res.StatusCode < 400 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
	msg := strings.TrimSpace(string(body))

	switch {
	case res.StatusCode == http.StatusUnauthorized:
		if msg == "" {
			return ErrUnauthorized
		}
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case res.StatusCode >= 500:
		return &ServerError{StatusCode: res.StatusCode, Message: msg}
	default:
		return &ClientError{StatusCode: res.StatusCode, Message: msg}
	}
}

func decodeJSON(res *http.Response, v any) error {
	defer res.Body.Close()
	if err := json.NewDecoder(res.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s response: %w", res.Request.URL.Path, err)
	}
	return nil
}

// GetChanges fetches one page of the change log after since. limit is
// clamped to 1..MaxChangeLimit, with 0 meaning DefaultChangeLimit.
func (c *HTTPClient) GetChanges(ctx context.Context, since int64, limit int) (*models.ChangePage, error) {
	switch {
	case limit <= 0:
		limit = DefaultChangeLimit
	case limit > MaxChangeLimit:
		limit = MaxChangeLimit
	}

	q := url.Values{}
	q.Set("since", strconv.FormatInt(since, 10))
	q.Set("limit", strconv.Itoa(limit))

	req, err := c.newRequest(ctx, http.MethodGet, "/sync/changes", q, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("pulling changes since %d: %w", since, err)
	}

	var page models.ChangePage
	if err := decodeJSON(res, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// PutEntry upserts an entry and returns the stored copy with navigation
// pointers.
func (c *HTTPClient) PutEntry(ctx context.Context, e models.EntrySnapshot) (*models.StoredEntry, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding entry: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPut, "/items", nil, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("saving entry %s: %w", e.Date, err)
	}

	var stored models.StoredEntry
	if err := decodeJSON(res, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// DeleteEntry removes the entry for date. A 404 counts as success.
func (c *HTTPClient) DeleteEntry(ctx context.Context, date string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/items/"+url.PathEscape(date), nil, nil)
	if err != nil {
		return err
	}
	res, err := c.do(req)
	if IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting entry %s: %w", date, err)
	}
	res.Body.Close()
	return nil
}

// DownloadAsset streams the asset body. The caller must close it.
func (c *HTTPClient) DownloadAsset(ctx context.Context, filename string) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/assets/"+url.PathEscape(filename), nil, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", filename, err)
	}
	return res.Body, nil
}

// UploadAsset posts r as multipart field "asset" and returns the filename
// the server assigned.
func (c *HTTPClient) UploadAsset(ctx context.Context, name string, r io.Reader) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("asset", name)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/assets", nil, pr)
	if err != nil {
		pr.CloseWithError(err)
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	res, err := c.do(req)
	if err != nil {
		pr.CloseWithError(err)
		return "", fmt.Errorf("uploading %s: %w", name, err)
	}
	defer res.Body.Close()

	b, err := io.ReadAll(io.LimitReader(res.Body, 1<<10))
	if err != nil {
		return "", &NetworkError{Op: "POST /assets", Err: err}
	}
	assigned := strings.TrimSpace(string(b))
	if assigned == "" {
		return "", errors.New("upload response carried no filename")
	}
	return assigned, nil
}

// Ping reports whether the server answers at all. Any HTTP status counts
// as reachable; only transport failures produce an error.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.endpoint("/", nil), nil)
	if err != nil {
		return err
	}
	res, err := c.hc.Do(req)
	if err != nil {
		return &NetworkError{Op: "HEAD /", Err: err}
	}
	res.Body.Close()
	return nil
}
