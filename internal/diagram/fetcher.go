package diagram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rananth45/wokwi-autoscript/internal/apperr"
	"github.com/rananth45/wokwi-autoscript/internal/ctxlog"
	"github.com/rananth45/wokwi-autoscript/internal/reference"
	"github.com/rananth45/wokwi-autoscript/internal/safeio"
)

// DefaultEndpoint is the project archive download. {id} is replaced by the
// project ID.
const DefaultEndpoint = "https://wokwi.com/api/projects/{id}/zip"

const defaultUserAgent = "wokwi-autoscript/1 (+https://wokwi.com)"

// Options tunes a Fetcher. Zero fields take the defaults.
type Options struct {
	Endpoint       string
	MaxAttempts    int
	AttemptTimeout time.Duration
	Backoff        time.Duration
	MaxBackoff     time.Duration
	UserAgent      string
}

// DefaultOptions returns the stock retry policy: four attempts of at most
// 30s each, backing off from 500ms up to 8s.
func DefaultOptions() Options {
	return Options{
		Endpoint:       DefaultEndpoint,
		MaxAttempts:    4,
		AttemptTimeout: 30 * time.Second,
		Backoff:        500 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
		UserAgent:      defaultUserAgent,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Endpoint == "" {
		o.Endpoint = d.Endpoint
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = d.AttemptTimeout
	}
	if o.Backoff <= 0 {
		o.Backoff = d.Backoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = d.MaxBackoff
	}
	if o.UserAgent == "" {
		o.UserAgent = d.UserAgent
	}
	return o
}

// Fetcher downloads diagrams.
type Fetcher struct {
	opts   Options
	client *http.Client
	// Sleep waits between attempts; tests replace it.
	Sleep Sleeper
}

// NewFetcher returns a Fetcher. A nil client uses a dedicated client with no
// overall timeout; each attempt is bounded by Options.AttemptTimeout.
func NewFetcher(opts Options, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{opts: opts.withDefaults(), client: client, Sleep: sleepContext}
}

// Options returns the effective options.
func (f *Fetcher) Options() Options { return f.opts }

// Fetch downloads and validates the diagram of ref. Transient failures are
// retried with backoff; client errors and invalid bodies fail at once.
func (f *Fetcher) Fetch(ctx context.Context, ref reference.ProjectReference) (*Document, error) {
	const op = "diagram: fetch"
	log := ctxlog.FromContext(ctx)
	endpoint := strings.ReplaceAll(f.opts.Endpoint, "{id}", url.PathEscape(ref.ID))
	sleep := f.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var (
		body   []byte
		status int
	)
	attempts, err := retry(ctx, f.opts.MaxAttempts, f.opts.Backoff, f.opts.MaxBackoff, sleep, func(ctx context.Context) error {
		b, code, err := f.attempt(ctx, endpoint, ref)
		status = code
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if apperr.KindOf(err) != apperr.KindUnknown {
			return nil, err
		}
		e := apperr.Wrap(apperr.KindNetwork, op, err).WithRef(ref.ID)
		e.Status = status
		e.Attempts = attempts
		return nil, e
	}
	log.Debug("diagram: downloaded", "id", ref.ID, "bytes", len(body), "attempts", attempts)
	return Decode(ref.ID, body)
}

// attempt performs one request under its own timeout.
func (f *Fetcher) attempt(ctx context.Context, endpoint string, ref reference.ProjectReference) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/zip, application/json;q=0.9, */*;q=0.5")
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Referer", ref.PageURL())

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, apperr.Transient(fmt.Errorf("request %s: %w", endpoint, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		err := fmt.Errorf("GET %s: %s", endpoint, resp.Status)
		if transientStatus(resp.StatusCode) {
			return nil, resp.StatusCode, apperr.Transient(err)
		}
		return nil, resp.StatusCode, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, resp.StatusCode, apperr.Transient(fmt.Errorf("read body: %w", err))
	}
	if len(body) > MaxBodyBytes {
		e := apperr.New(apperr.KindValidation, "diagram: fetch", fmt.Sprintf("response exceeds %d bytes", MaxBodyBytes)).WithRef(ref.ID)
		e.Status = resp.StatusCode
		return nil, resp.StatusCode, e
	}
	return body, resp.StatusCode, nil
}

// transientStatus reports statuses worth retrying: request timeout, rate
// limiting and server errors.
func transientStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

// Save writes doc to path atomically and records the path on doc.
func (f *Fetcher) Save(ctx context.Context, doc *Document, path string) error {
	if err := safeio.WriteFileAtomic(path, doc.Raw, 0o644); err != nil {
		return apperr.Wrap(apperr.KindIO, "diagram: save", err).WithPath(path)
	}
	doc.Path = path
	ctxlog.FromContext(ctx).Debug("diagram: saved", "path", path, "parts", doc.Parts, "connections", doc.Connections)
	return nil
}
