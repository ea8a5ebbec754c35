package forward

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/eventgatehq/eventgate-backend/internal/transform"
	"github.com/eventgatehq/eventgate-backend/pkg/config"
	"github.com/eventgatehq/eventgate-backend/pkg/crypto"
	"github.com/eventgatehq/eventgate-backend/pkg/logger"
	"github.com/eventgatehq/eventgate-backend/pkg/metrics"
)

const (
	headerContentType = "Content-Type"

	defaultTimeout      = 5 * time.Second
	defaultBackoff      = time.Second
	maxDeliveryAttempts = 3
	maxResponseBytes    = 64 * 1024
)

var (
	errRegistryRequired = errors.New("forward registry is required")
	errCipherRequired   = errors.New("forward cipher is required")
	errLoggerRequired   = errors.New("forward logger is required")
)

// Result reports the outcome of one delivery against a single destination.
type Result struct {
	Destination string `json:"destination"`
	Success     bool   `json:"success"`
	StatusCode  int    `json:"statusCode,omitempty"`
	Response    any    `json:"response,omitempty"`
	Error       string `json:"error,omitempty"`
}

// RetryStrategy bounds in-process resend behavior for one target.
type RetryStrategy struct {
	MaxAttempts int
	BackoffMS   int
}

// Target is everything the send path needs to reach one endpoint.
type Target struct {
	Name            string
	URL             string
	Method          string
	Headers         map[string]string
	ContentType     string
	Timeout         time.Duration
	SecretEncrypted string
	Retry           RetryStrategy
}

// Entry pairs a deliverable target with its subscription filter and compiled
// transform.
type Entry struct {
	Target     Target
	EventTypes []string
	Transform  transform.Func
	Enabled    bool
}

// Registry yields the current deliverable set. Snapshots are name-sorted
// copies, safe to iterate while registrations change underneath.
type Registry interface {
	Snapshot() []Entry
}

// Forwarder fans events out to subscribed destinations and exposes the
// single-target send path used by routing and test deliveries.
type Forwarder struct {
	registry   Registry
	cipher     *crypto.Cipher
	metrics    *metrics.DeliveryMetrics
	logger     *logger.Logger
	client     *http.Client
	timeoutCap time.Duration
}

// New wires the forwarder. Metrics may be nil; everything else is required.
func New(registry Registry, cipher *crypto.Cipher, cfg config.ForwardConfig, m *metrics.DeliveryMetrics, logg *logger.Logger) (*Forwarder, error) {
	if registry == nil {
		return nil, errRegistryRequired
	}
	if cipher == nil {
		return nil, errCipherRequired
	}
	if logg == nil {
		return nil, errLoggerRequired
	}

	timeoutCap := cfg.TimeoutCap
	if timeoutCap <= 0 {
		timeoutCap = time.Minute
	}

	return &Forwarder{
		registry:   registry,
		cipher:     cipher,
		metrics:    m,
		logger:     logg,
		client:     &http.Client{},
		timeoutCap: timeoutCap,
	}, nil
}

// ProcessEvent delivers the event to every enabled destination subscribed to
// its name. Deliveries run concurrently; results come back in snapshot order.
func (f *Forwarder) ProcessEvent(ctx context.Context, event transform.Event) []Result {
	ctx = f.logger.WithEventID(ctx, event.ID)

	matched := make([]Entry, 0)
	for _, entry := range f.registry.Snapshot() {
		if !entry.Enabled {
			continue
		}
		if !subscribed(entry.EventTypes, event.EventName) {
			continue
		}
		matched = append(matched, entry)
	}
	if len(matched) == 0 {
		f.logger.Debug(ctx, "no destinations subscribed")
		return []Result{}
	}

	results := make([]Result, len(matched))
	var wg sync.WaitGroup
	for i, entry := range matched {
		wg.Add(1)
		go func(i int, entry Entry) {
			defer wg.Done()
			results[i] = f.Deliver(ctx, entry, event)
		}(i, entry)
	}
	wg.Wait()
	return results
}

// Deliver transforms and sends a single entry. A transform error never skips
// the send; the minimal fallback payload goes out instead.
func (f *Forwarder) Deliver(ctx context.Context, entry Entry, event transform.Event) Result {
	payload := any(event)
	if entry.Transform != nil {
		transformed, err := entry.Transform(event)
		if err != nil {
			f.logger.Error(ctx, "transform failed, sending fallback payload", err)
			transformed = transform.FallbackPayload(event, err.Error())
		}
		payload = transformed
	}
	return f.SendPayload(ctx, entry.Target, payload)
}

// SendPayload encodes, signs, and sends an already-transformed payload to a
// single target.
func (f *Forwarder) SendPayload(ctx context.Context, target Target, payload any) Result {
	ctx = f.logger.WithDestination(ctx, target.Name)
	start := time.Now()

	result := f.send(ctx, target, payload)

	f.metrics.ObserveDuration(target.Name, time.Since(start))
	if result.Success {
		f.metrics.IncSuccess(target.Name)
	} else {
		f.metrics.IncFailure(target.Name)
	}
	return result
}

func (f *Forwarder) send(ctx context.Context, target Target, payload any) Result {
	result := Result{Destination: target.Name}

	header := buildHeaders(target)
	body, overrideType, err := encodeBody(payload, header.Get(headerContentType))
	if err != nil {
		f.logger.Error(ctx, "encode delivery payload", err)
		result.Error = err.Error()
		return result
	}
	if overrideType != "" {
		header.Set(headerContentType, overrideType)
	}

	f.signRequest(ctx, target, header, body)

	method := strings.ToUpper(strings.TrimSpace(target.Method))
	if method == "" {
		method = http.MethodPost
	}

	out := f.exchange(ctx, target, method, header, body)
	if out.err != nil {
		f.logger.Error(ctx, "delivery failed", out.err)
		result.Error = out.err.Error()
		return result
	}

	result.StatusCode = out.status
	if out.status >= http.StatusOK && out.status < http.StatusMultipleChoices {
		result.Success = true
		result.Response = parseResponseBody(out.body)
		f.logger.Debug(ctx, "delivery succeeded")
		return result
	}

	result.Error = fmt.Sprintf("destination responded %d", out.status)
	f.logger.Warn(f.logger.WithField(ctx, "status", out.status), "delivery rejected")
	return result
}

// signRequest attaches the HMAC signature when the target's secret decrypts.
// A missing or undecryptable secret downgrades to an unsigned send.
func (f *Forwarder) signRequest(ctx context.Context, target Target, header http.Header, body []byte) {
	if target.SecretEncrypted == "" {
		return
	}
	secret, err := f.cipher.Decrypt(target.SecretEncrypted)
	if err != nil {
		f.logger.Warn(f.logger.WithField(ctx, "reason", err.Error()), "signing secret unavailable, delivering unsigned")
		return
	}
	header.Set(SignatureHeader, signBody(secret, body))
}

type attemptOutcome struct {
	status int
	body   []byte
	err    error
}

// exchange runs the HTTP call under the target's retry strategy. Only
// transport errors and 5xx responses trigger a resend.
func (f *Forwarder) exchange(ctx context.Context, target Target, method string, header http.Header, body []byte) attemptOutcome {
	attempts := target.Retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	if attempts > maxDeliveryAttempts {
		attempts = maxDeliveryAttempts
	}
	backoffStep := time.Duration(target.Retry.BackoffMS) * time.Millisecond
	if backoffStep <= 0 {
		backoffStep = defaultBackoff
	}
	timeout := f.timeoutFor(target)

	var last attemptOutcome
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(backoffStep))
	_ = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		last = f.attempt(attemptCtx, target, method, header, body)
		if last.err != nil {
			return retry.RetryableError(last.err)
		}
		if last.status >= http.StatusInternalServerError {
			return retry.RetryableError(fmt.Errorf("destination responded %d", last.status))
		}
		return nil
	})
	return last
}

func (f *Forwarder) attempt(ctx context.Context, target Target, method string, header http.Header, body []byte) attemptOutcome {
	req, err := http.NewRequestWithContext(ctx, method, target.URL, bytes.NewReader(body))
	if err != nil {
		return attemptOutcome{err: fmt.Errorf("build request: %w", err)}
	}
	req.Header = header.Clone()

	resp, err := f.client.Do(req)
	if err != nil {
		return attemptOutcome{err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	return attemptOutcome{status: resp.StatusCode, body: respBody}
}

func (f *Forwarder) timeoutFor(target Target) time.Duration {
	timeout := target.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if timeout > f.timeoutCap {
		timeout = f.timeoutCap
	}
	return timeout
}

// buildHeaders starts from the target's content type and lets config headers
// override it, matching keys case-insensitively.
func buildHeaders(target Target) http.Header {
	header := http.Header{}
	contentType := strings.TrimSpace(target.ContentType)
	if contentType == "" {
		contentType = contentTypeJSON
	}
	header.Set(headerContentType, contentType)
	for key, value := range target.Headers {
		header.Set(key, value)
	}
	return header
}

// subscribed reports whether types covers the event name. The wildcard is the
// literal "*" element; forwarder subscriptions never glob.
func subscribed(types []string, eventName string) bool {
	for _, t := range types {
		if t == "*" || t == eventName {
			return true
		}
	}
	return false
}
