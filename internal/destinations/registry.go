package destinations

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/eventgatehq/eventgate-backend/internal/forward"
	"github.com/eventgatehq/eventgate-backend/internal/transform"
	"github.com/eventgatehq/eventgate-backend/pkg/logger"
)

const (
	minTimeout     = time.Second
	maxTimeout     = time.Minute
	defaultMethod  = "POST"
	defaultTimeout = 5 * time.Second
)

var (
	// ErrInvalidName rejects names outside [A-Za-z0-9_-] or longer than 100 runes.
	ErrInvalidName = errors.New("destination name must be 1-100 characters of letters, digits, underscore or dash")
	// ErrInvalidURL rejects anything that does not parse as an absolute http(s) URL.
	ErrInvalidURL = errors.New("destination url must be an absolute http or https URL")

	nameRx = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)
)

// Config describes one registration. EventTypes accepts the persisted shapes:
// the literal "*", a single event name, or a list of names.
type Config struct {
	URL             string
	Method          string
	ContentType     string
	Headers         map[string]string
	TimeoutMS       int
	SecretEncrypted string
	Retry           forward.RetryStrategy
	EventTypes      any
	Transform       transform.Spec
	Enabled         bool
}

// Registry is the live deliverable set the forwarder works from. Reads hand
// out name-sorted copies, so registration churn never races a fan-out in
// flight.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]forward.Entry
	logger  *logger.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logg *logger.Logger) *Registry {
	return &Registry{
		entries: make(map[string]forward.Entry),
		logger:  logg,
	}
}

// Register adds or replaces the named destination. The transform spec is
// compiled once here; delivery only ever calls the compiled func.
func (r *Registry) Register(name string, cfg Config) error {
	if !nameRx.MatchString(name) {
		return ErrInvalidName
	}
	if err := validateURL(cfg.URL); err != nil {
		return err
	}

	entry := forward.Entry{
		Target: forward.Target{
			Name:            name,
			URL:             cfg.URL,
			Method:          normalizeMethod(cfg.Method),
			Headers:         copyHeaders(cfg.Headers),
			ContentType:     cfg.ContentType,
			Timeout:         clampTimeout(cfg.TimeoutMS),
			SecretEncrypted: cfg.SecretEncrypted,
			Retry:           cfg.Retry,
		},
		EventTypes: NormalizeEventTypes(cfg.EventTypes),
		Transform:  transform.Safe(transform.Compile(cfg.Transform, r.logger), r.logger, name),
		Enabled:    cfg.Enabled,
	}

	r.mu.Lock()
	r.entries[name] = entry
	r.mu.Unlock()
	return nil
}

// Remove drops the named destination. Removing an unknown name is a no-op.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; !ok {
		return false
	}
	delete(r.entries, name)
	return true
}

// SetStatus flips delivery on or off without losing the registration.
func (r *Registry) SetStatus(name string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[name]
	if !ok {
		return false
	}
	entry.Enabled = enabled
	r.entries[name] = entry
	return true
}

// Snapshot returns a name-sorted copy of the current set.
func (r *Registry) Snapshot() []forward.Entry {
	r.mu.RLock()
	entries := make([]forward.Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Target.Name < entries[j].Target.Name
	})
	return entries
}

// Len reports the number of registered destinations, enabled or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// NormalizeEventTypes folds the accepted subscription shapes into a list.
// Nil, an empty list, and the bare wildcard all mean subscribe-to-everything.
func NormalizeEventTypes(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return []string{"*"}
	case string:
		if v == "" {
			return []string{"*"}
		}
		return []string{v}
	case []string:
		if len(v) == 0 {
			return []string{"*"}
		}
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return []string{"*"}
		}
		return out
	default:
		return []string{"*"}
	}
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

func normalizeMethod(method string) string {
	if method == "" {
		return defaultMethod
	}
	return method
}

func clampTimeout(ms int) time.Duration {
	if ms <= 0 {
		return defaultTimeout
	}
	timeout := time.Duration(ms) * time.Millisecond
	if timeout < minTimeout {
		return minTimeout
	}
	if timeout > maxTimeout {
		return maxTimeout
	}
	return timeout
}

func copyHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = v
	}
	return out
}
