package event

import (
	"strings"
	"sync"

	"github.com/crewdesk/backend/internal/domain/shared"
)

// HandlerRegistry maps event types to subscribed handlers.
// A subscription may name an exact type ("job.completed"), a prefix
// pattern ("job.*"), or nothing at all to receive every event.
type HandlerRegistry struct {
	mu       sync.RWMutex
	exact    map[string][]shared.EventHandler
	prefixes map[string][]shared.EventHandler
	wildcard []shared.EventHandler
}

// NewHandlerRegistry creates an empty registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		exact:    make(map[string][]shared.EventHandler),
		prefixes: make(map[string][]shared.EventHandler),
	}
}

// Register adds handler for the given patterns
func (r *HandlerRegistry) Register(handler shared.EventHandler, patterns ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(patterns) == 0 {
		r.wildcard = append(r.wildcard, handler)
		return
	}
	for _, p := range patterns {
		switch {
		case p == "*":
			r.wildcard = append(r.wildcard, handler)
		case strings.HasSuffix(p, ".*"):
			prefix := strings.TrimSuffix(p, "*")
			r.prefixes[prefix] = append(r.prefixes[prefix], handler)
		default:
			r.exact[p] = append(r.exact[p], handler)
		}
	}
}

// Unregister removes handler from every pattern it was registered under
func (r *HandlerRegistry) Unregister(handler shared.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.wildcard = removeHandler(r.wildcard, handler)
	for _, m := range []map[string][]shared.EventHandler{r.exact, r.prefixes} {
		for key, hs := range m {
			if rest := removeHandler(hs, handler); len(rest) > 0 {
				m[key] = rest
			} else {
				delete(m, key)
			}
		}
	}
}

// GetHandlers returns the handlers interested in eventType, each at most once
func (r *HandlerRegistry) GetHandlers(eventType string) []shared.EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]shared.EventHandler, 0, len(r.exact[eventType])+len(r.wildcard))
	seen := make(map[shared.EventHandler]struct{})
	add := func(hs []shared.EventHandler) {
		for _, h := range hs {
			if _, dup := seen[h]; dup {
				continue
			}
			seen[h] = struct{}{}
			result = append(result, h)
		}
	}

	add(r.exact[eventType])
	for prefix, hs := range r.prefixes {
		if strings.HasPrefix(eventType, prefix) {
			add(hs)
		}
	}
	add(r.wildcard)
	return result
}

// Len returns the number of distinct registered handlers
func (r *HandlerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[shared.EventHandler]struct{})
	for _, h := range r.wildcard {
		seen[h] = struct{}{}
	}
	for _, m := range []map[string][]shared.EventHandler{r.exact, r.prefixes} {
		for _, hs := range m {
			for _, h := range hs {
				seen[h] = struct{}{}
			}
		}
	}
	return len(seen)
}

func removeHandler(handlers []shared.EventHandler, target shared.EventHandler) []shared.EventHandler {
	result := make([]shared.EventHandler, 0, len(handlers))
	for _, h := range handlers {
		if h != target {
			result = append(result, h)
		}
	}
	return result
}
