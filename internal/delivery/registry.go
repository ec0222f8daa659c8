// internal/delivery/registry.go
package delivery

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/user/wechatgram/internal/types"
)

// Handler delivers a message to the conversation identified by key.
type Handler func(ctx context.Context, key types.PeerKey, msg *types.Message) error

// Registry routes messages to the appropriate delivery handler based on
// peer key prefix (e.g. "wechat:", "telegram:").
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty delivery registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for peer keys starting with prefix.
func (r *Registry) Register(prefix string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[prefix] = handler
}

// RegisterAdapter routes keys under the adapter's name to its Send method.
func (r *Registry) RegisterAdapter(a types.Adapter) {
	r.Register(a.Name()+":", func(ctx context.Context, _ types.PeerKey, msg *types.Message) error {
		return a.Send(ctx, msg)
	})
}

// Deliver finds the handler with the longest prefix matching key and calls
// it. Returns an error if no handler is registered for the key.
func (r *Registry) Deliver(ctx context.Context, key types.PeerKey, msg *types.Message) error {
	r.mu.RLock()
	var (
		best    Handler
		bestLen = -1
	)
	for prefix, handler := range r.handlers {
		if len(prefix) > bestLen && strings.HasPrefix(string(key), prefix) {
			best, bestLen = handler, len(prefix)
		}
	}
	r.mu.RUnlock()
	if best == nil {
		return fmt.Errorf("no delivery handler for peer key: %s", key)
	}
	return best(ctx, key, msg)
}

// Has reports whether some handler would accept key.
func (r *Registry) Has(key types.PeerKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for prefix := range r.handlers {
		if strings.HasPrefix(string(key), prefix) {
			return true
		}
	}
	return false
}
