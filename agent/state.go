package agent

import (
	"context"

	"github.com/tbxark/talkform/types"
)

// StateReadWriter keeps one State per session, routed by the key in the context.
type StateReadWriter interface {
	Read(ctx context.Context) (*State, error)
	Write(ctx context.Context, state *State) error
	Remove(ctx context.Context) error
}

type stateKeyContext struct{}

const defaultStateKey = "default"

// WithStateKey sets the session routing key, normally the sender id.
func WithStateKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, stateKeyContext{}, key)
}

func StateKeyFromContext(ctx context.Context) (string, bool) {
	value := ctx.Value(stateKeyContext{})
	if value == nil {
		return "", false
	}
	key, ok := value.(string)
	return key, ok
}

func stateKeyOrDefault(ctx context.Context) (string, bool) {
	key, ok := StateKeyFromContext(ctx)
	if ok && key != "" {
		return key, true
	}
	return defaultStateKey, true
}

// CacheStateReadWriter stores sessions in a Cache. Reading an unknown session yields an
// empty state.
type CacheStateReadWriter struct {
	store Store[*State]
}

func NewCacheStateReadWriter(core Cache[*State]) *CacheStateReadWriter {
	return &CacheStateReadWriter{store: NewStore(core, "agent:state", stateKeyOrDefault)}
}

func NewMemoryStateReadWriter() *CacheStateReadWriter {
	return NewCacheStateReadWriter(NewMemoryCache[*State]())
}

func (m *CacheStateReadWriter) Read(ctx context.Context) (*State, error) {
	state, ok, err := m.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !ok || state == nil {
		return &State{Slots: types.Slots{}}, nil
	}
	return &State{Slots: state.Slots.Clone(), LatestQuestion: state.LatestQuestion}, nil
}

func (m *CacheStateReadWriter) Write(ctx context.Context, state *State) error {
	if state == nil {
		return m.Remove(ctx)
	}
	return m.store.Set(ctx, &State{Slots: state.Slots.Clone(), LatestQuestion: state.LatestQuestion})
}

func (m *CacheStateReadWriter) Remove(ctx context.Context) error {
	return m.store.Del(ctx)
}

var _ StateReadWriter = (*CacheStateReadWriter)(nil)
