package bot

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tbxark/talkform/agent"
	"github.com/tbxark/talkform/form"
	"github.com/tbxark/talkform/query"
	"github.com/tbxark/talkform/types"
)

// CachedExecutor remembers successful query results keyed by form and slot values.
type CachedExecutor struct {
	next  query.Executor
	cache agent.Cache[*query.Result]
}

// NewCachedExecutor keeps up to size results; size <= 0 keeps all of them.
func NewCachedExecutor(next query.Executor, size int) *CachedExecutor {
	return &CachedExecutor{next: next, cache: agent.NewLRUCache[*query.Result](size)}
}

func (c *CachedExecutor) Execute(ctx context.Context, spec *form.Spec, slots types.Slots) (*query.Result, error) {
	key := cacheKey(spec, slots)
	if res, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		slog.Debug("Query cache hit", "form", spec.Name)
		return res, nil
	}
	res, err := c.next.Execute(ctx, spec, slots)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, res); err != nil {
		slog.Warn("Query cache write failed", "form", spec.Name, "error", err)
	}
	return res, nil
}

func cacheKey(spec *form.Spec, slots types.Slots) string {
	var b strings.Builder
	b.WriteString(spec.Name)
	for _, name := range spec.Slots() {
		b.WriteByte('\x1f')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(slots.String(name))
	}
	return b.String()
}
