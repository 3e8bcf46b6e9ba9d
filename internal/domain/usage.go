package domain

import "context"

type usageKey struct{}

// Usage accumulates embedding token consumption for one request.
// Handlers attach it to the context, the retriever records into it.
type Usage struct {
	PromptTokens int
	TotalTokens  int
	Calls        int
}

// WithUsage returns a context carrying a fresh usage collector.
func WithUsage(ctx context.Context) (context.Context, *Usage) {
	u := &Usage{}
	return context.WithValue(ctx, usageKey{}, u), u
}

// UsageFrom returns the collector stored in ctx, or nil.
func UsageFrom(ctx context.Context) *Usage {
	u, _ := ctx.Value(usageKey{}).(*Usage)
	return u
}

// Add records one embedding call. Safe on a nil receiver.
func (u *Usage) Add(prompt, total int) {
	if u == nil {
		return
	}
	u.PromptTokens += prompt
	u.TotalTokens += total
	u.Calls++
}
