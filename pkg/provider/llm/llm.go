// Package llm defines the text-generation boundary of the voice pipeline.
//
// An Adapter turns a conversation prompt into one reply. Adapters are
// synchronous request/reply; turn pacing and per-agent rate limiting live in
// [Gate], which wraps any Adapter.
//
// Implementations must be safe for concurrent use.
package llm

import (
	"context"
	"sync"
	"time"

	"github.com/voxroom/voxroom/internal/fault"
)

// Role values for prompt messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of the prompt.
type Message struct {
	Role    string
	Content string
	// Name attributes a user turn to a specific room participant.
	Name string
}

// Request is one generation call.
type Request struct {
	// System is the persona prompt, prepended as the system message.
	System string

	// Messages is the conversation window, oldest first.
	Messages []Message

	// Temperature, when non-zero, overrides the backend default.
	Temperature float64

	// MaxTokens, when positive, bounds the reply length.
	MaxTokens int
}

// Usage is the token accounting of one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Reply is one generation result.
type Reply struct {
	Text  string
	Usage Usage
}

// Adapter is the text-generation backend.
type Adapter interface {
	// Generate produces one reply for the request. Backend failures are
	// classified as provider faults; ctx cancellation as cancelled.
	Generate(ctx context.Context, req Request) (*Reply, error)

	// Model returns the backend's model tag for logging and metrics.
	Model() string
}

// Gate wraps an Adapter with per-key minimum call spacing and aggregate
// token accounting. Keys are typically agent ids, so one chatty agent cannot
// starve the backend for the rest.
type Gate struct {
	adapter     Adapter
	minInterval time.Duration

	mu       sync.Mutex
	lastCall map[string]time.Time
	usage    Usage
}

// NewGate wraps adapter. minInterval <= 0 disables spacing.
func NewGate(adapter Adapter, minInterval time.Duration) *Gate {
	return &Gate{
		adapter:     adapter,
		minInterval: minInterval,
		lastCall:    make(map[string]time.Time),
	}
}

// Generate forwards to the wrapped adapter after checking the key's spacing.
// Calls inside the minimum interval fail with a rate-limited fault instead of
// queueing, so the caller can fall back to a canned reply.
func (g *Gate) Generate(ctx context.Context, key string, req Request) (*Reply, error) {
	if g.minInterval > 0 {
		g.mu.Lock()
		last, ok := g.lastCall[key]
		now := time.Now()
		if ok && now.Sub(last) < g.minInterval {
			g.mu.Unlock()
			return nil, fault.Errorf(fault.KindRateLimited, "llm: %s called again within %v", key, g.minInterval)
		}
		g.lastCall[key] = now
		g.mu.Unlock()
	}

	reply, err := g.adapter.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.usage.PromptTokens += reply.Usage.PromptTokens
	g.usage.CompletionTokens += reply.Usage.CompletionTokens
	g.usage.TotalTokens += reply.Usage.TotalTokens
	g.mu.Unlock()
	return reply, nil
}

// Model returns the wrapped adapter's model tag.
func (g *Gate) Model() string {
	return g.adapter.Model()
}

// Usage returns the aggregate token counts since creation.
func (g *Gate) Usage() Usage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.usage
}

// Forget drops the spacing state for key. Call when the keyed agent is
// deleted so the map does not grow without bound.
func (g *Gate) Forget(key string) {
	g.mu.Lock()
	delete(g.lastCall, key)
	g.mu.Unlock()
}

// EstimateTokens approximates the token count of a prompt. Roughly four
// characters per token plus per-message overhead; good enough for window
// trimming, not for billing.
func EstimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += (len(m.Content) + 3) / 4
		total += 4
	}
	return total
}
