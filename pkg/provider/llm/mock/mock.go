// Package mock provides a test double for the llm.Adapter interface.
//
// Use Adapter in unit tests to verify the prompts the core sends and to feed
// controlled replies without a live backend. All fields are safe to set
// before calling any method; mutating them during a concurrent call is the
// caller's responsibility.
//
// Example:
//
//	a := &mock.Adapter{Reply: &llm.Reply{Text: "Hello!"}}
//	reply, err := a.Generate(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/voxroom/voxroom/pkg/provider/llm"
)

// GenerateCall records a single invocation of Generate.
type GenerateCall struct {
	// Ctx is the context passed to Generate.
	Ctx context.Context
	// Req is the Request passed to Generate.
	Req llm.Request
}

// Adapter is a mock implementation of llm.Adapter. Zero values for response
// fields cause methods to return zero values and nil errors. Set Err to
// inject errors.
type Adapter struct {
	mu sync.Mutex

	// Reply is returned by Generate. May be nil (returns nil, nil).
	Reply *llm.Reply

	// Err, if non-nil, is returned as the error from Generate.
	Err error

	// ModelTag is returned by Model. Empty selects "mock".
	ModelTag string

	// GenerateFunc, if non-nil, overrides Reply/Err entirely.
	GenerateFunc func(ctx context.Context, req llm.Request) (*llm.Reply, error)

	// GenerateCalls records every invocation of Generate in order.
	GenerateCalls []GenerateCall
}

// Generate records the call and returns Reply, Err (or delegates to
// GenerateFunc when set).
func (a *Adapter) Generate(ctx context.Context, req llm.Request) (*llm.Reply, error) {
	a.mu.Lock()
	a.GenerateCalls = append(a.GenerateCalls, GenerateCall{Ctx: ctx, Req: req})
	fn := a.GenerateFunc
	reply, err := a.Reply, a.Err
	a.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return reply, err
}

// Model returns ModelTag, defaulting to "mock".
func (a *Adapter) Model() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ModelTag == "" {
		return "mock"
	}
	return a.ModelTag
}

// Calls returns a copy of the recorded Generate invocations.
func (a *Adapter) Calls() []GenerateCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]GenerateCall, len(a.GenerateCalls))
	copy(out, a.GenerateCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (a *Adapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.GenerateCalls = nil
}

// Ensure Adapter implements llm.Adapter at compile time.
var _ llm.Adapter = (*Adapter)(nil)
