package notify

import (
	"context"
	"fmt"
	"sync"
)

// MemoryPublisher records events for inspection in tests.
type MemoryPublisher struct {
	mu     sync.RWMutex
	events []Completion
}

// NewMemory returns an empty in-memory publisher.
func NewMemory() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish records the event and returns a pseudo ID.
func (p *MemoryPublisher) Publish(_ context.Context, event Completion) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return fmt.Sprintf("memory-%d", len(p.events)), nil
}

// Events returns the recorded completions.
func (p *MemoryPublisher) Events() []Completion {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Completion, len(p.events))
	copy(out, p.events)
	return out
}
