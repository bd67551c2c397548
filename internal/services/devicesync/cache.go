package devicesync

import (
	"encoding/json"
	"sync"
)

// stateCache holds the last payload seen on every topic.
type stateCache struct {
	mu     sync.RWMutex
	states map[string]any
}

func newStateCache() *stateCache {
	return &stateCache{states: make(map[string]any)}
}

// set stores v under topic and returns the number of distinct topics.
func (c *stateCache) set(topic string, v any) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[topic] = v
	return len(c.states)
}

func (c *stateCache) get(topic string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.states[topic]
	return v, ok
}

func (c *stateCache) snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.states))
	for k, v := range c.states {
		out[k] = v
	}
	return out
}

// decodePayload returns the JSON value of b, or b as a string when it is not JSON.
func decodePayload(b []byte) any {
	var v any
	if err := json.Unmarshal(b, &v); err == nil {
		return v
	}
	return string(b)
}
