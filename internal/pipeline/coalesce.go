package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Coalescer deduplicates identical generation requests. Concurrent callers
// with the same key share one execution, and a successful result is reused
// until its TTL expires. A zero TTL disables the result cache.
type Coalescer struct {
	group singleflight.Group
	ttl   time.Duration
	now   func() time.Time

	mu    sync.Mutex
	cache map[string]cached
}

type cached struct {
	result  *Result
	expires time.Time
}

// NewCoalescer creates a Coalescer holding results for ttl.
func NewCoalescer(ttl time.Duration) *Coalescer {
	return &Coalescer{ttl: ttl, now: time.Now, cache: make(map[string]cached)}
}

// Do runs fn once per key. shared reports whether the result came from
// another caller or from the cache. Errors are never cached. The context
// of the caller that started fn governs its execution.
func (c *Coalescer) Do(ctx context.Context, key string, fn func(context.Context) (*Result, error)) (res *Result, shared bool, err error) {
	if r, ok := c.lookup(key); ok {
		return r, true, nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		// A caller that lost the race may arrive after the winner stored
		// its result.
		if r, ok := c.lookup(key); ok {
			return r, nil
		}
		r, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, r)
		return r, nil
	})
	if err != nil {
		return nil, shared, err
	}
	return v.(*Result), shared, nil
}

// Forget drops any cached result for key.
func (c *Coalescer) Forget(key string) {
	c.mu.Lock()
	delete(c.cache, key)
	c.mu.Unlock()
	c.group.Forget(key)
}

func (c *Coalescer) lookup(key string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.cache[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.cache, key)
		return nil, false
	}
	return e.result, true
}

func (c *Coalescer) store(key string, r *Result) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.cache {
		if !now.Before(e.expires) {
			delete(c.cache, k)
		}
	}
	c.cache[key] = cached{result: r, expires: now.Add(c.ttl)}
}

// Fingerprint is the coalescing and checkpoint key of in: the hex SHA-256
// of its normalized request fields.
func Fingerprint(in Input) string {
	norm := struct {
		Subject        string `json:"subject"`
		Difficulty     string `json:"difficulty"`
		Context        string `json:"context"`
		ModelReference string `json:"model_reference"`
		MaxSections    int    `json:"max_sections"`
		Title          string `json:"title"`
		SystemPrompt   string `json:"system_prompt"`
	}{
		Subject:        strings.ToLower(strings.TrimSpace(in.Subject)),
		Difficulty:     strings.ToLower(strings.TrimSpace(in.Difficulty)),
		Context:        strings.TrimSpace(in.Context),
		ModelReference: strings.TrimSpace(in.ModelReference),
		MaxSections:    in.MaxSections,
	}
	if in.Custom != nil {
		norm.Title = strings.TrimSpace(in.Custom.Title)
		norm.SystemPrompt = in.Custom.SystemPrompt
	}

	// Marshalling a struct of strings and ints cannot fail.
	b, _ := json.Marshal(norm)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
