// Package cache stores generation responses on disk so that re-running a
// tailoring run with identical prompts does not call the provider again.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	clog "github.com/xrsl/tailor/pkg/log"
)

// Key computes a deterministic SHA256 hash of a generation request.
// Order is critical: model, then prompt.
func Key(model, prompt string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	return hex.EncodeToString(h.Sum(nil))
}

// DefaultDir returns the per-user response cache directory.
func DefaultDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "tailor", "responses")
	}
	return filepath.Join(os.ExpandEnv("$HOME"), ".cache", "tailor", "responses")
}

type entry struct {
	Model    string    `json:"model"`
	Response string    `json:"response"`
	Created  time.Time `json:"created"`
}

// Store is a directory of cached responses.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the path to the cache file for a given key
func (s *Store) Path(key string) string {
	return filepath.Join(s.dir, key[:2], key+".json")
}

// Read returns the cached response for key. A missing file is reported
// as an error satisfying os.IsNotExist.
func (s *Store) Read(key string) (string, error) {
	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		return "", err
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return "", fmt.Errorf("failed to parse cache: %w", err)
	}
	return e.Response, nil
}

// Write stores response under key, replacing any previous entry.
func (s *Store) Write(key, model, response string) error {
	path := s.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}
	data, err := json.MarshalIndent(entry{Model: model, Response: response, Created: time.Now().UTC()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Exists checks if cache exists for a key
func (s *Store) Exists(key string) bool {
	_, err := os.Stat(s.Path(key))
	return err == nil
}

// Generator is the capability cached by Wrap.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// Client serves responses from the store and falls through to the wrapped
// generator on a miss. Errors are never cached.
type Client struct {
	next  Generator
	model string
	store *Store
}

// Wrap returns a caching client around next. model is part of the key so
// that switching providers invalidates earlier responses.
func Wrap(next Generator, model string, store *Store) *Client {
	return &Client{next: next, model: model, store: store}
}

func (c *Client) GenerateContent(ctx context.Context, prompt string) (string, error) {
	key := Key(c.model, prompt)
	if resp, err := c.store.Read(key); err == nil {
		clog.Debug("cache hit", "key", key[:12], "model", c.model)
		return resp, nil
	} else if !os.IsNotExist(err) {
		clog.Warn("ignoring unreadable cache entry", "key", key[:12], "error", err)
	}

	resp, err := c.next.GenerateContent(ctx, prompt)
	if err != nil {
		return "", err
	}
	if err := c.store.Write(key, c.model, resp); err != nil {
		clog.Warn("failed to write cache entry", "key", key[:12], "error", err)
	}
	return resp, nil
}

// GenerateContentWithSystem caches like GenerateContent, keyed on both
// prompts. Generators without system prompt support get the two prompts
// joined.
func (c *Client) GenerateContentWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	key := Key(c.model, systemPrompt+"\x00"+userPrompt)
	if resp, err := c.store.Read(key); err == nil {
		clog.Debug("cache hit", "key", key[:12], "model", c.model)
		return resp, nil
	}

	var resp string
	var err error
	if sg, ok := c.next.(interface {
		GenerateContentWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	}); ok {
		resp, err = sg.GenerateContentWithSystem(ctx, systemPrompt, userPrompt)
	} else {
		resp, err = c.next.GenerateContent(ctx, systemPrompt+"\n\n"+userPrompt)
	}
	if err != nil {
		return "", err
	}
	if err := c.store.Write(key, c.model, resp); err != nil {
		clog.Warn("failed to write cache entry", "key", key[:12], "error", err)
	}
	return resp, nil
}

// Close closes the wrapped generator when it supports it.
func (c *Client) Close() {
	if closer, ok := c.next.(interface{ Close() }); ok {
		closer.Close()
	}
}
