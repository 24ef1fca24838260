// Package localcache holds the to-do entries of a visitor who is not logged in.
// The whole sequence is read and written as one value; there are no partial updates.
package localcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redmonkez12/todo-app/internal/todo"
)

// Key is the storage key the entry sequence lives under
const Key = "todo-entries"

// ErrUnavailable is returned when no durable storage backs the cache
var ErrUnavailable = errors.New("local storage unavailable")

// Storage is a string key/value store scoped to one client
type Storage interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
}

// Cache reads and writes the guest entry sequence
type Cache struct {
	storage Storage
}

// New returns a cache over storage. A nil storage yields a cache whose reads
// report ErrUnavailable.
func New(storage Storage) *Cache {
	return &Cache{storage: storage}
}

// Read returns the stored sequence. The first read on empty storage
// initialises it to an empty sequence.
func (c *Cache) Read(ctx context.Context) ([]todo.Entry, error) {
	if c == nil || c.storage == nil {
		return nil, ErrUnavailable
	}

	raw, ok, err := c.storage.GetItem(ctx, Key)
	if err != nil {
		return nil, fmt.Errorf("failed to read local entries: %w", err)
	}

	if !ok || raw == "" {
		entries := []todo.Entry{}
		if err := c.Write(ctx, entries); err != nil {
			return nil, err
		}
		return entries, nil
	}

	var entries []todo.Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("failed to decode local entries: %w", err)
	}
	if entries == nil {
		entries = []todo.Entry{}
	}
	return entries, nil
}

// Write replaces the stored sequence in a single storage write
func (c *Cache) Write(ctx context.Context, entries []todo.Entry) error {
	if c == nil || c.storage == nil {
		return ErrUnavailable
	}
	if entries == nil {
		entries = []todo.Entry{}
	}

	b, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode local entries: %w", err)
	}
	if err := c.storage.SetItem(ctx, Key, string(b)); err != nil {
		return fmt.Errorf("failed to write local entries: %w", err)
	}
	return nil
}

// Clear empties the cache
func (c *Cache) Clear(ctx context.Context) error {
	return c.Write(ctx, []todo.Entry{})
}
