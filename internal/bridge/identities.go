// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bridge

import (
	"slices"
	"sync"
	"time"

	"github.com/holomush/gatekeeper/internal/admission"
)

// Identity is the platform identity the host reported for a session.
type Identity struct {
	License     string   `json:"license"`
	Identifiers []string `json:"identifiers"`
	Tokens      []string `json:"tokens"`
	Name        string   `json:"name"`
	Lang        string   `json:"lang"`
}

type identityEntry struct {
	identity Identity
	storedAt time.Time
}

// IdentityCache holds identity payloads until their session drops.
type IdentityCache struct {
	mu      sync.RWMutex
	entries map[admission.SessionID]identityEntry
	now     func() time.Time
}

var _ admission.IdentityProvider = (*IdentityCache)(nil)

// NewIdentityCache creates an empty cache.
func NewIdentityCache() *IdentityCache {
	return &IdentityCache{
		entries: make(map[admission.SessionID]identityEntry),
		now:     time.Now,
	}
}

// Put stores or replaces the identity for id.
func (c *IdentityCache) Put(id admission.SessionID, ident Identity) {
	ident.Identifiers = slices.Clone(ident.Identifiers)
	ident.Tokens = slices.Clone(ident.Tokens)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = identityEntry{identity: ident, storedAt: c.now()}
}

// Get returns the identity for id.
func (c *IdentityCache) Get(id admission.SessionID) (Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e.identity, ok
}

// Move rekeys the identity of oldID to newID. It is a no-op when oldID is
// unknown or newID already has an identity.
func (c *IdentityCache) Move(oldID, newID admission.SessionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[oldID]
	if !ok {
		return
	}
	delete(c.entries, oldID)
	if _, exists := c.entries[newID]; !exists {
		c.entries[newID] = e
	}
}

// Forget removes the identity for id.
func (c *IdentityCache) Forget(id admission.SessionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// Prune removes entries older than minAge for which keep returns false.
// It returns the number of removed entries.
func (c *IdentityCache) Prune(minAge time.Duration, keep func(admission.SessionID) bool) int {
	cutoff := c.now().Add(-minAge)

	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id, e := range c.entries {
		if e.storedAt.After(cutoff) || keep(id) {
			continue
		}
		delete(c.entries, id)
		removed++
	}
	return removed
}

// Len returns the number of cached identities.
func (c *IdentityCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Lang returns the preferred language reported for id, or "".
func (c *IdentityCache) Lang(id admission.SessionID) string {
	ident, _ := c.Get(id)
	return ident.Lang
}

// License implements admission.IdentityProvider.
func (c *IdentityCache) License(id admission.SessionID) (string, bool) {
	ident, ok := c.Get(id)
	if !ok || ident.License == "" {
		return "", false
	}
	return ident.License, true
}

// Identifiers implements admission.IdentityProvider.
func (c *IdentityCache) Identifiers(id admission.SessionID) []string {
	ident, _ := c.Get(id)
	return slices.Clone(ident.Identifiers)
}

// Tokens implements admission.IdentityProvider.
func (c *IdentityCache) Tokens(id admission.SessionID) []string {
	ident, _ := c.Get(id)
	return slices.Clone(ident.Tokens)
}

// Username implements admission.IdentityProvider.
func (c *IdentityCache) Username(id admission.SessionID) string {
	ident, _ := c.Get(id)
	return ident.Name
}
