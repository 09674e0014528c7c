// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import "sync"

// collection is an insertion-ordered in-memory table.
type collection[T any] struct {
	mu    sync.RWMutex
	items map[string]T
	order []string
}

func newCollection[T any]() *collection[T] {
	return &collection[T]{items: make(map[string]T)}
}

// insert stores v under id.
func (c *collection[T]) insert(id string, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[id]; !ok {
		c.order = append(c.order, id)
	}
	c.items[id] = v
}

func (c *collection[T]) get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[id]
	return v, ok
}

// replace overwrites an existing item.
func (c *collection[T]) replace(id string, v T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[id]; !ok {
		return false
	}
	c.items[id] = v
	return true
}

func (c *collection[T]) remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[id]; !ok {
		return false
	}
	delete(c.items, id)
	for i, k := range c.order {
		if k == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

func (c *collection[T]) list() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}

// conversations counts chat turns per (target, conversation) pair.
type conversations struct {
	mu    sync.Mutex
	turns map[string][]string
}

func newConversations() *conversations {
	return &conversations{turns: make(map[string][]string)}
}

func conversationKey(targetID, conversationID string) string {
	return targetID + "/" + conversationID
}

// append records message and returns the turn number, starting at 1.
func (c *conversations) append(targetID, conversationID, message string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := conversationKey(targetID, conversationID)
	c.turns[key] = append(c.turns[key], message)
	return len(c.turns[key])
}

// reset forgets a conversation. Unknown conversations are not an error.
func (c *conversations) reset(targetID, conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.turns, conversationKey(targetID, conversationID))
}

func (c *conversations) len(targetID, conversationID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns[conversationKey(targetID, conversationID)])
}
