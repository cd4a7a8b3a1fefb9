package forest

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	sitter "github.com/smacker/go-tree-sitter"
)

// TreeKey identifies a parsed file version.
type TreeKey struct {
	Path string
	Blob string
}

// TreeCache keeps recent parse trees so a child commit can reparse a file
// incrementally from its parent's tree. Stored trees are never handed out;
// callers receive private copies.
type TreeCache struct {
	mu    sync.Mutex
	cache *lru.Cache[TreeKey, *sitter.Tree]
}

// NewTreeCache creates a cache holding up to size trees. A non-positive size
// yields a cache that stores nothing.
func NewTreeCache(size int) (*TreeCache, error) {
	if size <= 0 {
		return &TreeCache{}, nil
	}
	c, err := lru.NewWithEvict[TreeKey, *sitter.Tree](size, func(_ TreeKey, t *sitter.Tree) {
		t.Close()
	})
	if err != nil {
		return nil, err
	}
	return &TreeCache{cache: c}, nil
}

// Checkout returns a copy of the cached tree for key, or nil on a miss.
// The caller owns the copy.
func (c *TreeCache) Checkout(key TreeKey) *sitter.Tree {
	if c == nil || c.cache == nil || key.Blob == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.cache.Get(key)
	if !ok {
		return nil
	}
	return t.Copy()
}

// Put stores tree under key and takes ownership of it. A tree already cached
// under the same key is closed and replaced.
func (c *TreeCache) Put(key TreeKey, tree *sitter.Tree) {
	if tree == nil {
		return
	}
	if c == nil || c.cache == nil || key.Blob == "" {
		tree.Close()
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.cache.Peek(key); ok && old != tree {
		c.cache.Remove(key)
	}
	c.cache.Add(key, tree)
}

// Len reports the number of cached trees.
func (c *TreeCache) Len() int {
	if c == nil || c.cache == nil {
		return 0
	}
	return c.cache.Len()
}

// Purge closes and drops every cached tree.
func (c *TreeCache) Purge() {
	if c == nil || c.cache == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
}
