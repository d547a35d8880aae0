package engine

import (
	"sync"

	"github.com/cascadehq/cascade/store"
)

// storeCache keeps one open store connection per URL. It replaces a
// process-wide singleton: each engine owns its cache, and a changed
// configuration URL simply opens (and caches) a new connection.
type storeCache struct {
	mu    sync.Mutex
	open  func(url string) (store.Store, error)
	conns map[string]store.Store
}

func newStoreCache() *storeCache {
	return &storeCache{
		open:  openRedis,
		conns: make(map[string]store.Store),
	}
}

// get returns the cached connection for url, opening one if needed.
func (c *storeCache) get(url string) (store.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.conns[url]; ok {
		return s, nil
	}
	s, err := c.open(url)
	if err != nil {
		return nil, err
	}
	c.conns[url] = s
	return s, nil
}

// closeAll closes every cached connection.
func (c *storeCache) closeAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for url, s := range c.conns {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.conns, url)
	}
	return firstErr
}
