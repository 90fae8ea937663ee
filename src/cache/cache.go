package cache

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/gossiplearn/gossiplearn/src/common"
	"github.com/ugorji/go/codec"
)

// Key is the opaque, content-addressed handle returned by Put. It stays valid
// until exactly one Pop consumes it.
type Key string

// Cache is the shared snapshot store through which nodes exchange model
// state. Put of distinct keys is safe under concurrency and Pop is an atomic
// take: concurrent pops of the same key yield exactly one success.
type Cache interface {
	Put(value interface{}) (Key, error)
	Pop(key Key) (interface{}, error)
	Len() int
	Close() error
}

// keyFor derives a key from a monotonic sequence number and the SHA-256 of
// the canonical JSON encoding of the value. The sequence number keeps a
// second put of identical content from colliding with a live key.
func keyFor(seq uint64, value interface{}) (Key, error) {
	enc, err := encodeValue(value)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(enc)
	return Key(fmt.Sprintf("%d-%x", seq, sum[:4])), nil
}

func encodeValue(value interface{}) ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(value); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// InmemCache keeps snapshots in a mutex-protected map. Its lifetime is scoped
// to a single simulation run; it is always injected, never a process-wide
// singleton, so tests can construct isolated instances.
type InmemCache struct {
	sync.Mutex
	items map[Key]interface{}
	seq   uint64
}

// NewInmemCache ...
func NewInmemCache() *InmemCache {
	return &InmemCache{
		items: make(map[Key]interface{}),
	}
}

// Put stores a snapshot and returns its key.
func (c *InmemCache) Put(value interface{}) (Key, error) {
	c.Lock()
	defer c.Unlock()

	c.seq++
	key, err := keyFor(c.seq, value)
	if err != nil {
		return "", err
	}

	c.items[key] = value

	return key, nil
}

// Pop removes and returns the snapshot stored under key. A second Pop with
// the same key fails with a CacheMiss.
func (c *InmemCache) Pop(key Key) (interface{}, error) {
	c.Lock()
	defer c.Unlock()

	value, ok := c.items[key]
	if !ok {
		return nil, common.NewSimErr("cache", common.CacheMiss, string(key))
	}

	delete(c.items, key)

	return value, nil
}

// Len returns the number of live entries.
func (c *InmemCache) Len() int {
	c.Lock()
	defer c.Unlock()
	return len(c.items)
}

// Close releases any un-popped entries.
func (c *InmemCache) Close() error {
	c.Lock()
	defer c.Unlock()
	c.items = make(map[Key]interface{})
	return nil
}
