package cache

import (
	"bytes"
	"sync"

	"github.com/dgraph-io/badger"
	"github.com/gossiplearn/gossiplearn/src/common"
	"github.com/ugorji/go/codec"
)

// BadgerCache keeps snapshot bytes in a Badger database so that simulations
// with large models do not hold every in-flight snapshot in memory. Keys are
// derived exactly as for the in-memory cache; the atomic-take discipline is
// enforced by a mutex around the read-then-delete transaction.
//
// Because values are stored encoded, the cache must be told how to rebuild
// the concrete snapshot type: newValue returns a fresh zero value to decode
// into.
type BadgerCache struct {
	sync.Mutex
	db       *badger.DB
	path     string
	newValue func() interface{}
	seq      uint64
	live     int
}

// NewBadgerCache creates a snapshot cache backed by a new Badger database at
// path.
func NewBadgerCache(path string, newValue func() interface{}) (*BadgerCache, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	opts.Logger = nil
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerCache{
		db:       handle,
		path:     path,
		newValue: newValue,
	}, nil
}

// Put ...
func (c *BadgerCache) Put(value interface{}) (Key, error) {
	c.Lock()
	defer c.Unlock()

	c.seq++
	key, err := keyFor(c.seq, value)
	if err != nil {
		return "", err
	}

	enc, err := encodeValue(value)
	if err != nil {
		return "", err
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), enc)
	})
	if err != nil {
		return "", err
	}

	c.live++

	return key, nil
}

// Pop ...
func (c *BadgerCache) Pop(key Key) (interface{}, error) {
	c.Lock()
	defer c.Unlock()

	var enc []byte
	err := c.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		enc, err = item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return txn.Delete([]byte(key))
	})
	if err == badger.ErrKeyNotFound {
		return nil, common.NewSimErr("cache", common.CacheMiss, string(key))
	}
	if err != nil {
		return nil, err
	}

	c.live--

	value := c.newValue()
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(bytes.NewBuffer(enc), jh)
	if err := dec.Decode(value); err != nil {
		return nil, err
	}

	return value, nil
}

// Len ...
func (c *BadgerCache) Len() int {
	c.Lock()
	defer c.Unlock()
	return c.live
}

// Close closes the underlying database, abandoning any un-popped entries.
func (c *BadgerCache) Close() error {
	return c.db.Close()
}
