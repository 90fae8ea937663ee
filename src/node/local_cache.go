package node

import (
	"fmt"
	"sort"

	"github.com/gossiplearn/gossiplearn/src/cache"
	"github.com/gossiplearn/gossiplearn/src/common"
	"github.com/gossiplearn/gossiplearn/src/core"
	"github.com/gossiplearn/gossiplearn/src/model"
)

// localCache maps sender to pending snapshot key. It is owned exclusively by
// one node and holds at most one live entry per sender between merge
// firings: storing for a sender that already has an entry releases the stale
// key first.
type localCache map[core.NodeID]cache.Key

// store records the key pushed by sender, releasing any stale entry from the
// same sender. It reports whether a stale entry was replaced.
func (lc localCache) store(c cache.Cache, sender core.NodeID, key cache.Key) (bool, error) {
	stale, replaced := lc[sender]
	if replaced {
		if _, err := c.Pop(stale); err != nil {
			return false, err
		}
	}
	lc[sender] = key
	return replaced, nil
}

// drain pops every pending entry in ascending sender order and clears the
// cache. The returned snapshots align with the sorted sender ids, which is
// also the order mixing weights apply in.
func (lc localCache) drain(c cache.Cache) ([]*model.Snapshot, error) {
	senders := make([]core.NodeID, 0, len(lc))
	for sender := range lc {
		senders = append(senders, sender)
	}
	sort.Slice(senders, func(i, j int) bool { return senders[i] < senders[j] })

	snaps := make([]*model.Snapshot, 0, len(senders))
	for _, sender := range senders {
		value, err := c.Pop(lc[sender])
		if err != nil {
			return nil, err
		}
		snap, ok := value.(*model.Snapshot)
		if !ok {
			return nil, common.NewSimErr("node", common.CacheMiss,
				fmt.Sprintf("key %s holds %T, not a model snapshot", lc[sender], value))
		}
		snaps = append(snaps, snap)
	}

	for sender := range lc {
		delete(lc, sender)
	}

	return snaps, nil
}
