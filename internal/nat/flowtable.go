package nat

import "sync"

// FlowKey is the composite key identifying a flow from one side — either
// the private 3-tuple (priv IP, priv port, protocol) or the public 3-tuple
// (pub IP, pub port, protocol). Using a plain comparable struct as the map
// key, rather than the reference C's packed 64-bit integer
// ((ip << 24) | (port << 8) | protocol), sidesteps the key-packing defect
// called out in spec Design Notes §9: Go's map equality already compares
// the full tuple, so there is no bit overlap to lose high IP bits to.
type FlowKey struct {
	IP       [4]byte
	Port     uint16
	Protocol Protocol
}

// Flow is a live translation record for one subscriber 3-tuple.
type Flow struct {
	PrivIP   [4]byte
	PrivPort uint16
	PubIP    [4]byte
	PubPort  uint16
	Protocol Protocol
	State    State

	// LastActivity is a Unix-seconds timestamp. All reads and writes happen
	// under the Translator's coarse lock, so this is a plain field rather
	// than an atomic — there is no concurrent cleanup goroutine running
	// outside that lock to race against.
	LastActivity int64

	id int32 // arena slot index, set by FlowTable.Insert
}

func (k FlowKey) shardIndex() uint32 {
	h := uint32(2166136261)
	for _, b := range k.IP {
		h = (h ^ uint32(b)) * 16777619
	}
	h = (h ^ uint32(k.Port>>8)) * 16777619
	h = (h ^ uint32(k.Port&0xff)) * 16777619
	h = (h ^ uint32(k.Protocol)) * 16777619
	return h & (numFlowShards - 1)
}

// flowShard holds one slice of the private and public indexes. Sharding by
// key hash, rather than guarding one global map, keeps lock contention
// local to whichever shards concurrent lookups happen to hash into.
type flowShard struct {
	mu     sync.RWMutex
	byPriv map[FlowKey]int32
	byPub  map[FlowKey]int32
}

// FlowTable stores live Flow records in a capacity-bounded arena and indexes
// them twice: by private key for egress lookup, by public key for ingress
// lookup. Both indexes map to arena slot indices, never to pointers directly
// — removal is a single arena free plus two index deletes, per spec Design
// Notes §9.
type FlowTable struct {
	capacity int

	arenaMu sync.Mutex
	arena   []*Flow
	free    []int32
	count   int

	shards [numFlowShards]flowShard
}

// NewFlowTable creates a table bounded to at most capacity live flows.
func NewFlowTable(capacity int) *FlowTable {
	if capacity <= 0 {
		capacity = DefaultMaxFlows
	}
	ft := &FlowTable{
		capacity: capacity,
		arena:    make([]*Flow, 0, capacity),
	}
	for i := range ft.shards {
		ft.shards[i].byPriv = make(map[FlowKey]int32)
		ft.shards[i].byPub = make(map[FlowKey]int32)
	}
	return ft
}

// Capacity returns the configured flow capacity bound.
func (ft *FlowTable) Capacity() int { return ft.capacity }

// Count returns the number of live flows.
func (ft *FlowTable) Count() int {
	ft.arenaMu.Lock()
	defer ft.arenaMu.Unlock()
	return ft.count
}

func (ft *FlowTable) get(idx int32) (*Flow, bool) {
	ft.arenaMu.Lock()
	defer ft.arenaMu.Unlock()
	if idx < 0 || int(idx) >= len(ft.arena) {
		return nil, false
	}
	f := ft.arena[idx]
	return f, f != nil
}

// FindByPrivate looks up a flow by its private 3-tuple.
func (ft *FlowTable) FindByPrivate(key FlowKey) (*Flow, bool) {
	shard := &ft.shards[key.shardIndex()]
	shard.mu.RLock()
	idx, ok := shard.byPriv[key]
	shard.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return ft.get(idx)
}

// FindByPublic looks up a flow by its public 3-tuple.
func (ft *FlowTable) FindByPublic(key FlowKey) (*Flow, bool) {
	shard := &ft.shards[key.shardIndex()]
	shard.mu.RLock()
	idx, ok := shard.byPub[key]
	shard.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return ft.get(idx)
}

// Insert adds flow to the arena and both indexes atomically with respect to
// each other. Fails with ErrTableFull if the flow capacity bound is reached.
func (ft *FlowTable) Insert(flow *Flow) error {
	ft.arenaMu.Lock()
	var idx int32
	if n := len(ft.free); n > 0 {
		idx = ft.free[n-1]
		ft.free = ft.free[:n-1]
		ft.arena[idx] = flow
	} else if len(ft.arena) < ft.capacity {
		idx = int32(len(ft.arena))
		ft.arena = append(ft.arena, flow)
	} else {
		ft.arenaMu.Unlock()
		return ErrTableFull
	}
	flow.id = idx
	ft.count++
	ft.arenaMu.Unlock()

	privKey := FlowKey{flow.PrivIP, flow.PrivPort, flow.Protocol}
	pubKey := FlowKey{flow.PubIP, flow.PubPort, flow.Protocol}

	ps := &ft.shards[privKey.shardIndex()]
	ps.mu.Lock()
	ps.byPriv[privKey] = idx
	ps.mu.Unlock()

	pbs := &ft.shards[pubKey.shardIndex()]
	pbs.mu.Lock()
	pbs.byPub[pubKey] = idx
	pbs.mu.Unlock()

	return nil
}

// Remove deletes flow from the arena and both indexes. Callers must ensure
// a given live Flow is removed at most once — the Translator's coarse lock
// (spec section 5) is what guarantees that in practice, since FlowTable
// itself does not track per-flow liveness beyond the arena slot.
func (ft *FlowTable) Remove(flow *Flow) {
	privKey := FlowKey{flow.PrivIP, flow.PrivPort, flow.Protocol}
	pubKey := FlowKey{flow.PubIP, flow.PubPort, flow.Protocol}

	ps := &ft.shards[privKey.shardIndex()]
	ps.mu.Lock()
	delete(ps.byPriv, privKey)
	ps.mu.Unlock()

	pbs := &ft.shards[pubKey.shardIndex()]
	pbs.mu.Lock()
	delete(pbs.byPub, pubKey)
	pbs.mu.Unlock()

	ft.arenaMu.Lock()
	ft.arena[flow.id] = nil
	ft.free = append(ft.free, flow.id)
	ft.count--
	ft.arenaMu.Unlock()
}

// Iter returns a snapshot slice of every currently-live flow. The sweeper and
// Stats are its callers; iteration tolerates concurrent removal because it hands
// back a point-in-time copy of the arena rather than a live view over it —
// no ordering is guaranteed across calls.
func (ft *FlowTable) Iter() []*Flow {
	ft.arenaMu.Lock()
	defer ft.arenaMu.Unlock()
	out := make([]*Flow, 0, ft.count)
	for _, f := range ft.arena {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}
