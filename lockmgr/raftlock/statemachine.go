package raftlock

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	sm "github.com/lni/dragonboat/v4/statemachine"

	"github.com/driftfs/itemcache/itemcache"
	"github.com/driftfs/itemcache/key"
	"github.com/driftfs/itemcache/lockmgr"
	"github.com/driftfs/itemcache/lockmgr/raftlock/internal"
)

// lease mirrors lockmgr/local's lease, replicated instead of local-only.
type lease struct {
	start, end key.Key
	mode       itemcache.Mode
	ownerID    []byte
	expiresAt  time.Time
}

func (l *lease) expired(now time.Time) bool {
	return !l.expiresAt.IsZero() && now.After(l.expiresAt)
}

// LockStateMachine is a dragonboat IConcurrentStateMachine replicating a
// lease table, grounded on the teacher's KVStateMachine: the same
// Lookup/Update split over a discriminated Query/Command union, the same
// factory-via-closure construction pattern.
type LockStateMachine struct {
	mu        sync.Mutex
	replicaID uint64
	shardID   uint64
	leases    []*lease
}

// CreateStateMachineFactory returns a function dragonboat calls to create
// one state machine instance per shard/replica pair, mirroring the
// teacher's CreateStateMaschineFactory.
func CreateStateMachineFactory() func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return &LockStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
		}
	}
}

// Lookup serves QueryTSnapshot, a consistent read over the current lease
// table.
func (fsm *LockStateMachine) Lookup(itf interface{}) (interface{}, error) {
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, fmt.Errorf("raftlock: invalid query type %T", itf)
	}

	fsm.mu.Lock()
	defer fsm.mu.Unlock()

	switch q.Type {
	case internal.QueryTSnapshot:
		now := time.Now()
		var out internal.QueryResult
		for _, l := range fsm.leases {
			if l.expired(now) {
				continue
			}
			out.Leases = append(out.Leases, internal.LeaseInfo{
				Start: l.start, End: l.end, Mode: l.mode, OwnerID: l.ownerID,
			})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("raftlock: unknown query type %d", q.Type)
	}
}

// Update applies a batch of Acquire/Release commands, in order, to the
// lease table. Each entry's own raft log index is used as the
// deterministic source for a newly granted lease's owner ID — a random
// token would not agree across replicas applying the same entry.
func (fsm *LockStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {
	if len(entries) == 0 {
		return entries, nil
	}

	fsm.mu.Lock()
	defer fsm.mu.Unlock()

	now := time.Now()
	for idx, e := range entries {
		cmd := internal.Command{}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = sm.Result{Data: (&internal.Result{Ok: false}).Serialize()}
			continue
		}

		switch cmd.Type {
		case internal.CommandTAcquire:
			res := fsm.applyAcquireLocked(&cmd, e.Index, now)
			entries[idx].Result = sm.Result{Data: res.Serialize()}
		case internal.CommandTRelease:
			res := fsm.applyReleaseLocked(&cmd)
			entries[idx].Result = sm.Result{Data: res.Serialize()}
		default:
			entries[idx].Result = sm.Result{Data: (&internal.Result{Ok: false}).Serialize()}
		}
	}
	return entries, nil
}

func (fsm *LockStateMachine) applyAcquireLocked(cmd *internal.Command, index uint64, now time.Time) *internal.Result {
	fsm.pruneExpiredLocked(now)

	for _, l := range fsm.leases {
		if lockmgr.Conflicts(cmd.Mode, l.mode) && lockmgr.Overlaps(cmd.Start, cmd.End, l.start, l.end) {
			return &internal.Result{Ok: false}
		}
	}

	ownerID := make([]byte, 8)
	binary.BigEndian.PutUint64(ownerID, index)

	l := &lease{start: cmd.Start, end: cmd.End, mode: cmd.Mode, ownerID: ownerID}
	if cmd.TimeoutSeconds > 0 {
		l.expiresAt = now.Add(time.Duration(cmd.TimeoutSeconds) * time.Second)
	}
	fsm.leases = append(fsm.leases, l)

	return &internal.Result{Ok: true, OwnerID: ownerID}
}

func (fsm *LockStateMachine) applyReleaseLocked(cmd *internal.Command) *internal.Result {
	for i, l := range fsm.leases {
		if key.Compare(l.start, cmd.Start) == 0 && key.Compare(l.end, cmd.End) == 0 && bytes.Equal(l.ownerID, cmd.OwnerID) {
			fsm.leases = append(fsm.leases[:i], fsm.leases[i+1:]...)
			return &internal.Result{Ok: true}
		}
	}
	// a lease over the same range held by another owner stays held.
	for _, l := range fsm.leases {
		if key.Compare(l.start, cmd.Start) == 0 && key.Compare(l.end, cmd.End) == 0 {
			return &internal.Result{Ok: false}
		}
	}
	return &internal.Result{Ok: true}
}

func (fsm *LockStateMachine) pruneExpiredLocked(now time.Time) {
	if len(fsm.leases) == 0 {
		return
	}
	live := fsm.leases[:0]
	for _, l := range fsm.leases {
		if !l.expired(now) {
			live = append(live, l)
		}
	}
	fsm.leases = live
}

// PrepareSnapshot is not used; the lease table is small enough to snapshot
// fuzzily under the lock held by SaveSnapshot, mirroring the teacher's
// own "nothing to prepare" comment on KVStateMachine.PrepareSnapshot.
func (fsm *LockStateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot writes every live lease as a fixed-size record.
func (fsm *LockStateMachine) SaveSnapshot(_ interface{}, w io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	fsm.mu.Lock()
	defer fsm.mu.Unlock()

	if err := binary.Write(w, binary.BigEndian, uint32(len(fsm.leases))); err != nil {
		return err
	}
	for _, l := range fsm.leases {
		buf := make([]byte, key.Size+key.Size+1+8+4+len(l.ownerID))
		off := 0
		l.start.Encode(buf[off : off+key.Size])
		off += key.Size
		l.end.Encode(buf[off : off+key.Size])
		off += key.Size
		buf[off] = byte(l.mode)
		off++
		var expUnix int64
		if !l.expiresAt.IsZero() {
			expUnix = l.expiresAt.UnixNano()
		}
		binary.BigEndian.PutUint64(buf[off:off+8], uint64(expUnix))
		off += 8
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(l.ownerID)))
		off += 4
		copy(buf[off:], l.ownerID)
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// RecoverFromSnapshot replaces the lease table with the snapshot's
// contents.
func (fsm *LockStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return err
	}

	leases := make([]*lease, 0, n)
	for i := uint32(0); i < n; i++ {
		hdr := make([]byte, key.Size+key.Size+1+8+4)
		if _, err := io.ReadFull(r, hdr); err != nil {
			return err
		}
		off := 0
		start := decodeKeyAt(hdr[off : off+key.Size])
		off += key.Size
		end := decodeKeyAt(hdr[off : off+key.Size])
		off += key.Size
		mode := itemcache.Mode(hdr[off])
		off++
		expUnix := int64(binary.BigEndian.Uint64(hdr[off : off+8]))
		off += 8
		ownerLen := binary.BigEndian.Uint32(hdr[off : off+4])

		ownerID := make([]byte, ownerLen)
		if _, err := io.ReadFull(r, ownerID); err != nil {
			return err
		}

		l := &lease{start: start, end: end, mode: mode, ownerID: ownerID}
		if expUnix != 0 {
			l.expiresAt = time.Unix(0, expUnix)
		}
		leases = append(leases, l)
	}

	fsm.mu.Lock()
	fsm.leases = leases
	fsm.mu.Unlock()
	return nil
}

func decodeKeyAt(b []byte) key.Key {
	return key.Key{
		Zone:   b[0],
		Major:  binary.BigEndian.Uint64(b[1:9]),
		Minor:  binary.BigEndian.Uint64(b[9:17]),
		Offset: binary.BigEndian.Uint32(b[17:21]),
	}
}

// Close performs no cleanup: the lease table has no underlying resource.
func (fsm *LockStateMachine) Close() error {
	return nil
}
