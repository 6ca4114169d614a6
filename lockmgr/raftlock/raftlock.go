// Package raftlock implements a Raft-replicated lockmgr.ILockManager on
// top of lni/dragonboat/v4, grounded on the teacher's
// lib/store/dstore.storeImpl: a NodeHost, shard ID, and no-op client
// session, with SyncPropose driving writes and SyncRead driving reads,
// including the same SystemBusy retry loop.
package raftlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"

	"github.com/driftfs/itemcache/itemcache"
	"github.com/driftfs/itemcache/key"
	"github.com/driftfs/itemcache/lockmgr"
	"github.com/driftfs/itemcache/lockmgr/raftlock/internal"
)

var (
	retries = 5
	log     = logger.GetLogger("lockmgr/raftlock")
)

// Manager is the dragonboat-backed lockmgr.ILockManager.
type Manager struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
}

// NewManager wraps an already-started NodeHost for the given shard.
func NewManager(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) *Manager {
	return &Manager{
		nh:      nh,
		shardID: shardID,
		cs:      nh.GetNoOPSession(shardID),
		timeout: timeout,
	}
}

func (m *Manager) propose(ctx context.Context, cmd internal.Command) (*internal.Result, error) {
	for i := 0; i < retries; i++ {
		callCtx, cancel := context.WithTimeout(ctx, m.timeout)
		res, err := m.nh.SyncPropose(callCtx, m.cs, cmd.Serialize())
		cancel()

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: system busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(m.timeout / 10)
			continue
		}
		if err != nil {
			return nil, err
		}

		result := &internal.Result{}
		if err := result.Deserialize(res.Data); err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("raftlock: propose timed out after %d retries", retries)
}

func (m *Manager) AcquireLock(ctx context.Context, start, end key.Key, mode itemcache.Mode, timeoutSeconds uint64) (bool, []byte, error) {
	res, err := m.propose(ctx, internal.Command{
		Type:           internal.CommandTAcquire,
		Start:          start,
		End:            end,
		Mode:           mode,
		TimeoutSeconds: timeoutSeconds,
	})
	if err != nil {
		return false, nil, err
	}
	if !res.Ok {
		return false, nil, nil
	}
	return true, res.OwnerID, nil
}

func (m *Manager) ReleaseLock(ctx context.Context, start, end key.Key, ownerID []byte) (bool, error) {
	res, err := m.propose(ctx, internal.Command{
		Type:    internal.CommandTRelease,
		Start:   start,
		End:     end,
		OwnerID: ownerID,
	})
	if err != nil {
		return false, err
	}
	return res.Ok, nil
}

// Snapshot returns every currently held lease, served as a linearizable
// SyncRead against the state machine.
func (m *Manager) Snapshot(ctx context.Context) ([]internal.LeaseInfo, error) {
	for i := 0; i < retries; i++ {
		callCtx, cancel := context.WithTimeout(ctx, m.timeout)
		res, err := m.nh.SyncRead(callCtx, m.shardID, internal.Query{Type: internal.QueryTSnapshot})
		cancel()

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: system busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(m.timeout / 10)
			continue
		}
		if err != nil {
			return nil, err
		}

		qr, ok := res.(internal.QueryResult)
		if !ok {
			return nil, fmt.Errorf("raftlock: unexpected query result type %T", res)
		}
		return qr.Leases, nil
	}
	return nil, fmt.Errorf("raftlock: read timed out after %d retries", retries)
}

var _ lockmgr.ILockManager = (*Manager)(nil)
