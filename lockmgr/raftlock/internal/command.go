// Package internal holds the wire format for raftlock's replicated log
// entries and read-only queries, grounded on the teacher's
// lib/store/dstore/internal package (the same split of a discriminated
// Command union for writes and a Query/QueryResult pair for reads).
package internal

import (
	"encoding/binary"
	"fmt"

	"github.com/driftfs/itemcache/itemcache"
	"github.com/driftfs/itemcache/key"
)

// CommandType defines the possible write operations applied through the
// raft log.
type CommandType uint8

const (
	CommandTAcquire CommandType = iota
	CommandTRelease
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTAcquire:
		return "Acquire"
	case CommandTRelease:
		return "Release"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// Command represents one entry in the raft log: either a lock acquisition
// or a release. OwnerID is set by the caller only for Release (the token
// to check against); Acquire derives its owner ID deterministically from
// the log entry's index, since a random token would not agree across
// replicas.
type Command struct {
	Type           CommandType
	Start, End     key.Key
	Mode           itemcache.Mode
	TimeoutSeconds uint64
	OwnerID        []byte
}

// SizeBytes returns the exact number of bytes Serialize will produce.
func (c *Command) SizeBytes() int {
	return 1 + key.Size + key.Size + 1 + 8 + 4 + len(c.OwnerID)
}

// Serialize encodes the command as:
// 1 byte type, key.Size bytes start, key.Size bytes end, 1 byte mode,
// 8 bytes timeoutSeconds, 4 bytes ownerID length, N bytes ownerID.
func (c *Command) Serialize() []byte {
	buf := make([]byte, c.SizeBytes())
	off := 0
	buf[off] = byte(c.Type)
	off++
	c.Start.Encode(buf[off : off+key.Size])
	off += key.Size
	c.End.Encode(buf[off : off+key.Size])
	off += key.Size
	buf[off] = byte(c.Mode)
	off++
	binary.BigEndian.PutUint64(buf[off:off+8], c.TimeoutSeconds)
	off += 8
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(c.OwnerID)))
	off += 4
	copy(buf[off:], c.OwnerID)
	return buf
}

// Deserialize extracts all Command fields from data, the inverse of
// Serialize.
func (c *Command) Deserialize(data []byte) error {
	minSize := 1 + key.Size + key.Size + 1 + 8 + 4
	if len(data) < minSize {
		return fmt.Errorf("raftlock: command data too short: %d < %d", len(data), minSize)
	}
	off := 0
	c.Type = CommandType(data[off])
	off++
	c.Start = decodeKey(data[off : off+key.Size])
	off += key.Size
	c.End = decodeKey(data[off : off+key.Size])
	off += key.Size
	c.Mode = itemcache.Mode(data[off])
	off++
	c.TimeoutSeconds = binary.BigEndian.Uint64(data[off : off+8])
	off += 8
	ownerLen := int(binary.BigEndian.Uint32(data[off : off+4]))
	off += 4
	if len(data) < off+ownerLen {
		return fmt.Errorf("raftlock: command data too short for owner id of length %d", ownerLen)
	}
	c.OwnerID = append([]byte(nil), data[off:off+ownerLen]...)
	return nil
}

func decodeKey(b []byte) key.Key {
	return key.Key{
		Zone:   b[0],
		Major:  binary.BigEndian.Uint64(b[1:9]),
		Minor:  binary.BigEndian.Uint64(b[9:17]),
		Offset: binary.BigEndian.Uint32(b[17:21]),
	}
}

// Result is the payload carried back in sm.Result.Data for a Command.
type Result struct {
	Ok      bool
	OwnerID []byte
}

func (r *Result) Serialize() []byte {
	buf := make([]byte, 1+4+len(r.OwnerID))
	if r.Ok {
		buf[0] = 1
	}
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(r.OwnerID)))
	copy(buf[5:], r.OwnerID)
	return buf
}

func (r *Result) Deserialize(data []byte) error {
	if len(data) < 5 {
		return fmt.Errorf("raftlock: result data too short: %d", len(data))
	}
	r.Ok = data[0] != 0
	n := int(binary.BigEndian.Uint32(data[1:5]))
	if len(data) < 5+n {
		return fmt.Errorf("raftlock: result data too short for owner id of length %d", n)
	}
	r.OwnerID = append([]byte(nil), data[5:5+n]...)
	return nil
}

// QueryType defines the possible read-only queries against the lease
// table.
type QueryType uint8

const (
	// QueryTSnapshot lists every currently held lease, used by the CLI's
	// stat command for introspection.
	QueryTSnapshot QueryType = iota
)

type Query struct {
	Type QueryType
}

// LeaseInfo is one entry of a QueryTSnapshot result.
type LeaseInfo struct {
	Start, End key.Key
	Mode       itemcache.Mode
	OwnerID    []byte
}

type QueryResult struct {
	Leases []LeaseInfo
}
