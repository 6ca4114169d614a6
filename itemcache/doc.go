// Package itemcache implements the in-memory item cache that sits between
// callers manipulating logical items (inode index entries, directory
// entries, extended attributes) and the lower manifest/segment storage
// layer of a clustered, log-structured filesystem.
//
// The cache maintains two ordered indexes over the keyspace: a map of
// cached items (itemTree, an augmented red-black tree that also tracks
// which subtrees contain dirty items) and a map of key ranges describing
// which parts of the keyspace have complete negative-cache coverage
// (rangeMap, backed by google/btree). Every public method on Cache takes
// an external Lock describing the caller's access mode and covered key
// range, consults both indexes under a single mutex, and on a coverage
// miss drops the lock to read through a Manifest before retrying.
//
// See SPEC_FULL.md at the repository root for the full specification
// this package implements.
package itemcache
