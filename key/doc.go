// Package key implements the ordered key type shared by every layer of the
// item cache: the item map, the range map, the manifest, and the lock
// manager all compare, increment, and decrement the same fixed-width key.
//
// A Key is a zone/major/minor/offset quadruple encoded as a fixed-size,
// lexicographically ordered byte array, in the spirit of ScoutFS's
// scoutfs_key: cheap to copy, totally ordered by plain byte comparison,
// with well-defined successor/predecessor operations.
package key
