// Package hashstore implements the persistent content-hash cache that tells
// the switch engine which files actually changed.
//
// The store maps a normalized absolute path to the digest, size and
// modification time last observed for it. A file is unchanged only when its
// current mtime equals the stored one and its recomputed digest matches: the
// mtime comparison is a fast rejection, the digest is authoritative. Entries
// that are known to be stale are flagged invalid instead of being removed,
// which keeps "never seen" and "known changed" apart.
//
// Persistence is one JSON object per line. A line that cannot be parsed is
// dropped on load and reported as cache corruption; it only ever costs a
// re-hash.
package hashstore
