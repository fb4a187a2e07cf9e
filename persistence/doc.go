// Package persistence provides the on-disk layouts of the store's own
// artifacts and the binary plumbing the ANN collaborators use for theirs.
//
// Two artifacts belong to the store:
//
//   - the mapping file: uint64 entry count, the reverse map (one raw uint64
//     external id per position), then (external id, position) pairs of the
//     forward map;
//   - the metadata file: dimension, capacity, M, efConstruction, ef as uint64,
//     allowReplaceDeleted as one byte, reverse-map reserved size as uint64.
//
// Both are written in raw native byte order and carry no version field.
// Readers report structural problems as *CorruptError.
package persistence
