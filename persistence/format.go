package persistence

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Artifact name suffixes appended to a store's path prefix.
const (
	IndexSuffix    = ".hnsw"
	MappingSuffix  = ".hnsw.map"
	MetadataSuffix = ".hnsw.meta"
)

// MetadataSize is the exact byte length of a metadata artifact.
const MetadataSize = 5*8 + 1 + 8

// Upper bounds for sizes read back from artifacts. Larger values are
// reported as corrupt before anything is allocated from them.
const (
	MaxElements  = math.MaxInt32
	MaxDimension = 1 << 16
)

// ByteOrder is the byte order of every artifact written by this package.
var ByteOrder binary.ByteOrder = binary.NativeEndian

// ErrCorrupt is matched by every *CorruptError.
var ErrCorrupt = errors.New("corrupt data")

// CorruptError describes a structurally invalid artifact.
type CorruptError struct {
	Reason string
	cause  error
}

func (e *CorruptError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("corrupt data: %s: %v", e.Reason, e.cause)
	}
	return "corrupt data: " + e.Reason
}

func (e *CorruptError) Unwrap() error { return e.cause }

// Is makes errors.Is(err, ErrCorrupt) hold for every CorruptError.
func (e *CorruptError) Is(target error) bool { return target == ErrCorrupt }

// NewCorruptError returns a *CorruptError for reason, wrapping cause (which may be nil).
func NewCorruptError(reason string, cause error) error {
	return &CorruptError{Reason: reason, cause: cause}
}

// IndexName, MappingName and MetadataName return the artifact names for prefix.
func IndexName(prefix string) string    { return prefix + IndexSuffix }
func MappingName(prefix string) string  { return prefix + MappingSuffix }
func MetadataName(prefix string) string { return prefix + MetadataSuffix }
