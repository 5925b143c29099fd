package models

import (
	"math/bits"
	"strconv"
	"strings"
)

// EntityID identifies a spatial entity across all partitions. Zero is reserved
// and means "no entity" (for example, a root entity's parent).
type EntityID uint64

const NoEntity EntityID = 0

func (id EntityID) String() string {
	return "e" + strconv.FormatUint(uint64(id), 10)
}

// PartitionID labels one independent coordinate space. Valid labels are
// [0, partition_count) as configured at setup.
type PartitionID uint8

// MaxPartitions is the number of partitions a PartitionSet can address.
const MaxPartitions = 64

func (id PartitionID) String() string {
	return "partition/" + strconv.Itoa(int(id))
}

// PartitionSet is a bitset of partition ids.
type PartitionSet uint64

func NewPartitionSet(ids ...PartitionID) PartitionSet {
	var s PartitionSet
	for _, id := range ids {
		s = s.With(id)
	}
	return s
}

// AllPartitions returns the set containing every partition in [0, count).
func AllPartitions(count int) PartitionSet {
	if count >= MaxPartitions {
		return ^PartitionSet(0)
	}
	return PartitionSet(uint64(1)<<uint(count) - 1)
}

func (s PartitionSet) Has(id PartitionID) bool {
	return id < MaxPartitions && s&(1<<id) != 0
}

func (s PartitionSet) With(id PartitionID) PartitionSet {
	if id >= MaxPartitions {
		return s
	}
	return s | 1<<id
}

func (s PartitionSet) Without(id PartitionID) PartitionSet {
	if id >= MaxPartitions {
		return s
	}
	return s &^ (1 << id)
}

func (s PartitionSet) Len() int {
	return bits.OnesCount64(uint64(s))
}

func (s PartitionSet) IsEmpty() bool {
	return s == 0
}

// IDs lists the members in ascending order.
func (s PartitionSet) IDs() []PartitionID {
	out := make([]PartitionID, 0, s.Len())
	for v := uint64(s); v != 0; v &= v - 1 {
		out = append(out, PartitionID(bits.TrailingZeros64(v)))
	}
	return out
}

func (s PartitionSet) String() string {
	ids := s.IDs()
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(int(id))
	}
	return "{" + strings.Join(parts, ",") + "}"
}
