package testsupport

import (
	"fmt"
	"sync/atomic"
	"time"
)

var (
	// Global counter for generating unique sequential IDs in tests
	testSequence uint64

	baseTimestamp = time.Now().UnixNano()
)

func init() {
	// Seeded from the clock so reruns against the same database do not collide
	testSequence = uint64(baseTimestamp % 1000000)
}

// NextSequence returns next unique sequence number
func NextSequence() uint64 {
	return atomic.AddUint64(&testSequence, 1)
}

// UniqueName generates a unique name with given prefix
// Example: UniqueName("models/test") -> "models/test_123456"
func UniqueName(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, NextSequence())
}

// UniqueRecordID returns an activity record ID far above anything seeded by hand.
// Range [1_000_000_000, 9_000_000_000)
func UniqueRecordID() int64 {
	return 1_000_000_000 + int64((uint64(baseTimestamp)+NextSequence()*7919)%8_000_000_000)
}
