package types

import (
	"fmt"
	"time"
)

// EraID identifies a consensus era. Strictly monotone over the lifetime of
// the chain.
type EraID uint64

// Successor returns the id of the following era.
func (e EraID) Successor() EraID { return e + 1 }

// SaturatingSub subtracts without wrapping below zero.
func (e EraID) SaturatingSub(n uint64) EraID {
	if uint64(e) < n {
		return 0
	}
	return EraID(uint64(e) - n)
}

// BlockHeight is the position of a block in the linear chain.
type BlockHeight = uint64

// Timestamp is a moment in time, in milliseconds since the Unix epoch.
type Timestamp uint64

func TimestampNow() Timestamp {
	return Timestamp(time.Now().UnixMilli())
}

func (t Timestamp) Millis() uint64 { return uint64(t) }

// Add advances the timestamp by a duration, saturating on overflow.
func (t Timestamp) Add(d TimeDiff) Timestamp {
	sum := uint64(t) + uint64(d)
	if sum < uint64(t) {
		return Timestamp(^uint64(0))
	}
	return Timestamp(sum)
}

// DiffSince returns the time elapsed since earlier, zero if negative.
func (t Timestamp) DiffSince(earlier Timestamp) TimeDiff {
	if earlier > t {
		return 0
	}
	return TimeDiff(uint64(t) - uint64(earlier))
}

func (t Timestamp) GoTime() time.Time {
	return time.UnixMilli(int64(t))
}

func (t Timestamp) String() string {
	return t.GoTime().UTC().Format(time.RFC3339Nano)
}

// TimeDiff is a duration in milliseconds.
type TimeDiff uint64

func TimeDiffFromDuration(d time.Duration) TimeDiff {
	return TimeDiff(d.Milliseconds())
}

func (d TimeDiff) Millis() uint64 { return uint64(d) }

func (d TimeDiff) Duration() time.Duration {
	return time.Duration(d) * time.Millisecond
}

func (d TimeDiff) String() string { return d.Duration().String() }

// ProtocolVersion is a semver-style (major, minor, patch) triple.
type ProtocolVersion struct {
	Major uint32 `mapstructure:"major"`
	Minor uint32 `mapstructure:"minor"`
	Patch uint32 `mapstructure:"patch"`
}

func (v ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// DirectoryName renders the version the way chainspec subdirectories are
// named on disk.
func (v ProtocolVersion) DirectoryName() string {
	return fmt.Sprintf("%d_%d_%d", v.Major, v.Minor, v.Patch)
}

// Compare orders versions lexicographically by component.
func (v ProtocolVersion) Compare(other ProtocolVersion) int {
	for _, pair := range [][2]uint32{{v.Major, other.Major}, {v.Minor, other.Minor}, {v.Patch, other.Patch}} {
		if pair[0] != pair[1] {
			if pair[0] < pair[1] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func (v ProtocolVersion) MarshalBytes(e *Encoder) {
	e.WriteU32(v.Major)
	e.WriteU32(v.Minor)
	e.WriteU32(v.Patch)
}

func (v *ProtocolVersion) UnmarshalBytes(d *Decoder) error {
	var err error
	if v.Major, err = d.ReadU32(); err != nil {
		return err
	}
	if v.Minor, err = d.ReadU32(); err != nil {
		return err
	}
	v.Patch, err = d.ReadU32()
	return err
}
