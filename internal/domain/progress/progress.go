package progress

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
)

// ExpPerLevel is the amount of experience that separates two levels.
const ExpPerLevel = 100

// Record is the progress of one member of one guild.
type Record struct {
	Exp   int64 `json:"exp"`
	Level int   `json:"level"`
}

// NewRecord returns the record of a member with no progress.
func NewRecord() Record {
	return Record{Exp: 0, Level: 1}
}

// LevelFor derives the level from experience: exp/100 + 1.
// Negative input is treated as zero.
func LevelFor(exp int64) int {
	if exp < 0 {
		exp = 0
	}
	return int(exp/ExpPerLevel) + 1
}

// Zone returns the zone of the record's level.
func (r Record) Zone() string {
	return ZoneFor(r.Level)
}

// IsZero reports whether the member has earned nothing yet.
func (r Record) IsZero() bool {
	return r.Exp <= 0
}

// Normalize floors experience at zero and re-derives the level.
// Stores call it on every record they load.
func (r Record) Normalize() Record {
	if r.Exp < 0 {
		r.Exp = 0
	}
	r.Level = LevelFor(r.Exp)
	return r
}

// Validate checks the derived-level invariant.
func (r Record) Validate() error {
	if r.Exp < 0 {
		return shared.ErrNegativeExperience
	}
	if want := LevelFor(r.Exp); r.Level != want {
		return shared.NewDomainError("progress", "Validate", shared.ErrValidation,
			fmt.Sprintf("level %d does not match experience %d (want %d)", r.Level, r.Exp, want))
	}
	return nil
}

// Outcome describes the result of applying an experience delta.
type Outcome struct {
	Previous     Record
	Record       Record
	LevelChanged bool
	ZoneChanged  bool
	OldZone      string
	NewZone      string
}

// Applied returns the experience that actually changed, after flooring.
func (o Outcome) Applied() int64 {
	return o.Record.Exp - o.Previous.Exp
}

// ApplyDelta computes the record that results from adding delta to r.
// Experience is floored at zero and saturates at math.MaxInt64, so a grant
// never lowers it. LevelChanged is true only when the level
// went up; ZoneChanged additionally requires the zone to differ. r is not
// modified.
func ApplyDelta(r Record, delta int64) Outcome {
	var newExp int64
	switch {
	case delta > 0 && r.Exp > math.MaxInt64-delta:
		newExp = math.MaxInt64
	case r.Exp+delta < 0:
		newExp = 0
	default:
		newExp = r.Exp + delta
	}
	next := Record{Exp: newExp, Level: LevelFor(newExp)}

	out := Outcome{
		Previous: r,
		Record:   next,
		OldZone:  ZoneFor(r.Level),
		NewZone:  ZoneFor(next.Level),
	}
	out.LevelChanged = next.Level > r.Level
	out.ZoneChanged = out.LevelChanged && out.OldZone != out.NewZone
	return out
}

// ═══════════════════════════════════════════════════════════════════════════
// Activity awards
// ═══════════════════════════════════════════════════════════════════════════

const (
	DefaultActivityMin int64 = 15
	DefaultActivityMax int64 = 25
)

// DeltaSource yields the experience granted for one activity event.
type DeltaSource interface {
	Next() int64
}

// RandomDelta draws uniformly from [min, max] inclusive.
type RandomDelta struct {
	min, max int64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomDelta creates a RandomDelta for [min, max]. A nil rng uses a
// randomly seeded PCG generator.
func NewRandomDelta(min, max int64, rng *rand.Rand) (*RandomDelta, error) {
	if min < 0 || max < min {
		return nil, shared.NewDomainError("progress", "NewRandomDelta", shared.ErrValueOutOfRange,
			fmt.Sprintf("invalid activity range [%d, %d]", min, max))
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &RandomDelta{min: min, max: max, rng: rng}, nil
}

// Next implements DeltaSource.
func (d *RandomDelta) Next() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.min + d.rng.Int64N(d.max-d.min+1)
}

// Bounds returns the configured range.
func (d *RandomDelta) Bounds() (int64, int64) {
	return d.min, d.max
}

// FixedDelta always yields the same amount.
type FixedDelta int64

// Next implements DeltaSource.
func (f FixedDelta) Next() int64 {
	return int64(f)
}
