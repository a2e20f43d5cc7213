package progress

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
)

func TestLevelFor(t *testing.T) {
	tests := []struct {
		exp  int64
		want int
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{105, 2},
		{199, 2},
		{200, 3},
		{9999, 100},
		{10000, 101},
		{-50, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFor(tt.exp), "exp=%d", tt.exp)
	}
}

func TestLevelFor_Monotonic(t *testing.T) {
	prev := LevelFor(0)
	for exp := int64(1); exp <= 20000; exp++ {
		lvl := LevelFor(exp)
		require.GreaterOrEqual(t, lvl, prev)
		prev = lvl
	}
}

func TestZoneFor(t *testing.T) {
	tests := []struct {
		level int
		want  string
	}{
		{0, "Awakened Zone"},
		{1, "Awakened Zone"},
		{10, "Awakened Zone"},
		{11, "Essence Zone"},
		{20, "Essence Zone"},
		{21, "Master Zone"},
		{35, "Transcendence Zone"},
		{50, "Supreme Zone"},
		{51, "Sovereign Zone"},
		{70, "Celestial Zone"},
		{71, "Demi-God Zone"},
		{90, "God Zone"},
		{91, "Eternal Zone"},
		{100, "Eternal Zone"},
		{101, "Eternal Zone"},
		{5000, "Eternal Zone"},
		{-3, "Awakened Zone"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ZoneFor(tt.level), "level=%d", tt.level)
	}
}

func TestZoneTable_OrderedAndContiguous(t *testing.T) {
	zones := Zones()
	require.NotEmpty(t, zones)
	for i := 1; i < len(zones); i++ {
		assert.Equal(t, zones[i-1].MaxLevel+1, zones[i].MinLevel, "gap or overlap before %s", zones[i].Name)
	}
	assert.Equal(t, TerminalZone, zones[len(zones)-1].Name)

	// Every level maps to exactly one zone.
	for level := 0; level <= 100; level++ {
		n := 0
		for _, z := range zones {
			if z.Contains(level) {
				n++
			}
		}
		assert.Equal(t, 1, n, "level=%d", level)
	}
}

func TestApplyDelta(t *testing.T) {
	t.Run("small award keeps level", func(t *testing.T) {
		out := ApplyDelta(NewRecord(), 20)
		assert.Equal(t, Record{Exp: 20, Level: 1}, out.Record)
		assert.False(t, out.LevelChanged)
		assert.False(t, out.ZoneChanged)
	})

	t.Run("crossing a level boundary", func(t *testing.T) {
		out := ApplyDelta(Record{Exp: 20, Level: 1}, 85)
		assert.Equal(t, Record{Exp: 105, Level: 2}, out.Record)
		assert.True(t, out.LevelChanged)
		assert.False(t, out.ZoneChanged)
		assert.Equal(t, "Awakened Zone", out.NewZone)
	})

	t.Run("crossing a zone boundary", func(t *testing.T) {
		out := ApplyDelta(Record{Exp: 990, Level: 10}, 20)
		assert.Equal(t, Record{Exp: 1010, Level: 11}, out.Record)
		assert.True(t, out.LevelChanged)
		assert.True(t, out.ZoneChanged)
		assert.Equal(t, "Awakened Zone", out.OldZone)
		assert.Equal(t, "Essence Zone", out.NewZone)
	})

	t.Run("decrement floors at zero", func(t *testing.T) {
		out := ApplyDelta(Record{Exp: 30, Level: 1}, -50)
		assert.Equal(t, Record{Exp: 0, Level: 1}, out.Record)
		assert.False(t, out.LevelChanged)
		assert.Equal(t, int64(-30), out.Applied())
	})

	t.Run("level drop is not a level change", func(t *testing.T) {
		out := ApplyDelta(Record{Exp: 1500, Level: 16}, -1000)
		assert.Equal(t, Record{Exp: 500, Level: 6}, out.Record)
		assert.False(t, out.LevelChanged)
		assert.False(t, out.ZoneChanged)
	})

	t.Run("input is not mutated", func(t *testing.T) {
		in := Record{Exp: 40, Level: 1}
		_ = ApplyDelta(in, 500)
		assert.Equal(t, Record{Exp: 40, Level: 1}, in)
	})

	t.Run("huge grant saturates instead of wrapping", func(t *testing.T) {
		out := ApplyDelta(Record{Exp: 30, Level: 1}, math.MaxInt64)
		assert.Equal(t, int64(math.MaxInt64), out.Record.Exp)
		assert.Equal(t, LevelFor(math.MaxInt64), out.Record.Level)
		assert.True(t, out.LevelChanged)

		again := ApplyDelta(out.Record, 20)
		assert.Equal(t, out.Record, again.Record)
		assert.Zero(t, again.Applied())
	})

	t.Run("above the table stays in the terminal zone", func(t *testing.T) {
		out := ApplyDelta(Record{Exp: 9990, Level: 100}, 20)
		assert.Equal(t, 101, out.Record.Level)
		assert.True(t, out.LevelChanged)
		assert.False(t, out.ZoneChanged)
	})
}

func TestRecord_NormalizeAndValidate(t *testing.T) {
	r := Record{Exp: 250, Level: 7}
	require.Error(t, r.Validate())

	n := r.Normalize()
	assert.Equal(t, Record{Exp: 250, Level: 3}, n)
	assert.NoError(t, n.Validate())

	neg := Record{Exp: -4, Level: 1}
	assert.ErrorIs(t, neg.Validate(), shared.ErrNegativeValue)
	assert.Equal(t, NewRecord(), neg.Normalize())
}

func TestRandomDelta(t *testing.T) {
	d, err := NewRandomDelta(15, 25, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)

	seen := map[int64]bool{}
	for i := 0; i < 5000; i++ {
		v := d.Next()
		require.GreaterOrEqual(t, v, int64(15))
		require.LessOrEqual(t, v, int64(25))
		seen[v] = true
	}
	assert.Len(t, seen, 11, "every value in range should be drawn")

	_, err = NewRandomDelta(10, 5, nil)
	assert.True(t, shared.IsValidation(err))

	_, err = NewRandomDelta(-1, 5, nil)
	assert.Error(t, err)
}

func TestFixedDelta(t *testing.T) {
	assert.Equal(t, int64(20), FixedDelta(20).Next())
}
