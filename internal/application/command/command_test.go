package command

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realm-weaver/weaver-bot/internal/domain/progress"
	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
	"github.com/realm-weaver/weaver-bot/internal/infrastructure/persistence/memory"
	"github.com/realm-weaver/weaver-bot/pkg/logger"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

type countingInvalidator struct {
	mu    sync.Mutex
	calls map[shared.GuildID]int
}

func (c *countingInvalidator) Invalidate(_ context.Context, g shared.GuildID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[shared.GuildID]int{}
	}
	c.calls[g]++
	return nil
}

// brokenRepo fails every mutation the way an unwritable disk would.
type brokenRepo struct {
	*memory.Store
	calls int
}

func (b *brokenRepo) Update(context.Context, shared.GuildID, shared.UserID, progress.UpdateFunc) (progress.Record, error) {
	b.calls++
	return progress.Record{}, progress.StorageError("Update", errors.New("disk full"))
}

func amount(n int64) *int64 { return &n }

func TestAwardActivity_SmallAwardNoAnnouncement(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore(nil)
	pub := &recordingPublisher{}
	inv := &countingInvalidator{}
	h := NewAwardActivityHandler(repo, progress.FixedDelta(20), pub, inv, logger.Nop())

	res, err := h.Handle(ctx, AwardActivityCommand{GuildID: "g", UserID: "u"})
	require.NoError(t, err)

	assert.False(t, res.Skipped)
	assert.Equal(t, int64(20), res.Awarded)
	assert.Equal(t, progress.Record{Exp: 20, Level: 1}, res.Outcome.Record)
	assert.Equal(t, []shared.EventType{shared.EventXPChanged}, pub.types())
	assert.Equal(t, 1, inv.calls["g"])
}

func TestAwardActivity_LevelUp(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore(nil)
	_, err := repo.Update(ctx, "g", "u", func(progress.Record) (progress.Record, error) {
		return progress.Record{Exp: 20, Level: 1}, nil
	})
	require.NoError(t, err)

	pub := &recordingPublisher{}
	h := NewAwardActivityHandler(repo, progress.FixedDelta(85), pub, nil, nil)

	res, err := h.Handle(ctx, AwardActivityCommand{GuildID: "g", UserID: "u"})
	require.NoError(t, err)

	assert.Equal(t, progress.Record{Exp: 105, Level: 2}, res.Outcome.Record)
	assert.Equal(t, []shared.EventType{shared.EventXPChanged, shared.EventLevelUp}, pub.types())

	lvl := pub.events[1].(shared.LevelUpEvent)
	assert.Equal(t, 1, lvl.OldLevel)
	assert.Equal(t, 2, lvl.NewLevel)
}

func TestAwardActivity_ZoneChangeReplacesLevelUp(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore(nil)
	_, err := repo.Update(ctx, "g", "u", func(progress.Record) (progress.Record, error) {
		return progress.Record{Exp: 995}, nil
	})
	require.NoError(t, err)

	pub := &recordingPublisher{}
	h := NewAwardActivityHandler(repo, progress.FixedDelta(20), pub, nil, nil)

	_, err = h.Handle(ctx, AwardActivityCommand{GuildID: "g", UserID: "u"})
	require.NoError(t, err)

	assert.Equal(t, []shared.EventType{shared.EventXPChanged, shared.EventZoneChanged}, pub.types())
	zone := pub.events[1].(shared.ZoneChangedEvent)
	assert.Equal(t, "Awakened Zone", zone.OldZone)
	assert.Equal(t, "Essence Zone", zone.NewZone)
	assert.Equal(t, 11, zone.NewLevel)
}

func TestAwardActivity_BotIsSkipped(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore(nil)
	pub := &recordingPublisher{}
	h := NewAwardActivityHandler(repo, progress.FixedDelta(20), pub, nil, nil)

	res, err := h.Handle(ctx, AwardActivityCommand{GuildID: "g", UserID: "bot", IsBot: true})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Empty(t, pub.types())

	all, _ := repo.AllForGuild(ctx, "g")
	assert.Empty(t, all)
}

func TestAwardActivity_InvalidIDs(t *testing.T) {
	h := NewAwardActivityHandler(memory.NewStore(nil), progress.FixedDelta(20), nil, nil, nil)

	_, err := h.Handle(context.Background(), AwardActivityCommand{GuildID: "", UserID: "u"})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), AwardActivityCommand{GuildID: "g", UserID: " "})
	assert.True(t, shared.IsValidation(err))
}

func TestAwardActivity_StorageFailureNoEvents(t *testing.T) {
	repo := &brokenRepo{Store: memory.NewStore(nil)}
	pub := &recordingPublisher{}
	inv := &countingInvalidator{}
	h := NewAwardActivityHandler(repo, progress.FixedDelta(20), pub, inv, nil)

	_, err := h.Handle(context.Background(), AwardActivityCommand{GuildID: "g", UserID: "u"})
	require.Error(t, err)
	assert.True(t, shared.IsStorageUnavailable(err))
	assert.Empty(t, pub.types())
	assert.Zero(t, inv.calls["g"])
}

func TestAwardActivity_ConcurrentNoLostUpdates(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore(nil)
	h := NewAwardActivityHandler(repo, progress.FixedDelta(15), nil, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Handle(ctx, AwardActivityCommand{GuildID: "g", UserID: "u"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, _ := repo.Get(ctx, "g", "u")
	assert.Equal(t, int64(750), rec.Exp)
	assert.Equal(t, 8, rec.Level)
}

func TestAdjustExperience_Add(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore(nil)
	pub := &recordingPublisher{}
	inv := &countingInvalidator{}
	h := NewAdjustExperienceHandler(repo, pub, inv, logger.Nop())

	// A grant large enough to cross zones is still not announced.
	res, err := h.Handle(ctx, AdjustExperienceCommand{
		Adjustment:    AdjustmentAdd,
		GuildID:       "g",
		CallerID:      "admin",
		TargetUserID:  "u",
		Amount:        amount(1500),
		CallerIsAdmin: true,
	})
	require.NoError(t, err)

	assert.Equal(t, progress.Record{Exp: 1500, Level: 16}, res.Outcome.Record)
	assert.Equal(t, int64(1500), res.Amount)
	assert.Equal(t, []shared.EventType{shared.EventXPChanged}, pub.types())
	assert.Equal(t, shared.XPSourceAdmin, pub.events[0].(shared.XPChangedEvent).Source)
	assert.Equal(t, 1, inv.calls["g"])
}

func TestAdjustExperience_HugeGrantNeverLowersExperience(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore(nil)
	h := NewAdjustExperienceHandler(repo, nil, nil, nil)
	grant := func(n int64) *AdjustExperienceResult {
		t.Helper()
		res, err := h.Handle(ctx, AdjustExperienceCommand{
			Adjustment:    AdjustmentAdd,
			GuildID:       "g",
			TargetUserID:  "u1",
			Amount:        amount(n),
			CallerIsAdmin: true,
		})
		require.NoError(t, err)
		return res
	}

	grant(30)
	res := grant(math.MaxInt64)
	assert.Equal(t, int64(math.MaxInt64), res.Outcome.Record.Exp)
	assert.GreaterOrEqual(t, res.Outcome.Applied(), int64(0))

	rec, err := repo.Get(ctx, "g", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), rec.Exp)
	assert.Equal(t, progress.LevelFor(math.MaxInt64), rec.Level)
}

func TestAdjustExperience_RemoveFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore(nil)
	_, _ = repo.Update(ctx, "g", "u", func(progress.Record) (progress.Record, error) {
		return progress.Record{Exp: 30, Level: 1}, nil
	})
	h := NewAdjustExperienceHandler(repo, nil, nil, nil)

	res, err := h.Handle(ctx, AdjustExperienceCommand{
		Adjustment:    AdjustmentRemove,
		GuildID:       "g",
		TargetUserID:  "u",
		Amount:        amount(50),
		CallerIsAdmin: true,
	})
	require.NoError(t, err)
	assert.Equal(t, progress.Record{Exp: 0, Level: 1}, res.Outcome.Record)

	rec, _ := repo.Get(ctx, "g", "u")
	assert.Equal(t, progress.NewRecord(), rec)
}

func TestAdjustExperience_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		cmd   AdjustExperienceCommand
		check func(error) bool
	}{
		{
			name:  "not admin",
			cmd:   AdjustExperienceCommand{Adjustment: AdjustmentAdd, GuildID: "g", TargetUserID: "u", Amount: amount(10)},
			check: shared.IsForbidden,
		},
		{
			name:  "not admin and invalid",
			cmd:   AdjustExperienceCommand{Adjustment: AdjustmentAdd, GuildID: "g"},
			check: shared.IsForbidden,
		},
		{
			name:  "missing target",
			cmd:   AdjustExperienceCommand{Adjustment: AdjustmentAdd, GuildID: "g", Amount: amount(10), CallerIsAdmin: true},
			check: shared.IsValidation,
		},
		{
			name:  "missing amount",
			cmd:   AdjustExperienceCommand{Adjustment: AdjustmentAdd, GuildID: "g", TargetUserID: "u", CallerIsAdmin: true},
			check: shared.IsValidation,
		},
		{
			name:  "zero amount",
			cmd:   AdjustExperienceCommand{Adjustment: AdjustmentRemove, GuildID: "g", TargetUserID: "u", Amount: amount(0), CallerIsAdmin: true},
			check: shared.IsValidation,
		},
		{
			name:  "negative amount",
			cmd:   AdjustExperienceCommand{Adjustment: AdjustmentAdd, GuildID: "g", TargetUserID: "u", Amount: amount(-5), CallerIsAdmin: true},
			check: shared.IsValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &brokenRepo{Store: memory.NewStore(nil)}
			h := NewAdjustExperienceHandler(repo, nil, nil, nil)

			_, err := h.Handle(context.Background(), tt.cmd)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
			assert.Zero(t, repo.calls, "store must not be touched")
		})
	}
}

func TestMemberJoined(t *testing.T) {
	pub := &recordingPublisher{}
	h := NewMemberJoinedHandler(pub, nil)

	require.NoError(t, h.Handle(context.Background(), MemberJoinedCommand{GuildID: "g", UserID: "u", DisplayName: "Lin"}))
	assert.Equal(t, []shared.EventType{shared.EventMemberJoined}, pub.types())

	err := h.Handle(context.Background(), MemberJoinedCommand{GuildID: "g"})
	assert.True(t, shared.IsValidation(err))
}
