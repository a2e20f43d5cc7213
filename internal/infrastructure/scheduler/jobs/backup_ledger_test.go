package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/realm-weaver/weaver-bot/internal/domain/progress"
	"github.com/realm-weaver/weaver-bot/internal/infrastructure/persistence/memory"
	"github.com/realm-weaver/weaver-bot/pkg/circuitbreaker"
	"github.com/realm-weaver/weaver-bot/pkg/retry"
)

type fakeArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
	fails   int
	calls   int
}

func (f *fakeArchive) Put(_ context.Context, key string, body []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fails > 0 {
		f.fails--
		return errors.New("503 slow down")
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[key] = body
	return nil
}

func seeded() *memory.Store {
	l := progress.NewLedger()
	l.Set("g1", "a", progress.Record{Exp: 150, Level: 2})
	l.Set("g1", "b", progress.Record{Exp: 300, Level: 4})
	return memory.NewStore(l)
}

func fixedClock() BackupOption {
	at := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	return WithClock(func() time.Time { return at }, func() string { return "id-1" })
}

func quickRetries() BackupOption {
	return WithRetrier(retry.New(
		retry.WithMaxAttempts(3),
		retry.WithInitialDelay(time.Millisecond),
		retry.WithMaxDelay(time.Millisecond),
		retry.WithRetryIf(func(error) bool { return true }),
	))
}

func TestBackupLedgerJob_UploadsLedgerFormat(t *testing.T) {
	archive := &fakeArchive{}
	job := NewBackupLedgerJob(seeded(), archive, "/backups/", nil, fixedClock())

	require.NoError(t, job.Run(context.Background()))

	body, ok := archive.objects["backups/20260301T123000Z-id-1.json"]
	require.True(t, ok, "keys: %v", archive.objects)
	assert.Equal(t, int64(300), gjson.GetBytes(body, "users.g1.b.exp").Int())
	assert.Equal(t, int64(2), gjson.GetBytes(body, "users.g1.a.level").Int())
	assert.Equal(t, BackupJobName, job.Name())
}

func TestBackupLedgerJob_RetriesTransientFailures(t *testing.T) {
	archive := &fakeArchive{fails: 2}
	job := NewBackupLedgerJob(seeded(), archive, "", nil, fixedClock(), quickRetries())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 3, archive.calls)
	assert.Contains(t, archive.objects, "20260301T123000Z-id-1.json")
}

func TestBackupLedgerJob_GivesUp(t *testing.T) {
	archive := &fakeArchive{fails: 10}
	job := NewBackupLedgerJob(seeded(), archive, "x", nil, fixedClock(), quickRetries())

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, archive.calls)
	assert.Empty(t, archive.objects)
}

func TestBackupLedgerJob_BreakerSkipsAfterFailedRuns(t *testing.T) {
	archive := &fakeArchive{fails: 100}
	breaker := circuitbreaker.New("test",
		circuitbreaker.WithFailureThreshold(2),
		circuitbreaker.WithTimeout(time.Hour),
	)
	job := NewBackupLedgerJob(seeded(), archive, "", nil, fixedClock(), quickRetries(), WithBreaker(breaker))

	require.Error(t, job.Run(context.Background()))
	require.Error(t, job.Run(context.Background()))
	require.Equal(t, 6, archive.calls)

	err := job.Run(context.Background())
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, 6, archive.calls)
}
