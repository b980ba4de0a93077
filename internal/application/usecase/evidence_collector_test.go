package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/dreschagin/quality-gate/pkg/apperror"
	"github.com/dreschagin/quality-gate/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectEvidencePackage_Success(t *testing.T) {
	storage := newMemoryStorage()
	cache := &fakeCache{}
	c := NewEvidenceCollector(&fakeProvider{}, storage, cache, nil, EvidenceCollectorConfig{}, logger.New("error"))

	pkg, err := c.CollectEvidencePackage(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, pkg.ID)
	assert.Len(t, pkg.Screenshots, 1)
	assert.NotNil(t, pkg.PerformanceMetrics)
	assert.Len(t, pkg.BrowserCompatibility, 4)
	assert.Empty(t, pkg.CollectionErrors)
	assert.Greater(t, pkg.CollectionDuration, time.Duration(0))

	stored, err := c.Retrieve(context.Background(), entity.EvidenceKey(pkg.CollectedAt))
	require.NoError(t, err)
	assert.Equal(t, pkg.ID, stored.ID)
	assert.Equal(t, []string{LatestEvidenceCacheKey}, cache.keys)

	latest, err := c.LatestPackage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pkg.ID, latest.ID)
}

func TestCollectEvidencePackage_FailedTasksDegradeToEmpty(t *testing.T) {
	c := NewEvidenceCollector(&fakeProvider{failPerf: true, panicJS: true}, newMemoryStorage(), nil, nil, EvidenceCollectorConfig{}, logger.New("error"))

	pkg, err := c.CollectEvidencePackage(context.Background())
	require.NoError(t, err)

	assert.Nil(t, pkg.PerformanceMetrics)
	assert.NotNil(t, pkg.UserJourneyProof)
	assert.Empty(t, pkg.UserJourneyProof)
	assert.Contains(t, pkg.CollectionErrors["performance"], "lighthouse unavailable")
	assert.Contains(t, pkg.CollectionErrors["user_journey"], "panic")
	assert.Len(t, pkg.TestResults, 1)
}

func TestCollectEvidencePackage_SingleFlight(t *testing.T) {
	provider := &fakeProvider{block: make(chan struct{}), started: make(chan struct{})}
	c := NewEvidenceCollector(provider, newMemoryStorage(), nil, nil, EvidenceCollectorConfig{}, logger.New("error"))

	done := make(chan error, 1)
	go func() {
		_, err := c.CollectEvidencePackage(context.Background())
		done <- err
	}()
	<-provider.started

	_, err := c.CollectEvidencePackage(context.Background())
	assert.ErrorIs(t, err, apperror.ErrCollectionInProgress)
	assert.True(t, c.IsCollecting())

	close(provider.block)
	require.NoError(t, <-done)
	assert.False(t, c.IsCollecting())
}

func TestCollectOrJoin_SharesRunningCollection(t *testing.T) {
	provider := &fakeProvider{block: make(chan struct{}), started: make(chan struct{})}
	c := NewEvidenceCollector(provider, newMemoryStorage(), nil, nil, EvidenceCollectorConfig{}, logger.New("error"))

	first := make(chan *entity.EvidencePackage, 1)
	go func() {
		pkg, err := c.CollectEvidencePackage(context.Background())
		assert.NoError(t, err)
		first <- pkg
	}()
	<-provider.started

	joined := make(chan *entity.EvidencePackage, 1)
	go func() {
		pkg, err := c.CollectOrJoin(context.Background())
		assert.NoError(t, err)
		joined <- pkg
	}()
	time.Sleep(20 * time.Millisecond)
	close(provider.block)

	a, b := <-first, <-joined
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, a.ID, b.ID)
	assert.False(t, c.IsCollecting())
}

func TestCollectOrJoin_WaitHonoursContext(t *testing.T) {
	provider := &fakeProvider{block: make(chan struct{}), started: make(chan struct{})}
	defer close(provider.block)
	c := NewEvidenceCollector(provider, newMemoryStorage(), nil, nil, EvidenceCollectorConfig{}, logger.New("error"))

	go func() { _, _ = c.CollectEvidencePackage(context.Background()) }()
	<-provider.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.CollectOrJoin(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func (c *EvidenceCollector) waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flight == nil {
		return 0
	}
	return c.flight.waiters
}

func TestCollectOrJoin_SurvivesStarterCancel(t *testing.T) {
	provider := &fakeProvider{block: make(chan struct{}), started: make(chan struct{})}
	c := NewEvidenceCollector(provider, newMemoryStorage(), nil, nil, EvidenceCollectorConfig{}, logger.New("error"))

	dashCtx, cancelDash := context.WithCancel(context.Background())
	defer cancelDash()
	started := make(chan error, 1)
	go func() {
		_, err := c.CollectEvidencePackage(dashCtx)
		started <- err
	}()
	<-provider.started

	joined := make(chan *entity.EvidencePackage, 1)
	go func() {
		pkg, err := c.CollectOrJoin(context.Background())
		assert.NoError(t, err)
		joined <- pkg
	}()
	require.Eventually(t, func() bool { return c.waiting() == 2 }, time.Second, 5*time.Millisecond)

	cancelDash()
	assert.ErrorIs(t, <-started, context.Canceled)
	assert.True(t, c.IsCollecting())

	close(provider.block)
	pkg := <-joined
	require.NotNil(t, pkg)
	assert.Empty(t, pkg.CollectionErrors)
	assert.Len(t, pkg.Screenshots, 1)
}

func TestCollectEvidencePackage_LastWaiterCancelsCollection(t *testing.T) {
	provider := &fakeProvider{block: make(chan struct{}), started: make(chan struct{})}
	defer close(provider.block)
	c := NewEvidenceCollector(provider, newMemoryStorage(), nil, nil, EvidenceCollectorConfig{}, logger.New("error"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.CollectEvidencePackage(ctx)
		done <- err
	}()
	<-provider.started
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.False(t, c.IsCollecting())
	require.Eventually(t, func() bool {
		latest, err := c.LatestPackage(context.Background())
		return err == nil && latest.CollectionErrors["screenshots"] != ""
	}, time.Second, 5*time.Millisecond)
}

func TestCollectEvidencePackage_JointTimeout(t *testing.T) {
	provider := &fakeProvider{block: make(chan struct{})}
	defer close(provider.block)
	c := NewEvidenceCollector(provider, newMemoryStorage(), nil, nil, EvidenceCollectorConfig{Timeout: 30 * time.Millisecond}, logger.New("error"))

	pkg, err := c.CollectEvidencePackage(context.Background())
	require.NoError(t, err)

	assert.Empty(t, pkg.Screenshots)
	assert.Contains(t, pkg.CollectionErrors, "screenshots")
	assert.NotNil(t, pkg.PerformanceMetrics)
}

func TestCollectEvidencePackage_StorageFailureIsRecorded(t *testing.T) {
	storage := newMemoryStorage()
	storage.err = errors.New("bucket not found")
	c := NewEvidenceCollector(&fakeProvider{}, storage, nil, nil, EvidenceCollectorConfig{}, logger.New("error"))

	pkg, err := c.CollectEvidencePackage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bucket not found", pkg.CollectionErrors["storage"])
}

func TestRetrieve_Missing(t *testing.T) {
	c := NewEvidenceCollector(&fakeProvider{}, newMemoryStorage(), nil, nil, EvidenceCollectorConfig{}, logger.New("error"))

	_, err := c.Retrieve(context.Background(), "2026-01-01T00:00:00Z")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = c.LatestPackage(context.Background())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
