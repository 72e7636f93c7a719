package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/terra-clan/part-configurator/internal/metrics"
	"github.com/terra-clan/part-configurator/internal/models"
	"github.com/terra-clan/part-configurator/internal/session"
)

type failingPurger struct{}

func (failingPurger) PurgeExpired(ctx context.Context) (int, error) {
	return 0, errors.New("boom")
}

func TestRunOncePurgesExpiredSessions(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()

	assert.NoError(t, store.Save(ctx, &models.Session{ID: "short"}, time.Nanosecond))
	assert.NoError(t, store.Save(ctx, &models.Session{ID: "long"}, time.Hour))
	assert.NoError(t, store.Save(ctx, &models.Session{ID: "forever"}, 0))
	time.Sleep(time.Millisecond)

	c := NewCleaner(store, metrics.New(), 0)
	assert.Equal(t, DefaultInterval, c.interval)
	assert.Equal(t, 1, c.RunOnce(ctx))
	assert.Equal(t, 0, c.RunOnce(ctx))

	s, err := store.Get(ctx, "long")
	assert.NoError(t, err)
	assert.NotNil(t, s)
}

func TestRunOnceSurvivesStoreErrors(t *testing.T) {
	c := NewCleaner(failingPurger{}, nil, time.Second)
	assert.Equal(t, 0, c.RunOnce(context.Background()))
}
