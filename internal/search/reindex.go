package search

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"whispr-service/internal/model"
)

// ProfileSource lists the profiles to index.
type ProfileSource interface {
	Numbers(ctx context.Context) ([]string, error)
	GetProfile(ctx context.Context, number string) (*model.UserProfile, bool, error)
}

// Reindexer periodically rebuilds the index from the profile store, catching
// any updates that were missed while the index was unreachable.
type Reindexer struct {
	source ProfileSource
	index  Index
	logger *zap.Logger
	cron   *cron.Cron
}

func NewReindexer(source ProfileSource, index Index, logger *zap.Logger) *Reindexer {
	return &Reindexer{source: source, index: index, logger: logger, cron: cron.New()}
}

// Start schedules RunOnce on a cron spec such as "@every 1h".
func (r *Reindexer) Start(spec string) error {
	_, err := r.cron.AddFunc(spec, func() {
		n, err := r.RunOnce(context.Background())
		if err != nil {
			r.logger.Error("profile reindex failed", zap.Error(err))
			return
		}
		r.logger.Info("profile reindex finished", zap.Int("profiles", n))
	})
	if err != nil {
		return fmt.Errorf("schedule reindex: %w", err)
	}
	r.cron.Start()
	return nil
}

func (r *Reindexer) Stop() {
	<-r.cron.Stop().Done()
}

// RunOnce indexes every profile and returns how many were written.
func (r *Reindexer) RunOnce(ctx context.Context) (int, error) {
	numbers, err := r.source.Numbers(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, n := range numbers {
		profile, ok, err := r.source.GetProfile(ctx, n)
		if err != nil {
			return count, err
		}
		if !ok {
			continue
		}
		if err := r.index.IndexProfile(ctx, profile); err != nil {
			return count, fmt.Errorf("index %s: %w", n, err)
		}
		count++
	}
	return count, nil
}
