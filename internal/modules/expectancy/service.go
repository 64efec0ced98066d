package expectancy

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/rs/zerolog"
)

// ClosedPositionSource lists closed positions.
type ClosedPositionSource interface {
	GetClosed(ctx context.Context) ([]domain.Position, error)
}

// Service rebuilds slices from closed trades and looks up modifiers.
type Service struct {
	positions ClosedPositionSource
	store     domain.ExpectancyStore
	now       func() time.Time
	log       zerolog.Logger
}

// NewService creates an expectancy service.
func NewService(positions ClosedPositionSource, store domain.ExpectancyStore, log zerolog.Logger) *Service {
	return &Service{
		positions: positions,
		store:     store,
		now:       time.Now,
		log:       log.With().Str("service", "expectancy").Logger(),
	}
}

// Rebuild aggregates every closed position and replaces the stored slices.
func (s *Service) Rebuild(ctx context.Context) ([]domain.ExpectancySlice, error) {
	closed, err := s.positions.GetClosed(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read closed positions: %w", err)
	}

	slices := Aggregate(closed, s.now())
	if err := s.store.ReplaceAll(ctx, slices); err != nil {
		return nil, fmt.Errorf("failed to store expectancy slices: %w", err)
	}

	s.log.Info().
		Int("trades", len(closed)).
		Int("slices", len(slices)).
		Msg("Expectancy rebuilt")
	return slices, nil
}

// Lookup returns the modifier for key. A store failure degrades to NO_DATA so a
// ranking pass never stalls on history.
func (s *Service) Lookup(ctx context.Context, key domain.ExpectancyKey) Result {
	slice, err := s.store.GetSlice(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).
			Str("sleeve", string(key.Sleeve)).
			Str("bucket", string(key.ATRBucket)).
			Str("regime", string(key.Regime)).
			Msg("Expectancy lookup failed, treating as no data")
		return Modifier(key, nil)
	}
	return Modifier(key, slice)
}
