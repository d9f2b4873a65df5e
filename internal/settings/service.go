package settings

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidSettings = errors.New("settings: invalid call settings")
)

// Repository abstracts settings persistence.
// Implementations can be Postgres, cached, etc.
type Repository interface {
	// GetCallSettings returns the current settings row, if one exists.
	GetCallSettings(ctx context.Context) (CallSettings, bool, error)
	PutCallSettings(ctx context.Context, s CallSettings) error
}

// Service resolves the current call price and duration.
//
// Contract:
// - Missing settings fall back to configured defaults; the service never fails
//   a call request because no admin has saved a price sheet yet.
// - Pure lookups; freezing prices onto calls is the caller's job.
type Service struct {
	repo            Repository
	defaultPrice    int64
	defaultDuration int
	clock           func() time.Time
}

func NewService(repo Repository, defaultPrice int64, defaultDurationSeconds int) *Service {
	return &Service{
		repo:            repo,
		defaultPrice:    defaultPrice,
		defaultDuration: defaultDurationSeconds,
		clock:           time.Now,
	}
}

// Current returns the effective call settings.
func (s *Service) Current(ctx context.Context) (CallSettings, error) {
	if s.repo != nil {
		cur, ok, err := s.repo.GetCallSettings(ctx)
		if err != nil {
			return CallSettings{}, err
		}
		if ok {
			return cur, nil
		}
	}
	return CallSettings{
		CoinPrice:       s.defaultPrice,
		DurationSeconds: s.defaultDuration,
	}, nil
}

// Update replaces the platform call settings. Admin-only at the HTTP layer.
func (s *Service) Update(ctx context.Context, price int64, durationSeconds int, updatedBy string) (CallSettings, error) {
	if s.repo == nil {
		return CallSettings{}, errors.New("settings: repository not configured")
	}
	if price <= 0 || durationSeconds <= 0 {
		return CallSettings{}, ErrInvalidSettings
	}
	next := CallSettings{
		CoinPrice:       price,
		DurationSeconds: durationSeconds,
		UpdatedAt:       s.clock().UTC(),
		UpdatedBy:       updatedBy,
	}
	if err := s.repo.PutCallSettings(ctx, next); err != nil {
		return CallSettings{}, err
	}
	return next, nil
}
