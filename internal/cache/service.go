package cache

import (
	"context"
	"errors"
)

// Service is the local cache service: reads and writes go to the store,
// population and refreshes go through the populator
type Service struct {
	*Store
	populator *Populator
	installed InstallChecker
}

var _ Channel = (*Service)(nil)

// NewService creates a new cache service
func NewService(store *Store, populator *Populator, installed InstallChecker) *Service {
	return &Service{
		Store:     store,
		populator: populator,
		installed: installed,
	}
}

// InitiatePopulation starts a background population. Asking while one is
// already running is not an error.
func (s *Service) InitiatePopulation(ctx context.Context, clear bool) error {
	err := s.populator.Start(clear)
	if errors.Is(err, ErrPopulationRunning) {
		return nil
	}
	return err
}

// IsInstallReferencePresent reports whether ref is installed on this host
func (s *Service) IsInstallReferencePresent(ctx context.Context, ref string) (bool, error) {
	return s.installed.IsInstalled(ctx, ref)
}

// RefreshCollection refetches a special collection from upstream
func (s *Service) RefreshCollection(ctx context.Context, collectionType string) ([]string, error) {
	return s.populator.RefreshCollection(ctx, collectionType)
}

// RefreshCategoryCollection refetches a category collection from upstream
func (s *Service) RefreshCategoryCollection(ctx context.Context, categoryID string) error {
	return s.populator.RefreshCategoryCollection(ctx, categoryID)
}

// Populating reports whether a population is in progress
func (s *Service) Populating() bool {
	return s.populator.Running()
}

// Close stops a running population. Call it before closing the database.
func (s *Service) Close() {
	s.populator.Stop()
}
