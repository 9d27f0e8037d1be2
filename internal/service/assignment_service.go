package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edukit/assignio-backend/internal/gate"
	"github.com/edukit/assignio-backend/internal/model"
	"github.com/edukit/assignio-backend/internal/repository"
	"github.com/edukit/assignio-backend/internal/session"
)

// AssignmentService exposes the fetch path to handlers and owns cache
// prewarming.
type AssignmentService struct {
	pipeline *session.Pipeline
	repo     *repository.AssignmentRepository
	g        *gate.Gate
	log      zerolog.Logger
}

// NewAssignmentService creates a new AssignmentService.
func NewAssignmentService(
	pipeline *session.Pipeline,
	repo *repository.AssignmentRepository,
	g *gate.Gate,
	log zerolog.Logger,
) *AssignmentService {
	return &AssignmentService{
		pipeline: pipeline,
		repo:     repo,
		g:        g,
		log:      log.With().Str("component", "assignment_service").Logger(),
	}
}

// Get fetches an assignment with cache fallback and bounded retry.
func (s *AssignmentService) Get(ctx context.Context, id uuid.UUID) (*model.Assignment, error) {
	return s.pipeline.FetchAssignmentWithRetry(ctx, id)
}

// FetchState reports the fetch lifecycle for UI status indicators.
func (s *AssignmentService) FetchState(id uuid.UUID) session.FetchState {
	return s.pipeline.FetchState(id)
}

// PrewarmAll loads every published assignment into the cache before traffic
// arrives, bounding concurrency so startup does not hammer the backend.
func (s *AssignmentService) PrewarmAll(ctx context.Context) error {
	published, err := gate.Execute(ctx, s.g, func(ctx context.Context) ([]model.Assignment, error) {
		return s.repo.ListPublished(ctx)
	})
	if err != nil {
		return fmt.Errorf("list published: %w", err)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(4)
	for _, a := range published {
		a := a
		eg.Go(func() error {
			if _, err := s.pipeline.FetchAssignment(egCtx, a.ID); err != nil {
				// Prewarm is best-effort per assignment.
				s.log.Warn().Err(err).Str("assignment_id", a.ID.String()).Msg("Prewarm fetch failed")
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	s.log.Info().Int("count", len(published)).Msg("Assignment cache prewarmed")
	return nil
}
