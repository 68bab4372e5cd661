package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-scheduler-api/internal/repository"
	"github.com/noah-isme/timetable-scheduler-api/pkg/jobs"
)

const revalidationJobType = "timetable.revalidate"

type timetableRevalidator interface {
	RevalidateReferencing(ctx context.Context, ref repository.EntryReference, entityID string) (int, error)
}

type revalidationPayload struct {
	Ref      repository.EntryReference
	EntityID string
}

// RevalidationService re-runs conflict detection in the background for
// timetables that use an entity which has just changed.
type RevalidationService struct {
	target  timetableRevalidator
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
	enabled bool
}

// NewRevalidationService builds the service and its worker queue.
func NewRevalidationService(target timetableRevalidator, metrics *MetricsService, cfg jobs.QueueConfig, enabled bool) *RevalidationService {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &RevalidationService{target: target, metrics: metrics, logger: cfg.Logger, enabled: enabled && target != nil}
	s.queue = jobs.NewQueue("timetable-revalidation", s.handle, cfg)
	metrics.RegisterQueueDepth("timetable-revalidation", s.queue.Depth)
	return s
}

// Start launches the workers.
func (s *RevalidationService) Start(ctx context.Context) {
	if !s.enabled {
		return
	}
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *RevalidationService) Stop() {
	s.queue.Stop()
}

// Notify queues a revalidation for the entity. Enqueue failures are logged.
func (s *RevalidationService) Notify(ref repository.EntryReference, entityID string) {
	if s == nil || !s.enabled {
		return
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Key:     string(ref) + ":" + entityID,
		Type:    revalidationJobType,
		Payload: revalidationPayload{Ref: ref, EntityID: entityID},
	}
	queued, err := s.queue.Enqueue(job)
	if err != nil {
		s.logger.Warn("failed to queue timetable revalidation",
			zap.String("reference", string(ref)),
			zap.String("entity_id", entityID),
			zap.Error(err),
		)
		return
	}
	if !queued {
		s.logger.Debug("timetable revalidation already pending",
			zap.String("reference", string(ref)),
			zap.String("entity_id", entityID),
		)
	}
}

func (s *RevalidationService) handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(revalidationPayload)
	if !ok {
		s.logger.Error("unexpected revalidation payload", zap.String("job_id", job.ID), zap.Any("payload", job.Payload))
		return nil
	}
	visited, err := s.target.RevalidateReferencing(ctx, payload.Ref, payload.EntityID)
	s.metrics.RecordRevalidation(err == nil)
	if err != nil {
		return fmt.Errorf("revalidate %s %s: %w", payload.Ref, payload.EntityID, err)
	}
	s.logger.Info("timetables revalidated",
		zap.String("reference", string(payload.Ref)),
		zap.String("entity_id", payload.EntityID),
		zap.Int("timetables", visited),
	)
	return nil
}
