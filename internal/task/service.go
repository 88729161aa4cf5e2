// Package task runs long operations in the background and exposes their
// progress through persisted task records.
package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sokolovdp/finmars-core-sub005/internal/apperrors"
	"github.com/sokolovdp/finmars-core-sub005/internal/model"
	"github.com/sokolovdp/finmars-core-sub005/internal/register"
	"github.com/sokolovdp/finmars-core-sub005/internal/repository"
)

// TypeRegisterPipeline is the task type of a register pipeline run.
const TypeRegisterPipeline = "calculate_portfolio_register_records"

// Service dispatches and tracks background tasks.
type Service struct {
	log      zerolog.Logger
	tasks    *repository.TaskRepository
	pipeline *register.Pipeline
}

// NewService creates a task service.
func NewService(log zerolog.Logger, tasks *repository.TaskRepository, pipeline *register.Pipeline) *Service {
	return &Service{
		log:      log.With().Str("component", "task").Logger(),
		tasks:    tasks,
		pipeline: pipeline,
	}
}

// SubmitRegisterPipeline creates a task record and starts the pipeline in
// the background. The returned task is in pending state; callers poll it
// by id.
func (s *Service) SubmitRegisterPipeline(opts register.Options) (*model.Task, error) {
	if s.pipeline.Busy(opts.MasterUserID) {
		return nil, apperrors.ErrPipelineAlreadyRunning
	}

	options, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task options: %w", err)
	}

	t := &model.Task{
		ID:            uuid.New().String(),
		MasterUserID:  opts.MasterUserID,
		WorkerTaskID:  uuid.New().String(),
		Type:          TypeRegisterPipeline,
		Status:        model.TaskStatusPending,
		OptionsObject: string(options),
	}
	if err := s.tasks.Create(t); err != nil {
		return nil, err
	}

	go s.runPipeline(t.ID, opts)
	return t, nil
}

// runPipeline drives one background run and records its outcome. It uses a
// fresh context: the task outlives the HTTP request that submitted it, and
// cancellation happens through the task record instead.
func (s *Service) runPipeline(taskID string, opts register.Options) {
	log := s.log.With().Str("task_id", taskID).Logger()

	if err := s.tasks.UpdateStatus(taskID, model.TaskStatusRunning, "", ""); err != nil {
		log.Error().Err(err).Msg("failed to mark task running")
		return
	}

	err := s.pipeline.Run(context.Background(), taskID, opts)
	switch {
	case errors.Is(err, apperrors.ErrTaskCancelled):
		log.Info().Msg("task cancelled")
		if err := s.tasks.UpdateStatus(taskID, model.TaskStatusCancelled, "", ""); err != nil {
			log.Error().Err(err).Msg("failed to mark task cancelled")
		}
	case err != nil:
		log.Error().Err(err).Msg("task failed")
		if err := s.tasks.UpdateStatus(taskID, model.TaskStatusError, "", err.Error()); err != nil {
			log.Error().Err(err).Msg("failed to mark task errored")
		}
	default:
		log.Info().Msg("task done")
		if err := s.tasks.UpdateStatus(taskID, model.TaskStatusDone, `{"status":"ok"}`, ""); err != nil {
			log.Error().Err(err).Msg("failed to mark task done")
		}
	}
}

// Get returns one task record.
func (s *Service) Get(taskID string) (*model.Task, error) {
	return s.tasks.Get(taskID)
}

// Cancel requests cancellation of a pending or running task. The running
// task observes the flipped status at its next progress-update point.
func (s *Service) Cancel(taskID string) (*model.Task, error) {
	t, err := s.tasks.Get(taskID)
	if err != nil {
		return nil, err
	}
	if t.Status == model.TaskStatusPending || t.Status == model.TaskStatusRunning {
		if err := s.tasks.UpdateStatus(taskID, model.TaskStatusCancelled, "", ""); err != nil {
			return nil, err
		}
		t.Status = model.TaskStatusCancelled
	}
	return t, nil
}
