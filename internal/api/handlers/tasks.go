package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sokolovdp/finmars-core-sub005/internal/apperrors"
	"github.com/sokolovdp/finmars-core-sub005/internal/task"
)

// TaskHandler handles background-task HTTP requests
type TaskHandler struct {
	tasks *task.Service
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(tasks *task.Service) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// Get returns one task record with its progress.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.tasks.Get(chi.URLParam(r, "id"))
	if errors.Is(err, apperrors.ErrTaskNotFound) {
		respondError(w, http.StatusNotFound, "Task not found", err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to retrieve task", err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// Cancel requests cancellation of a running task.
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	t, err := h.tasks.Cancel(chi.URLParam(r, "id"))
	if errors.Is(err, apperrors.ErrTaskNotFound) {
		respondError(w, http.StatusNotFound, "Task not found", err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to cancel task", err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}
