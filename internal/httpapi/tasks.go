package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/runoshun/capsule/internal/domain"
	"github.com/runoshun/capsule/internal/usecase"
)

// taskDetail is the body of GET /v1/tasks/:id.
type taskDetail struct {
	Task         *domain.Task   `json:"task"`
	Parent       *domain.Task   `json:"parent,omitempty"`
	Subtasks     []*domain.Task `json:"subtasks"`
	Blockers     []*domain.Task `json:"blockers"`
	Blocking     []*domain.Task `json:"blocking"`
	CommentCount int            `json:"commentCount"`
}

type mutationResponse struct {
	Task    *domain.Task        `json:"task"`
	History *domain.TaskHistory `json:"history,omitempty"`
}

type deleteResponse struct {
	DeletedIDs   []int `json:"deletedIds"`
	UnblockedIDs []int `json:"unblockedIds"`
}

type completeRequest struct {
	Completed *bool  `json:"completed"`
	Status    string `json:"status"` // Target status when reopening
}

// taskID parses the :id path parameter and responds with 400 when invalid.
func taskID(c *gin.Context) (int, bool) {
	raw := c.Param("id")
	id, ok := domain.ParseTaskRef(raw)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid task id: " + strconv.Quote(raw),
			Code:  CodeInvalidRequest,
			Field: "id",
		})
		return 0, false
	}
	return id, true
}

// normalizeStatus maps a label such as "In Progress" to its canonical value.
// Unknown values are left for input validation to report.
func normalizeStatus(s domain.Status) domain.Status {
	if s == "" || s.IsValid() {
		return s
	}
	if parsed, err := domain.ParseStatus(string(s)); err == nil {
		return parsed
	}
	return s
}

func normalizePriority(p domain.Priority) domain.Priority {
	if parsed, err := domain.ParsePriority(string(p)); err == nil {
		return parsed
	}
	return p
}

// mutate runs fn with conflict retries and records the operation outcome.
func (s *Server) mutate(c *gin.Context, operation string, fn func() error) error {
	err := usecase.RetryOnConflict(c.Request.Context(), s.retryAttempts(), fn, func(attempt int) {
		s.c.Metrics.ObserveRetry()
		logger(c).Warn("retrying after concurrent modification", "operation", operation, "attempt", attempt)
	})
	s.c.Metrics.ObserveOperation(operation, err)
	return err
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var in usecase.NewTaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid task body", err)
		return
	}
	in.Status = normalizeStatus(in.Status)
	in.Priority = normalizePriority(in.Priority)
	in.ActorID = actorID(c)
	in.OrgID = orgID(c)

	var out *usecase.NewTaskOutput
	err := s.mutate(c, "new_task", func() error {
		var err error
		out, err = s.c.NewTaskUseCase().Execute(c.Request.Context(), in)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out.Task)
}

func (s *Server) handleListTasks(c *gin.Context) {
	in := usecase.ListTasksInput{Status: c.Query("status")}
	if raw := c.Query("capsuleId"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "invalid capsuleId", err)
			return
		}
		in.CapsuleID = id
	}
	if raw := c.Query("parentId"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "invalid parentId", err)
			return
		}
		in.ParentID = &id
	}
	if raw := c.Query("roots"); raw != "" {
		roots, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "invalid roots", err)
			return
		}
		in.RootsOnly = roots
	}

	out, err := s.c.ListTasksUseCase().Execute(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": out.Tasks, "count": len(out.Tasks)})
}

func (s *Server) handleShowTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	out, err := s.c.ShowTaskUseCase().Execute(c.Request.Context(), usecase.ShowTaskInput{TaskID: id})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, taskDetail{
		Task:         out.Task,
		Parent:       out.Parent,
		Subtasks:     nonNil(out.Subtasks),
		Blockers:     nonNil(out.Blockers),
		Blocking:     nonNil(out.Blocking),
		CommentCount: out.CommentCount,
	})
}

func (s *Server) handleEditTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	var in usecase.EditTaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid task patch", err)
		return
	}
	if in.Status != nil {
		st := normalizeStatus(*in.Status)
		in.Status = &st
	}
	if in.Priority != nil {
		p := normalizePriority(*in.Priority)
		in.Priority = &p
	}
	in.TaskID = id
	in.ActorID = actorID(c)
	in.OrgID = orgID(c)

	var out *usecase.EditTaskOutput
	err := s.mutate(c, "edit_task", func() error {
		var err error
		out, err = s.c.EditTaskUseCase().Execute(c.Request.Context(), in)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, mutationResponse{Task: out.Task, History: out.History})
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	var out *usecase.DeleteTaskOutput
	err := s.mutate(c, "delete_task", func() error {
		var err error
		out, err = s.c.DeleteTaskUseCase().Execute(c.Request.Context(), usecase.DeleteTaskInput{
			ActorID: actorID(c),
			TaskID:  id,
		})
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, deleteResponse{
		DeletedIDs:   nonNil(out.DeletedIDs),
		UnblockedIDs: nonNil(out.UnblockedIDs),
	})
}

func (s *Server) handleCompleteTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid completion body", err)
		return
	}
	if req.Completed == nil {
		writeError(c, domain.NewValidationError("completed", "is required"))
		return
	}
	in := usecase.CompleteTaskInput{
		ActorID:   actorID(c),
		OrgID:     orgID(c),
		TaskID:    id,
		Completed: *req.Completed,
	}
	if req.Status != "" {
		st, err := domain.ParseStatus(req.Status)
		if err != nil {
			writeError(c, domain.NewValidationError("status", "unknown status "+strconv.Quote(req.Status)))
			return
		}
		in.Status = st
	}

	var out *usecase.CompleteTaskOutput
	err := s.mutate(c, "complete_task", func() error {
		var err error
		out, err = s.c.CompleteTaskUseCase().Execute(c.Request.Context(), in)
		if err == nil && !out.Success {
			return &domain.CompletionRejectedError{Result: domain.CompletionResult{
				Subtasks: out.Subtasks,
				Blockers: out.Blockers,
			}}
		}
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrCompletionRejected) {
			logger(c).Info("completion rejected", "task_id", id,
				"open_subtasks", len(out.Subtasks), "open_blockers", len(out.Blockers))
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleCheckCompletion(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	result, err := s.c.CheckCompletionUseCase().Execute(c.Request.Context(), usecase.CheckCompletionInput{
		OrgID:  orgID(c),
		TaskID: id,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
