package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/runoshun/capsule/internal/domain"
	"github.com/runoshun/capsule/internal/usecase"
)

type historyResponse struct {
	Entries []domain.TaskHistory `json:"entries"`
	TaskID  int                  `json:"taskId"`
	Deleted bool                 `json:"deleted"`
}

func (s *Server) handleAddComment(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	var in usecase.AddCommentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid comment body", err)
		return
	}
	in.TaskID = id
	in.AuthorID = actorID(c)

	var out *usecase.AddCommentOutput
	err := s.mutate(c, "add_comment", func() error {
		var err error
		out, err = s.c.AddCommentUseCase().Execute(c.Request.Context(), in)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out.Comment)
}

func (s *Server) handleCommentTree(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	out, err := s.c.GetCommentTreeUseCase().Execute(c.Request.Context(), usecase.GetCommentTreeInput{TaskID: id})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": nonNil(out.Roots), "count": out.Count})
}

func (s *Server) handleHistory(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	out, err := s.c.GetHistoryUseCase().Execute(c.Request.Context(), usecase.GetHistoryInput{TaskID: id})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, historyResponse{
		Entries: nonNil(out.Entries),
		TaskID:  id,
		Deleted: out.Deleted,
	})
}

func (s *Server) handleAttachFile(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	var in usecase.AttachFileInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid attachment body", err)
		return
	}
	in.TaskID = id
	in.ActorID = actorID(c)

	var out *usecase.AttachFileOutput
	err := s.mutate(c, "attach_file", func() error {
		var err error
		out, err = s.c.AttachFileUseCase().Execute(c.Request.Context(), in)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out.History)
}
