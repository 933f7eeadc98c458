package usecase

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/runoshun/capsule/internal/domain"
	"github.com/runoshun/capsule/internal/usecase/shared"
)

// AttachFileInput contains the parameters for recording an attachment.
type AttachFileInput struct {
	ActorID  string `json:"-"`
	FileName string `json:"fileName" validate:"notblank,max=255"`
	TaskID   int    `json:"-"`
}

// AttachFileOutput contains the recorded history entry.
type AttachFileOutput struct {
	History *domain.TaskHistory
}

// AttachFile records that a file was attached to a task. The file itself is
// stored elsewhere; only the reference is kept in the history.
type AttachFile struct {
	tasks  domain.TaskRepository
	clock  domain.Clock
	logger domain.Logger
}

// NewAttachFile creates a new AttachFile use case.
func NewAttachFile(tasks domain.TaskRepository, clock domain.Clock, logger domain.Logger) *AttachFile {
	return &AttachFile{
		tasks:  tasks,
		clock:  clock,
		logger: logger,
	}
}

// Execute appends a fileAttached entry carrying the base name of the file.
func (uc *AttachFile) Execute(ctx context.Context, in AttachFileInput) (*AttachFileOutput, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(in.FileName), `\`, "/"))
	if name == "." || name == "/" {
		return nil, domain.NewValidationError("fileName", "is not a file name")
	}

	var out AttachFileOutput
	err := uc.tasks.Update(ctx, func(tx domain.TaskTx) error {
		if _, err := shared.GetTask(tx, in.TaskID); err != nil {
			return err
		}
		entry := domain.NewEventEntry(in.TaskID, in.ActorID, domain.ChangeFileAttached, domain.ChangeDescription{
			domain.FieldFile: {Old: nil, New: name},
		}, uc.clock.Now())
		if err := tx.AppendHistory(entry); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		out.History = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info(in.TaskID, "task", fmt.Sprintf("attached %q", name))
	return &out, nil
}
