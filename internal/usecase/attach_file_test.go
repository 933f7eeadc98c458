package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runoshun/capsule/internal/domain"
)

func TestAttachFile_Execute(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		want     string
	}{
		{name: "plain", fileName: "report.pdf", want: "report.pdf"},
		{name: "unix path", fileName: "/tmp/uploads/report.pdf", want: "report.pdf"},
		{name: "windows path", fileName: `C:\Users\ada\report.pdf`, want: "report.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.task(1, domain.StatusTodo)
			uc := NewAttachFile(f.repo, f.clock, f.logger)

			out, err := uc.Execute(context.Background(), AttachFileInput{TaskID: 1, ActorID: "u1", FileName: tt.fileName})

			require.NoError(t, err)
			assert.Equal(t, domain.ChangeFileAttached, out.History.ChangeType)
			history := f.repo.History(1)
			require.Len(t, history, 1)
			assert.Equal(t, domain.FieldChange{Old: nil, New: tt.want}, history[0].ChangeDescription[domain.FieldFile])
		})
	}
}

func TestAttachFile_Execute_Errors(t *testing.T) {
	f := newFixture()
	f.task(1, domain.StatusTodo)
	uc := NewAttachFile(f.repo, f.clock, f.logger)

	_, err := uc.Execute(context.Background(), AttachFileInput{TaskID: 1, FileName: " "})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = uc.Execute(context.Background(), AttachFileInput{TaskID: 1, FileName: "dir/"})
	assert.NoError(t, err, "trailing slashes are stripped")

	_, err = uc.Execute(context.Background(), AttachFileInput{TaskID: 1, FileName: "/"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = uc.Execute(context.Background(), AttachFileInput{TaskID: 1, FileName: strings.Repeat("a", 256)})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = uc.Execute(context.Background(), AttachFileInput{TaskID: 2, FileName: "a.txt"})
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}
