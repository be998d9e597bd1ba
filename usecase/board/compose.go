package board

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/fastygo/taskboard/domain"
)

// Draft is the compose form: the fields of the next task and its pending upload.
type Draft struct {
	Title       string
	Description string
	File        *domain.PendingUpload
}

// DraftView is the serialisable shape of a Draft without file contents.
type DraftView struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	File        *domain.PendingUpload `json:"file,omitempty"`
}

func (d Draft) view() DraftView {
	v := DraftView{Title: d.Title, Description: d.Description}
	if d.File != nil {
		v.File = &domain.PendingUpload{Filename: d.File.Filename, ContentType: d.File.ContentType}
	}
	return v
}

// UploadKey derives a collision-resistant object key from the original filename
// and a nanosecond timestamp.
func UploadKey(filename string, at time.Time) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if name == "" || name == "." || name == "/" {
		name = "upload"
	}
	return fmt.Sprintf("%s-%d", name, at.UnixNano())
}
