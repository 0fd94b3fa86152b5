package stream

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/adamavenir/aioffice/internal/apperr"
	"github.com/adamavenir/aioffice/internal/types"
)

// MaxAttachments caps the files sent with one message.
const MaxAttachments = 8

// Attachment is a file queued in the composer.
type Attachment struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// FileAttachment queues a file from disk.
func FileAttachment(path string) (Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Attachment{}, err
	}
	if info.IsDir() {
		return Attachment{}, fmt.Errorf("%s is a directory", path)
	}
	return Attachment{
		Name: filepath.Base(path),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// Composer is the per-channel composition state.
type Composer struct {
	ReplyTo     *int64
	ThreadRoot  *int64
	Attachments []Attachment
	DragCounter int
}

// AddAttachments queues files up to MaxAttachments. Files past the cap
// are discarded and reported as a validation error.
func (c *Composer) AddAttachments(files ...Attachment) error {
	room := MaxAttachments - len(c.Attachments)
	if room < 0 {
		room = 0
	}
	if len(files) <= room {
		c.Attachments = append(c.Attachments, files...)
		return nil
	}
	c.Attachments = append(c.Attachments, files[:room]...)
	return apperr.Validation("attach", fmt.Sprintf("at most %d attachments per message; %d discarded", MaxAttachments, len(files)-room))
}

// RemoveAttachment drops the queued file at index i.
func (c *Composer) RemoveAttachment(i int) {
	if i < 0 || i >= len(c.Attachments) {
		return
	}
	c.Attachments = append(c.Attachments[:i], c.Attachments[i+1:]...)
}

// DragEnter and DragLeave track nested drag hover; Dragging is true while
// the counter is positive.
func (c *Composer) DragEnter() { c.DragCounter++ }

func (c *Composer) DragLeave() {
	if c.DragCounter > 0 {
		c.DragCounter--
	}
}

func (c *Composer) Dragging() bool { return c.DragCounter > 0 }

// Reset clears every composition field.
func (c *Composer) Reset() {
	*c = Composer{}
}

func (c Composer) clone() Composer {
	out := c
	if c.ReplyTo != nil {
		v := *c.ReplyTo
		out.ReplyTo = &v
	}
	if c.ThreadRoot != nil {
		v := *c.ThreadRoot
		out.ThreadRoot = &v
	}
	out.Attachments = append([]Attachment(nil), c.Attachments...)
	return out
}

// ComposeContent appends an "Attachments:" block of bullet links to text.
// Images also get an embedded image link.
func ComposeContent(text string, files []types.FileDescriptor) string {
	text = strings.TrimRight(text, " \t\n")
	if len(files) == 0 {
		return text
	}
	var b strings.Builder
	if text != "" {
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	b.WriteString("Attachments:\n")
	for _, f := range files {
		name := f.OriginalName
		if name == "" {
			name = f.FileName
		}
		link := f.URL
		if link == "" {
			link = f.Path
		}
		fmt.Fprintf(&b, "- [%s](%s)\n", name, link)
		if strings.HasPrefix(f.ContentType, "image/") {
			fmt.Fprintf(&b, "  ![%s](%s)\n", name, link)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
