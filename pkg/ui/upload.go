package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rescp17/streamlite/internal/style"
	"github.com/rescp17/streamlite/internal/util"
)

type UploadProgressMsg struct {
	Sent, Total int64
}

type UploadDoneMsg struct {
	Err error
}

// UploadModel shows a progress bar for one upload. The caller feeds it
// UploadProgressMsg and a final UploadDoneMsg through Program.Send.
type UploadModel struct {
	name      string
	progress  progress.Model
	sent      int64
	total     int64
	done      bool
	cancelled bool
	err       error
}

func NewUploadModel(name string, total int64) UploadModel {
	return UploadModel{
		name:     name,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		total:    total,
	}
}

// Err is the upload result once the program has exited.
func (m UploadModel) Err() error { return m.err }

// Cancelled reports whether the user quit before the upload finished.
func (m UploadModel) Cancelled() bool { return m.cancelled }

func (m UploadModel) Init() tea.Cmd { return nil }

// percent is the real byte ratio; the bar is redrawn per update rather
// than animated.
func (m UploadModel) percent() float64 {
	if m.total <= 0 {
		return 0
	}
	return min(float64(m.sent)/float64(m.total), 1)
}

func (m UploadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case UploadProgressMsg:
		m.sent, m.total = msg.Sent, msg.Total
		return m, nil
	case UploadDoneMsg:
		m.done, m.err = true, msg.Err
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.cancelled = !m.done
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m UploadModel) View() string {
	switch {
	case m.done && m.err != nil:
		return style.ErrorStyle.Render(fmt.Sprintf("Upload of %s failed: %v", m.name, m.err)) + "\n"
	case m.done:
		return fmt.Sprintf("Uploaded %s (%s)\n", style.HighlightFontStyle.Render(m.name), util.FormatSize(m.total))
	}
	return fmt.Sprintf("\nUploading %s\n%s %s / %s\n\n%s",
		style.HighlightFontStyle.Render(m.name),
		m.progress.ViewAs(m.percent()),
		util.FormatSize(m.sent), util.FormatSize(m.total),
		style.HelpStyle.Render("q cancel"))
}
