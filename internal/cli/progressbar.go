package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	bar "github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/matzehuels/zarrtools/pkg/progress"
)

const barWidth = 40

// statsMsg carries a progress snapshot into the model.
type statsMsg progress.Stats

// titleMsg replaces the title, e.g. when a pipeline moves to its next stage.
type titleMsg string

// finishMsg ends the program and clears the bar.
type finishMsg struct{}

// progressModel renders one running operation:
//
//	[00:00:03] ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━ 3/8 (37%) level 1 rw:0.12/0.40 p:0.05
type progressModel struct {
	title string
	start time.Time
	bar   bar.Model
	stats progress.Stats
	done  bool
}

func newProgressModel(title string) progressModel {
	return progressModel{
		title: title,
		start: time.Now(),
		bar:   bar.New(bar.WithDefaultGradient(), bar.WithWidth(barWidth), bar.WithoutPercentage()),
	}
}

func (m progressModel) Init() tea.Cmd {
	return nil
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statsMsg:
		m.stats = progress.Stats(msg)
	case titleMsg:
		m.title = string(msg)
		m.stats = progress.Stats{}
	case finishMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m progressModel) View() string {
	if m.done {
		return ""
	}
	s := m.stats
	line := fmt.Sprintf("[%s] %s %d/%d (%d%%)",
		formatElapsed(time.Since(m.start)), m.bar.ViewAs(s.Fraction()),
		s.Step, s.NumSteps, int(100*s.Fraction()))
	if m.title != "" {
		line += " " + StyleValue.Render(m.title)
	}
	return line + " " + styleBar.Render(s.Message())
}

// formatElapsed formats d as hh:mm:ss.
func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	return fmt.Sprintf("%02d:%02d:%02d", h, m, d/time.Second)
}

// progressBar draws a progress model on stderr while an operation runs.
// The zero value, and a bar created with progress disabled, does nothing.
type progressBar struct {
	program *tea.Program
	done    chan struct{}
}

// newProgressBar starts a bar titled title, or returns an inert bar when
// progress output is disabled.
func (c *CLI) newProgressBar(ctx context.Context, title string) *progressBar {
	if !c.progressEnabled() {
		return &progressBar{}
	}
	p := tea.NewProgram(newProgressModel(title),
		tea.WithContext(ctx),
		tea.WithOutput(os.Stderr),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)
	b := &progressBar{program: p, done: make(chan struct{})}
	go func() {
		defer close(b.done)
		if _, err := p.Run(); err != nil && ctx.Err() == nil {
			c.Logger.Debug("progress bar stopped", "error", err)
		}
	}()
	return b
}

// Callback forwards progress snapshots to the bar. It returns nil for an
// inert bar.
func (b *progressBar) Callback() progress.Callback {
	if b.program == nil {
		return nil
	}
	return func(s progress.Stats) { b.program.Send(statsMsg(s)) }
}

// Titled sets the title shown next to the bar and returns Callback.
func (b *progressBar) Titled(title string) progress.Callback {
	if b.program == nil {
		return nil
	}
	b.program.Send(titleMsg(title))
	return b.Callback()
}

// Finish clears the bar and waits for it to stop drawing.
func (b *progressBar) Finish() {
	if b.program == nil {
		return
	}
	b.program.Send(finishMsg{})
	<-b.done
}
