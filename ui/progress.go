package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/franksops/gomedia/store"
)

// maxActiveRows bounds the running jobs listed under the overall bar.
const maxActiveRows = 5

// JobUpdateMsg carries one saved job record into the model.
type JobUpdateMsg store.JobRecord

// TransferDoneMsg ends the program once the copy or move returns.
type TransferDoneMsg struct {
	Err error
}

// TransferState aggregates the job records of one copy or move.
type TransferState struct {
	jobs map[string]store.JobRecord
}

func newTransferState() TransferState {
	return TransferState{jobs: make(map[string]store.JobRecord)}
}

// Apply records the latest version of rec.
func (s TransferState) Apply(rec store.JobRecord) {
	s.jobs[rec.ID] = rec
}

// Totals sums the file jobs seen so far. A failed folder job counts as a
// failure but not as a file.
func (s TransferState) Totals() (files, done, failed int, bytes, doneBytes int64) {
	for _, j := range s.jobs {
		if j.Folder {
			if j.State == store.StateFailed {
				failed++
			}
			continue
		}
		files++
		bytes += j.TotalBytes
		doneBytes += j.BytesTransferred
		switch j.State {
		case store.StateCompleted:
			done++
		case store.StateFailed:
			failed++
		}
	}
	return
}

// Active returns the running file jobs, largest first.
func (s TransferState) Active() []store.JobRecord {
	var active []store.JobRecord
	for _, j := range s.jobs {
		if !j.Folder && j.State == store.StateInProgress && j.TotalBytes > 0 {
			active = append(active, j)
		}
	}
	sort.Slice(active, func(a, b int) bool {
		if active[a].TotalBytes != active[b].TotalBytes {
			return active[a].TotalBytes > active[b].TotalBytes
		}
		return active[a].SourcePath < active[b].SourcePath
	})
	return active
}

// TransferModel is the bubbletea model drawn while gmedia cp or mv runs on
// a terminal.
type TransferModel struct {
	title    string
	state    TransferState
	started  time.Time
	spinner  spinner.Model
	progress progress.Model

	width   int
	done    bool
	aborted bool
	err     error

	titleStyle   lipgloss.Style
	infoStyle    lipgloss.Style
	streamStyle  lipgloss.Style
	helpStyle    lipgloss.Style
	errorStyle   lipgloss.Style
	successStyle lipgloss.Style
}

func NewTransferModel(title string) TransferModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return TransferModel{
		title:        title,
		state:        newTransferState(),
		started:      time.Now(),
		spinner:      s,
		progress:     progress.New(progress.WithDefaultGradient()),
		titleStyle:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1),
		infoStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		streamStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
		helpStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1),
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		successStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
	}
}

// Aborted reports whether the user quit before the transfer finished.
func (m TransferModel) Aborted() bool { return m.aborted }

func (m TransferModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m TransferModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.done {
				m.aborted = true
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = max(msg.Width-14, 10)

	case JobUpdateMsg:
		m.state.Apply(store.JobRecord(msg))

	case TransferDoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m TransferModel) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), m.titleStyle.Render(m.title)))

	files, done, failed, total, completed := m.state.Totals()
	var percent float64
	if total > 0 {
		percent = float64(completed) / float64(total)
	}
	elapsed := time.Since(m.started)
	var bytesPerMs float64
	if ms := elapsed.Milliseconds(); ms > 0 {
		bytesPerMs = float64(completed) / float64(ms)
	}

	info := fmt.Sprintf("ETA: %s | Files: %d/%d | %s / %s | %s",
		formatETA(percent, bytesPerMs, total, completed),
		done, files, FormatSize(completed), FormatSize(total), formatSpeed(bytesPerMs*1000))
	sb.WriteString(m.infoStyle.Render(info) + "\n")
	sb.WriteString(m.progress.ViewAs(percent) + "\n")

	active := m.state.Active()
	for i, j := range active {
		if i == maxActiveRows {
			sb.WriteString(m.infoStyle.Render(fmt.Sprintf("  ... %d more", len(active)-maxActiveRows)) + "\n")
			break
		}
		pct := float64(j.BytesTransferred) / float64(j.TotalBytes)
		sb.WriteString(fmt.Sprintf("  %s %s\n", m.streamStyle.Render(fmt.Sprintf("%3.0f%%", pct*100)), truncatePath(j.SourcePath, 60)))
	}

	switch {
	case failed > 0:
		sb.WriteString(m.errorStyle.Render(fmt.Sprintf("%d failed", failed)))
	case m.done && m.err == nil:
		sb.WriteString(m.successStyle.Render("Transfer complete"))
	default:
		sb.WriteString(m.helpStyle.Render("q/ctrl+c: cancel"))
	}
	return sb.String() + "\n"
}

func truncatePath(p string, n int) string {
	if len(p) <= n {
		return p
	}
	return "..." + p[len(p)-(n-3):]
}

func formatSpeed(bytesPerSec float64) string {
	if bytesPerSec >= 1024*1024*1024 {
		return fmt.Sprintf("%.2f GB/s", bytesPerSec/(1024*1024*1024))
	} else if bytesPerSec >= 1024*1024 {
		return fmt.Sprintf("%.2f MB/s", bytesPerSec/(1024*1024))
	} else if bytesPerSec >= 1024 {
		return fmt.Sprintf("%.2f KB/s", bytesPerSec/1024)
	}
	return fmt.Sprintf("%.0f B/s", bytesPerSec)
}

func formatETA(progress float64, bytesPerMs float64, totalBytes, completedBytes int64) string {
	if progress == 0 || bytesPerMs <= 0 || totalBytes == 0 {
		return "Calculating..."
	}

	remainingBytes := totalBytes - completedBytes
	if remainingBytes <= 0 {
		return "0s"
	}

	// compare before converting; a slow start overflows a Duration
	remainingMs := float64(remainingBytes) / bytesPerMs
	if remainingMs > float64(24*time.Hour/time.Millisecond) {
		return "> 1d"
	}
	d := time.Duration(remainingMs) * time.Millisecond
	return d.Round(time.Second).String()
}
