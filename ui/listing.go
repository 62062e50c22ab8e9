// Package ui renders gmedia listings for the terminal.
package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/franksops/gomedia/adapter"
	"github.com/franksops/gomedia/store"
)

const timeLayout = "2006-01-02 15:04"

// Printer writes styled output to w. Colors are dropped automatically when
// w is not a terminal.
type Printer struct {
	w io.Writer

	headerStyle  lipgloss.Style
	dirStyle     lipgloss.Style
	infoStyle    lipgloss.Style
	errorStyle   lipgloss.Style
	successStyle lipgloss.Style
}

func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:            w,
		headerStyle:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		dirStyle:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("78")),
		infoStyle:    r.NewStyle().Foreground(lipgloss.Color("241")),
		errorStyle:   r.NewStyle().Foreground(lipgloss.Color("196")),
		successStyle: r.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
	}
}

// Writer returns the underlying writer for unstyled output.
func (p *Printer) Writer() io.Writer { return p.w }

// Entries prints one row per entry: name, size, type and modification
// time. Folder names end in "/".
func (p *Printer) Entries(entries []*adapter.FileEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(p.w, p.infoStyle.Render("(empty)"))
		return
	}

	nameWidth := len("NAME")
	for _, e := range entries {
		nameWidth = max(nameWidth, len(displayName(e)))
	}

	fmt.Fprintln(p.w, p.headerStyle.Render(fmt.Sprintf("%-*s  %10s  %-24s  %s", nameWidth, "NAME", "SIZE", "TYPE", "MODIFIED")))
	for _, e := range entries {
		name := fmt.Sprintf("%-*s", nameWidth, displayName(e))
		size, kind := "-", "folder"
		if e.IsDir() {
			name = p.dirStyle.Render(name)
		} else {
			size = FormatSize(e.Size)
			kind = e.MimeType
			if kind == "" {
				kind = "-"
			}
		}
		fmt.Fprintf(p.w, "%s  %10s  %-24s  %s\n", name, size, truncate(kind, 24), formatTime(e.ModifiedAt))
	}
}

// Entry prints every field of e.
func (p *Printer) Entry(e *adapter.FileEntry) {
	rows := [][2]string{
		{"Path", e.Path},
		{"Name", e.Name},
		{"Type", string(e.Type)},
	}
	if !e.IsDir() {
		rows = append(rows,
			[2]string{"Size", fmt.Sprintf("%s (%d bytes)", FormatSize(e.Size), e.Size)},
			[2]string{"Extension", e.Extension},
			[2]string{"MIME", e.MimeType},
		)
		if e.Width > 0 && e.Height > 0 {
			rows = append(rows, [2]string{"Dimensions", fmt.Sprintf("%dx%d", e.Width, e.Height)})
		}
	}
	rows = append(rows,
		[2]string{"Created", formatTime(e.CreatedAt)},
		[2]string{"Modified", formatTime(e.ModifiedAt)},
	)

	for _, row := range rows {
		fmt.Fprintf(p.w, "%s %s\n", p.headerStyle.Render(fmt.Sprintf("%-11s", row[0]+":")), row[1])
	}
}

// Jobs prints journaled transfer jobs.
func (p *Printer) Jobs(jobs []*store.JobRecord) {
	if len(jobs) == 0 {
		fmt.Fprintln(p.w, p.infoStyle.Render("no journaled jobs"))
		return
	}

	fmt.Fprintln(p.w, p.headerStyle.Render(fmt.Sprintf("%-16s  %-4s  %-10s  %21s  %s", "UPDATED", "OP", "STATE", "PROGRESS", "PATHS")))
	for _, j := range jobs {
		state := fmt.Sprintf("%-10s", j.State)
		switch j.State {
		case store.StateFailed:
			state = p.errorStyle.Render(state)
		case store.StateCompleted:
			state = p.successStyle.Render(state)
		}
		progress := FormatSize(j.BytesTransferred) + " / " + FormatSize(j.TotalBytes)
		fmt.Fprintf(p.w, "%-16s  %-4s  %s  %21s  %s -> %s\n",
			formatTime(j.UpdatedAt), j.Op, state, progress, j.SourcePath, j.DestinationPath)
		if j.Error != "" {
			fmt.Fprintln(p.w, "  "+p.errorStyle.Render(j.Error))
		}
	}
}

// Success prints a confirmation line.
func (p *Printer) Success(format string, args ...any) {
	fmt.Fprintln(p.w, p.successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints err with its kind.
func (p *Printer) Error(err error) {
	fmt.Fprintln(p.w, p.errorStyle.Render(fmt.Sprintf("error (%s): %v", adapter.KindOf(err), err)))
}

// Info prints a dimmed line.
func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintln(p.w, p.infoStyle.Render(fmt.Sprintf(format, args...)))
}

// FormatSize renders n bytes with a binary unit.
func FormatSize(n int64) string {
	size := float64(n)
	if size >= 1024*1024*1024 {
		return fmt.Sprintf("%.2f GB", size/(1024*1024*1024))
	} else if size >= 1024*1024 {
		return fmt.Sprintf("%.2f MB", size/(1024*1024))
	} else if size >= 1024 {
		return fmt.Sprintf("%.2f KB", size/1024)
	}
	return fmt.Sprintf("%d B", n)
}

func displayName(e *adapter.FileEntry) string {
	if e.IsDir() {
		return e.Name + "/"
	}
	return e.Name
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// Names returns the entries' display names, one per line.
func Names(entries []*adapter.FileEntry) string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, displayName(e))
	}
	return strings.Join(names, "\n")
}
