package ui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/gomedia/store"
)

func TestFormatSpeed(t *testing.T) {
	tests := []struct {
		bytesPerSec float64
		expected    string
	}{
		{500, "500 B/s"},
		{1024, "1.00 KB/s"},
		{1572864, "1.50 MB/s"},
		{1073741824, "1.00 GB/s"},
	}

	for _, tt := range tests {
		result := formatSpeed(tt.bytesPerSec)
		if result != tt.expected {
			t.Errorf("formatSpeed(%v) = %v; want %v", tt.bytesPerSec, result, tt.expected)
		}
	}
}

func TestFormatETA(t *testing.T) {
	tests := []struct {
		progress       float64
		bytesPerMs     float64
		totalBytes     int64
		completedBytes int64
		expected       string
	}{
		{0.0, 1000, 10000, 0, "Calculating..."},
		{0.5, 0, 10000, 5000, "Calculating..."},
		{0.5, 1, 10000, 5000, "5s"},
		{1.0, 10, 1000, 1000, "0s"},
		{0.1, 0.001, 1 << 40, 1 << 30, "> 1d"},
	}

	for _, tt := range tests {
		result := formatETA(tt.progress, tt.bytesPerMs, tt.totalBytes, tt.completedBytes)
		if result != tt.expected {
			t.Errorf("formatETA(%v, %v, %v, %v) = %v; want %v",
				tt.progress, tt.bytesPerMs, tt.totalBytes, tt.completedBytes, result, tt.expected)
		}
	}
}

func TestTransferState_Totals(t *testing.T) {
	s := newTransferState()
	s.Apply(store.JobRecord{ID: "dir", Folder: true, State: store.StateCompleted})
	s.Apply(store.JobRecord{ID: "a", State: store.StateInProgress, TotalBytes: 100, BytesTransferred: 40, SourcePath: "/src/a"})
	s.Apply(store.JobRecord{ID: "b", State: store.StateCompleted, TotalBytes: 50, BytesTransferred: 50})
	s.Apply(store.JobRecord{ID: "c", State: store.StateFailed, TotalBytes: 10})
	// a later record replaces the earlier one
	s.Apply(store.JobRecord{ID: "a", State: store.StateInProgress, TotalBytes: 100, BytesTransferred: 60, SourcePath: "/src/a"})

	files, done, failed, total, completed := s.Totals()
	assert.Equal(t, 3, files)
	assert.Equal(t, 1, done)
	assert.Equal(t, 1, failed)
	assert.Equal(t, int64(160), total)
	assert.Equal(t, int64(110), completed)

	active := s.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "/src/a", active[0].SourcePath)
}

func TestTransferModel_Initializing(t *testing.T) {
	m := NewTransferModel("copy /a -> /b")
	if !strings.Contains(m.View(), "Initializing...") {
		t.Errorf("Expected Initializing view when width is 0")
	}
}

func TestTransferModel_Updates(t *testing.T) {
	var model tea.Model = NewTransferModel("copy /a -> /b")

	model, _ = model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	model, _ = model.Update(JobUpdateMsg{ID: "a", State: store.StateInProgress, TotalBytes: 2048, BytesTransferred: 1024, SourcePath: "/a/big.bin"})

	view := model.View()
	assert.Contains(t, view, "copy /a -> /b")
	assert.Contains(t, view, "Files: 0/1")
	assert.Contains(t, view, "1.00 KB / 2.00 KB")
	assert.Contains(t, view, "/a/big.bin")

	model, cmd := model.Update(TransferDoneMsg{})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.False(t, model.(TransferModel).Aborted())
}

func TestTransferModel_ShowsFailures(t *testing.T) {
	var model tea.Model = NewTransferModel("move /a -> /b")
	model, _ = model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	model, _ = model.Update(JobUpdateMsg{ID: "x", State: store.StateFailed, TotalBytes: 1, Error: "boom"})
	model, _ = model.Update(TransferDoneMsg{Err: errors.New("boom")})

	assert.Contains(t, model.View(), "1 failed")
}

func TestTransferModel_QuitAborts(t *testing.T) {
	var model tea.Model = NewTransferModel("copy /a -> /b")

	model, cmd := model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.True(t, model.(TransferModel).Aborted())
}
