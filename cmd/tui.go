// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/ldscope/pkg/ld19"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for warnings
}

// TUI model. Records arrive far faster than the screen refreshes, so the
// latest record and counters are sampled on each tick; only errors and
// anomalies are sent as messages.
type model struct {
	title         string
	connInfo      string
	showAll       bool
	receiver      *ld19.Receiver
	snap          ld19.Snapshot
	latest        ld19.MeasurementRecord
	hasLatest     bool
	summary       ld19.Summary
	points        table.Model
	eventLog      []eventLogEntry
	maxLogEntries int
	synchronized  bool
	skippedBytes  uint64
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type eventMsg struct {
	message string
	isError bool
}
type syncMsg struct {
	skippedBytes uint64
}

func initialModel(title, connInfo string, receiver *ld19.Receiver, showAll bool) model {
	columns := []table.Column{
		{Title: "#", Width: 3},
		{Title: "Angle", Width: 9},
		{Title: "Distance", Width: 10},
		{Title: "Intensity", Width: 9},
	}
	points := table.New(
		table.WithColumns(columns),
		table.WithHeight(ld19.PointsPerFrame+1),
		table.WithFocused(false),
	)

	return model{
		title:         title,
		connInfo:      connInfo,
		showAll:       showAll,
		receiver:      receiver,
		points:        points,
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.receiver.Statistics().Reset()
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.snap = m.receiver.Statistics().Snapshot()
		if rec, ok := m.receiver.Publisher().Latest(); ok {
			m.latest = rec
			m.hasLatest = true
			m.summary = ld19.Summarize(rec)
			m.points.SetRows(pointRows(rec))
		}
		return m, tickCmd()

	case syncMsg:
		m.synchronized = true
		m.skippedBytes = msg.skippedBytes
		if msg.skippedBytes > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d bytes", msg.skippedBytes), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}

	case eventMsg:
		m.addLogEntry(msg.message, msg.isError)
	}

	return m, nil
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// pointRows converts a record's points into table rows
func pointRows(rec ld19.MeasurementRecord) []table.Row {
	rows := make([]table.Row, 0, ld19.PointsPerFrame)
	for i, p := range rec.Points {
		distance := "-"
		if p.Distance != 0 {
			distance = fmt.Sprintf("%d mm", p.Distance)
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", i),
			fmt.Sprintf("%.2f°", rec.PointAngle(i)),
			distance,
			fmt.Sprintf("%d", p.Intensity),
		})
	}
	return rows
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render(m.title))
	s.WriteString("\n")
	mode := "Errors only"
	if m.showAll {
		mode = "All frames"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | 'r' reset stats | 'q' quit", m.connInfo, mode)))
	s.WriteString("\n\n")

	// Sync status
	if !m.synchronized {
		s.WriteString(warningStyle.Render("⏳ Waiting for synchronization..."))
	} else {
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.skippedBytes > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d bytes)", m.skippedBytes)))
		}
	}
	s.WriteString("\n\n")

	// Statistics
	snap := m.snap
	total := snap.TotalFrames()
	var validPercent, errorPercent float64
	if total > 0 {
		validPercent = float64(snap.ValidFrames()) * 100.0 / float64(total)
		errorPercent = float64(snap.Errors()) * 100.0 / float64(total)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", total)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", snap.ValidFrames(), validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", snap.Errors(), errorPercent)),
	))
	statsContent.WriteString(fmt.Sprintf("%s %d   %s %d   %s %d\n",
		statsLabelStyle.Render("Measurement:"), snap.MeasurementFrames,
		statsLabelStyle.Render("Health:"), snap.HealthFrames,
		statsLabelStyle.Render("Manufacturer:"), snap.ManufacturerFrames,
	))

	if snap.CRCErrors > 0 || snap.FramingErrors > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("CRC Errors:"), errorStyle.Render(fmt.Sprintf("%d", snap.CRCErrors)),
			statsLabelStyle.Render("Framing Errors:"), errorStyle.Render(fmt.Sprintf("%d", snap.FramingErrors)),
		))
	}
	if snap.Anomalies > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Anomalies:"), warningStyle.Render(fmt.Sprintf("%d", snap.Anomalies)),
		))
	}

	errorRate := statsValueStyle.Render(fmt.Sprintf("%.1f err/s", snap.ErrorRate))
	if snap.ErrorRate > 0 {
		errorRate = errorStyle.Render(fmt.Sprintf("%.1f err/s", snap.ErrorRate))
	}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", snap.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), errorRate,
		statsLabelStyle.Render("Bytes:"), statsValueStyle.Render(fmt.Sprintf("%.0f B/s", snap.ByteRate)),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Latest scan section (only shown once a record arrived)
	if m.hasLatest {
		s.WriteString(statsLabelStyle.Render("Latest Scan:"))
		s.WriteString("\n")

		scanContent := strings.Builder{}
		scanContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("Speed:"), statsValueStyle.Render(fmt.Sprintf("%.1f RPM", m.latest.RPM())),
			statsLabelStyle.Render("Timestamp:"), statsValueStyle.Render(fmt.Sprintf("%d ms", m.latest.Timestamp)),
		))
		scanContent.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Angle:"),
			statsValueStyle.Render(fmt.Sprintf("%.2f° -> %.2f° (%.2f°)",
				m.latest.StartAngleDegrees(), m.latest.EndAngleDegrees(), m.latest.AngularSpan())),
		))
		scanContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d/%d", m.summary.Valid, ld19.PointsPerFrame)),
			statsLabelStyle.Render("Distance:"),
			statsValueStyle.Render(fmt.Sprintf("%.0f-%.0f mm (mean %.0f, σ %.1f)",
				m.summary.MinDistance, m.summary.MaxDistance, m.summary.MeanDistance, m.summary.StdDevDistance)),
		))
		scanContent.WriteString(m.points.View())

		s.WriteString(boxStyle.Render(scanContent.String()))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 15
	if m.hasLatest {
		logHeight -= ld19.PointsPerFrame + 6
	}
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}

// runTUIMode runs the live monitor, feeding conn through a receiver on a
// background goroutine
func runTUIMode(title string, conn Connection, connInfo string, showAll bool) error {
	receiver := ld19.NewReceiver(nil)
	stats := receiver.Statistics()
	validator := ld19.NewRecordValidator()

	m := initialModel(title, connInfo, receiver, showAll)
	p := tea.NewProgram(m)

	synchronized := false
	markSynchronized := func() {
		if !synchronized {
			synchronized = true
			p.Send(syncMsg{skippedBytes: stats.Snapshot().SkippedBytes})
		}
	}

	receiver.Publisher().RegisterHandler(func(rec ld19.MeasurementRecord) {
		markSynchronized()
		anomalies := validator.Validate(rec)
		stats.AddAnomalies(len(anomalies))
		for _, a := range anomalies {
			p.Send(eventMsg{message: fmt.Sprintf("%s at %.2f°: %s", a.Type, rec.StartAngleDegrees(), a.Message), isError: false})
		}
	})
	receiver.SetFrameHandler(func(kind ld19.FrameKind, frame []byte) {
		markSynchronized()
		if kind != ld19.FrameMeasurement && showAll {
			p.Send(eventMsg{message: fmt.Sprintf("%s frame (% X)", kind, frame[2:len(frame)-1])})
		}
	})

	go func() {
		buf := make([]byte, ld19.MaxFrameSize)
		for {
			n, err := conn.Read(buf)
			for i := 0; i < n; i++ {
				if _, decodeErr := receiver.HandleByte(buf[i]); decodeErr != nil && synchronized {
					p.Send(eventMsg{message: decodeErr.Error(), isError: true})
				}
			}
			if errors.Is(err, ErrConnectionClosed) {
				p.Send(eventMsg{message: "Connection closed", isError: true})
				return
			}
			if err != nil {
				log.Printf("Read error: %v", err)
			}
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	return nil
}
