package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/zarr2lerobot/pkg/convert"
	"github.com/gwillem/zarr2lerobot/pkg/features"
	"github.com/gwillem/zarr2lerobot/pkg/robot"
)

const (
	headerHeight   = 2 // title + blank line
	progressHeight = 2 // bar + counters
	legendHeight   = 2 // legend row + blank
	footerHeight   = 7 // log box height
	maxLogs        = 5 // number of log messages to show
	borderSize     = 2 // chart border
)

// Axis colors - distinct colors for each axis
var axisColors = map[robot.AxisName]string{
	robot.X: "196", // red
	robot.Y: "46",  // green
	robot.Z: "51",  // cyan
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type convertModel struct {
	conv     *convert.Converter
	cancel   context.CancelFunc
	title    string
	chart    *streamlinechart.Model
	bar      progress.Model
	last     convert.Progress
	width    int      // terminal width
	height   int      // terminal height
	logs     []string // last N log messages
	quitting bool
	done     bool
	err      error
}

func (m *convertModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Messages from the converter
type progressMsg convert.Progress
type logMsg string
type doneMsg struct{ err error }

func waitForProgress(conv *convert.Converter) tea.Cmd {
	return func() tea.Msg {
		return progressMsg(<-conv.Progress())
	}
}

func waitForLog(conv *convert.Converter) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-conv.Logs())
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *convertModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-progressHeight-legendHeight-footerHeight-borderSize, 10)
	return width, height
}

func (m *convertModel) resize() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
	m.bar.Width = w
}

func initialConvertModel(conv *convert.Converter, mode features.Mode, repoID string, cancel context.CancelFunc) convertModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-100, 100),
	)

	// Set up data set styles for each axis
	for _, name := range robot.AllAxes() {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(axisColors[name]))
		chart.SetDataSetStyles(string(name), runes.ThinLineStyle, style)
	}

	title := fmt.Sprintf("LeRobot Convert - %s", cases.Title(language.English).String(string(mode)))
	return convertModel{
		conv:   conv,
		cancel: cancel,
		title:  title + " " + statusStyle.Render(repoID),
		chart:  &chart,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(80)),
	}
}

func (m convertModel) Init() tea.Cmd {
	// Start listening for progress and log updates
	return tea.Batch(
		waitForProgress(m.conv),
		waitForLog(m.conv),
	)
}

func (m convertModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			m.cancel()
			return m, tea.Quit
		}

	case progressMsg:
		p := convert.Progress(msg)
		m.last = p
		if p.State != nil {
			for name, pos := range p.State {
				m.chart.PushDataSet(string(name), pos)
			}
			m.chart.DrawAll()
		}
		return m, waitForProgress(m.conv)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.conv)

	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	}

	return m, nil
}

func (m convertModel) View() string {
	if m.quitting {
		return "Conversion cancelled.\n"
	}
	if m.done {
		return ""
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render(m.title))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	// Progress
	var pct float64
	if m.last.Frames > 0 {
		pct = float64(m.last.Frame) / float64(m.last.Frames)
	}
	sb.WriteString(m.bar.ViewAs(pct))
	sb.WriteString("\n")
	sb.WriteString(statusStyle.Render(fmt.Sprintf("episode %s/%s  frame %s/%s",
		humanize.Comma(int64(m.last.Episode+1)), humanize.Comma(int64(m.last.Episodes)),
		humanize.Comma(int64(m.last.Frame)), humanize.Comma(int64(m.last.Frames)))))
	sb.WriteString("\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20))

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to cancel")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func renderLegend() string {
	var items []string
	for _, name := range robot.AllAxes() {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(axisColors[name])).Bold(true)
		item := colorStyle.Render("━━") + " " + string(name)
		items = append(items, item)
	}
	return strings.Join(items, "  ") + statusStyle.Render("  end effector, normalized")
}
