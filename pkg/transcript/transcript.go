// Package transcript renders the council's message stream to a
// terminal: per-agent colors, a system/tool badge row, word-wrapped
// message bodies, and an optional
// JSON line-per-message mode for host shells that want structured
// output instead of styled text.
package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/socratic-council/council/pkg/council"
)

var agentColors = []lipgloss.Color{
	lipgloss.Color("63"),  // Blue
	lipgloss.Color("212"), // Pink
	lipgloss.Color("86"),  // Green
	lipgloss.Color("214"), // Orange
	lipgloss.Color("99"),  // Purple
}

var (
	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			Italic(true)

	systemBadgeStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("235")).
				Foreground(lipgloss.Color("244")).
				Padding(0, 1).
				MarginRight(1)

	toolBadgeStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("24")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1).
			MarginRight(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238"))

	metricsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

// Format selects plain styled-terminal output or one-JSON-object-per-line.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Writer renders council messages as they're emitted.
type Writer struct {
	out         io.Writer
	format      Format
	width       int
	showMetrics bool
	nameColors  map[council.AgentID]lipgloss.Style
	nextColor   int
}

// New builds a transcript writer over out. width is used for
// word-wrapping in text mode; 0 defaults to 80.
func New(out io.Writer, format Format, width int, showMetrics bool) *Writer {
	if width <= 0 {
		width = 80
	}
	return &Writer{
		out:         out,
		format:      format,
		width:       width,
		showMetrics: showMetrics,
		nameColors:  make(map[council.AgentID]lipgloss.Style),
	}
}

func (w *Writer) styleFor(agent council.AgentID) lipgloss.Style {
	if s, ok := w.nameColors[agent]; ok {
		return s
	}
	color := agentColors[w.nextColor%len(agentColors)]
	w.nextColor++
	style := lipgloss.NewStyle().Foreground(color).Bold(true)
	w.nameColors[agent] = style
	return style
}

type jsonLine struct {
	Source    string `json:"source"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Model     string `json:"model,omitempty"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
}

// WriteMessage renders one completed message. names maps agent ids to a
// display name for the header line.
func (w *Writer) WriteMessage(msg council.Message, names map[council.AgentID]string) {
	if w.format == FormatJSON {
		w.writeJSON(msg)
		return
	}

	switch msg.Source {
	case council.SourceSystem:
		w.writeSystem(msg)
	case council.SourceTool:
		w.writeTool(msg)
	default:
		w.writeAgent(msg, names)
	}
}

func (w *Writer) writeJSON(msg council.Message) {
	line := jsonLine{
		Source:    string(msg.Source),
		Content:   msg.Content,
		Timestamp: msg.Timestamp.Format(time.RFC3339Nano),
	}
	if msg.Metadata != nil {
		line.Model = msg.Metadata.Model
		line.LatencyMS = msg.Metadata.LatencyMS
	}
	data, err := json.Marshal(line)
	if err != nil {
		return
	}
	fmt.Fprintln(w.out, string(data))
}

func (w *Writer) writeSystem(msg council.Message) {
	badge := systemBadgeStyle.Render("SYSTEM")
	fmt.Fprintf(w.out, "%s %s\n", badge, systemStyle.Render(msg.Content))
}

func (w *Writer) writeTool(msg council.Message) {
	badge := toolBadgeStyle.Render("TOOL")
	body := wrapText(msg.Content, w.width-10, "  ")
	fmt.Fprintf(w.out, "%s %s\n", badge, body)
}

func (w *Writer) writeAgent(msg council.Message, names map[council.AgentID]string) {
	agent := council.AgentID(msg.Source)
	name := names[agent]
	if name == "" {
		name = string(agent)
	}
	style := w.styleFor(agent)
	header := style.Render(name)
	ts := timestampStyle.Render(msg.Timestamp.Format("15:04:05"))

	fmt.Fprintf(w.out, "%s %s\n", header, ts)
	fmt.Fprintln(w.out, wrapText(msg.Content, w.width, ""))

	if w.showMetrics && msg.Usage != nil {
		metrics := fmt.Sprintf("(%d in / %d out tokens", msg.Usage.InputTokens, msg.Usage.OutputTokens)
		if msg.Metadata != nil {
			metrics += fmt.Sprintf(", %dms", msg.Metadata.LatencyMS)
		}
		metrics += ")"
		fmt.Fprintln(w.out, metricsStyle.Render(metrics))
	}
	fmt.Fprintln(w.out)
}

// WriteError renders an error event, tagged with the offending agent
// when known.
func (w *Writer) WriteError(agent council.AgentID, message string) {
	if w.format == FormatJSON {
		data, _ := json.Marshal(map[string]string{"source": "error", "agent": string(agent), "content": message})
		fmt.Fprintln(w.out, string(data))
		return
	}
	fmt.Fprintln(w.out, errorStyle.Render(fmt.Sprintf("[error: %s] %s", agent, message)))
}

// wrapText word-wraps s to width, prefixing every line with indent.
func wrapText(s string, width int, indent string) string {
	if width <= 0 {
		width = 80
	}
	words := strings.Fields(s)
	if len(words) == 0 {
		return indent
	}

	var lines []string
	var line strings.Builder
	line.WriteString(indent)
	lineLen := len(indent)

	for _, word := range words {
		if lineLen > len(indent) && lineLen+1+len(word) > width {
			lines = append(lines, line.String())
			line.Reset()
			line.WriteString(indent)
			lineLen = len(indent)
		}
		if lineLen > len(indent) {
			line.WriteString(" ")
			lineLen++
		}
		line.WriteString(word)
		lineLen += len(word)
	}
	lines = append(lines, line.String())
	return strings.Join(lines, "\n")
}
