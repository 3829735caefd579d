package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/coder/websocket"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("231")).Background(lipgloss.Color("24")).Padding(0, 1)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("117"))
	optionStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

// wire is the server frame envelope.
type wire struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type frameMsg wire

type connErrMsg struct{ err error }

// frameWriter is the part of the websocket the model writes to.
type frameWriter interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
}

// frameReader is the part of the websocket the model reads from.
type frameReader interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
}

type chatLine struct {
	id   string
	role string
	text string
}

type widget struct {
	messageID string
	kind      string
	options   []string
}

type chatModel struct {
	ctx    context.Context
	reader frameReader
	writer frameWriter

	lines  []chatLine
	index  map[string]int
	widget *widget
	input  string
	typing bool
	phase  string
	item   string
	status string
	width  int
}

type conn interface {
	frameReader
	frameWriter
}

func newChatModel(ctx context.Context, c conn) chatModel {
	return chatModel{
		ctx:    ctx,
		reader: c,
		writer: c,
		index:  make(map[string]int),
		width:  80,
	}
}

func (m chatModel) readNext() tea.Cmd {
	return func() tea.Msg {
		_, data, err := m.reader.Read(m.ctx)
		if err != nil {
			return connErrMsg{err: err}
		}
		var f wire
		if err := json.Unmarshal(data, &f); err != nil {
			return connErrMsg{err: fmt.Errorf("decode frame: %w", err)}
		}
		return frameMsg(f)
	}
}

func (m chatModel) send(frame map[string]any) tea.Cmd {
	return func() tea.Msg {
		data, err := json.Marshal(frame)
		if err != nil {
			return connErrMsg{err: err}
		}
		if err := m.writer.Write(m.ctx, websocket.MessageText, data); err != nil {
			return connErrMsg{err: err}
		}
		return nil
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(m.send(map[string]any{"type": "open"}), m.readNext())
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case connErrMsg:
		m.status = "disconnected: " + msg.err.Error()
		return m, tea.Quit

	case frameMsg:
		m.apply(wire(msg))
		return m, m.readNext()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Sequence(m.send(map[string]any{"type": "close"}), tea.Quit)
		case tea.KeyEnter:
			line := m.input
			m.input = ""
			frame, problem := m.parseInput(line)
			m.status = problem
			if frame == nil {
				return m, nil
			}
			return m, m.send(frame)
		case tea.KeyBackspace:
			if r := []rune(m.input); len(r) > 0 {
				m.input = string(r[:len(r)-1])
			}
			return m, nil
		case tea.KeySpace:
			m.input += " "
			return m, nil
		case tea.KeyRunes:
			m.input += string(msg.Runes)
			return m, nil
		}
	}
	return m, nil
}

// parseInput maps a typed line to a client frame, or returns a usage
// problem. Slash commands drive the review loops and widgets; anything else
// is sent as text.
func (m chatModel) parseInput(line string) (map[string]any, string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, ""
	}
	if !strings.HasPrefix(line, "/") {
		return map[string]any{"type": "text", "text": line}, ""
	}

	cmd, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	switch cmd {
	case "next", "prev", "skip", "back":
		return map[string]any{"type": "review", "command": cmd}, ""
	case "voice":
		return map[string]any{"type": "voice", "on": arg != "off"}, ""
	case "field":
		// /field property p-1 offer_status sent
		parts := strings.SplitN(arg, " ", 4)
		if len(parts) < 3 {
			return nil, "usage: /field <property|agent> <item_id> <key> [value]"
		}
		value := ""
		if len(parts) == 4 {
			value = parts[3]
		}
		return map[string]any{"type": "field", "kind": parts[0], "item_id": parts[1], "key": parts[2], "value": value}, ""
	}

	var n int
	if _, err := fmt.Sscanf(cmd, "%d", &n); err == nil && m.widget != nil && n >= 1 && n <= len(m.widget.options) {
		return widgetFrame(m.widget.kind, m.widget.options[n-1], n), ""
	}
	return nil, "unknown command " + line
}

// widgetFrame encodes a widget option choice. n is the 1-based option index.
func widgetFrame(kind, option string, n int) map[string]any {
	switch kind {
	case "confirm_help":
		return map[string]any{"type": "confirm_help", "accepted": n == 1}
	case "skip_confirm":
		if n == 1 {
			return map[string]any{"type": "review", "command": "back"}
		}
		return map[string]any{"type": "review", "command": "skip"}
	default:
		return map[string]any{"type": "text", "text": option}
	}
}

func (m *chatModel) upsert(id, role, text string) {
	if i, ok := m.index[id]; ok {
		m.lines[i].text = text
		return
	}
	m.index[id] = len(m.lines)
	m.lines = append(m.lines, chatLine{id: id, role: role, text: text})
}

func (m *chatModel) apply(f wire) {
	switch f.Type {
	case "message":
		var d struct {
			ID      string `json:"id"`
			Role    string `json:"role"`
			Content string `json:"content"`
			Widget  *struct {
				Kind    string   `json:"kind"`
				Options []string `json:"options"`
			} `json:"widget"`
		}
		if json.Unmarshal(f.Data, &d) != nil {
			return
		}
		m.upsert(d.ID, d.Role, d.Content)
		if d.Role == "user" {
			m.widget = nil
		}
		if d.Widget != nil {
			m.widget = &widget{messageID: d.ID, kind: d.Widget.Kind, options: d.Widget.Options}
		}
	case "token":
		var d struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		}
		if json.Unmarshal(f.Data, &d) == nil {
			m.upsert(d.ID, "assistant", d.Text)
		}
	case "widget":
		var d struct {
			MessageID string `json:"message_id"`
			Widget    struct {
				Kind    string   `json:"kind"`
				Options []string `json:"options"`
			} `json:"widget"`
		}
		if json.Unmarshal(f.Data, &d) == nil {
			m.widget = &widget{messageID: d.MessageID, kind: d.Widget.Kind, options: d.Widget.Options}
		}
	case "typing":
		var d struct {
			On bool `json:"on"`
		}
		if json.Unmarshal(f.Data, &d) == nil {
			m.typing = d.On
		}
	case "phase":
		var d struct {
			Phase string  `json:"phase"`
			Step  float64 `json:"step"`
		}
		if json.Unmarshal(f.Data, &d) == nil {
			m.phase = d.Phase
			if d.Phase == "checkin" {
				m.phase = fmt.Sprintf("checkin %g", d.Step)
			}
		}
	case "item":
		var d struct {
			Index int `json:"index"`
			Total int `json:"total"`
			Item  struct {
				Address string `json:"address"`
				Name    string `json:"name"`
			} `json:"item"`
		}
		if json.Unmarshal(f.Data, &d) == nil {
			label := d.Item.Address
			if label == "" {
				label = d.Item.Name
			}
			m.item = fmt.Sprintf("%d/%d %s", d.Index+1, d.Total, label)
		}
	case "celebration":
		var d struct {
			Stage string `json:"stage"`
		}
		if json.Unmarshal(f.Data, &d) != nil {
			return
		}
		switch d.Stage {
		case "start":
			m.status = "🎉"
		case "fade":
			m.status = ""
		}
	case "reset":
		m.lines = nil
		m.index = make(map[string]int)
		m.widget = nil
		m.item = ""
	case "error":
		var d struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(f.Data, &d) == nil {
			m.status = "error: " + d.Error
		}
	}
}

func (m chatModel) View() string {
	var b strings.Builder
	title := "dealdesk"
	if m.phase != "" {
		title += " · " + m.phase
	}
	b.WriteString(headerStyle.Render(title))
	b.WriteString("\n")
	if m.item != "" {
		b.WriteString(dimStyle.Render(m.item))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	wrap := lipgloss.NewStyle().Width(m.width - 2)
	for _, l := range m.lines {
		if l.role == "user" {
			b.WriteString(wrap.Render(userStyle.Render("you: " + l.text)))
		} else {
			b.WriteString(wrap.Render(assistantStyle.Render(l.text)))
		}
		b.WriteString("\n")
	}
	if m.widget != nil {
		for i, opt := range m.widget.options {
			b.WriteString(optionStyle.Render(fmt.Sprintf("  /%d %s", i+1, opt)))
			b.WriteString("\n")
		}
	}
	if m.typing {
		b.WriteString(dimStyle.Render("typing…"))
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString(dimStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString("\n> " + m.input)
	return b.String()
}
