package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/docmentor/docmentor/internal/agent"
	"github.com/docmentor/docmentor/internal/domain"
)

// Searcher is the TUI-facing subset of the document pipeline.
type Searcher interface {
	SearchRelatedChunks(ctx context.Context, query string, topk int) ([]domain.RelatedChunk, error)
}

// Asker generates answers from retrieved chunks.
type Asker interface {
	Ask(ctx context.Context, question string, topk int) (*agent.Answer, error)
}

type mode int

const (
	modeSearch mode = iota
	modeAsk
)

func (m mode) String() string {
	if m == modeAsk {
		return "ask"
	}
	return "search"
}

type searchDoneMsg struct {
	query   string
	results []domain.RelatedChunk
	err     error
}

type answerDoneMsg struct {
	query  string
	answer *agent.Answer
	err    error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	ctx      context.Context
	searcher Searcher
	asker    Asker
	topK     int

	input     textinput.Model
	viewport  viewport.Model
	mode      mode
	results   []domain.RelatedChunk
	answer    string
	summary   string
	status    string
	cursor    int
	ready     bool
	busy      bool
	lastQuery string
}

// New creates a new TUI model instance. A nil asker disables ask mode.
func New(ctx context.Context, searcher Searcher, asker Asker, topK int, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a query and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)

	status := "Type to search."
	if asker != nil {
		status = "Type to search. Tab switches to ask mode."
	}
	return Model{
		ctx:      ctx,
		searcher: searcher,
		asker:    asker,
		topK:     topK,
		input:    ti,
		viewport: vp,
		summary:  summary,
		status:   status,
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around result and query boxes
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header+summary, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.viewport.SetContent(m.renderContent())
		return m, nil

	case searchDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + domain.KindOf(msg.err) + ": " + msg.err.Error()
			m.results = nil
		} else {
			m.status = fmt.Sprintf("%d results for %q", len(msg.results), msg.query)
			m.results = msg.results
			m.cursor = 0
			m.lastQuery = msg.query
		}
		m.answer = ""
		m.viewport.SetContent(m.renderContent())
		return m, nil

	case answerDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.answer = ""
			m.results = nil
		} else {
			m.status = fmt.Sprintf("Answered %q from %d passages", msg.query, len(msg.answer.Sources))
			m.answer = msg.answer.Text
			m.results = msg.answer.Sources
			m.cursor = 0
			m.lastQuery = msg.query
		}
		m.viewport.SetContent(m.renderContent())
		return m, nil

	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" && !m.busy {
				m.busy = true
				m.status = fmt.Sprintf("Running %s for %q...", m.mode, q)
				m.input.SetValue("")
				return m, m.run(q)
			}
		case "tab":
			if m.asker != nil {
				if m.mode == modeSearch {
					m.mode = modeAsk
				} else {
					m.mode = modeSearch
				}
				m.status = "Mode: " + m.mode.String()
				return m, nil
			}
		case "down":
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.renderContent())
				return m, nil
			}
		case "up":
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.renderContent())
				return m, nil
			}
		case "pgdown", "pgup":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// run performs the query off the update loop.
func (m Model) run(q string) tea.Cmd {
	ctx, searcher, asker, topK, md := m.ctx, m.searcher, m.asker, m.topK, m.mode
	return func() tea.Msg {
		if md == modeAsk {
			answer, err := asker.Ask(ctx, q, topK)
			return answerDoneMsg{query: q, answer: answer, err: err}
		}
		results, err := searcher.SearchRelatedChunks(ctx, q, topK)
		return searchDoneMsg{query: q, results: results, err: err}
	}
}

// View renders the TUI layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("DocMentor") + "  " + modeStyle.Render("["+m.mode.String()+"]")
	summary := summaryStyle.Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderContent() string {
	var sb strings.Builder
	if m.answer != "" {
		sb.WriteString(answerStyle.Render("Answer"))
		sb.WriteString("\n")
		sb.WriteString(m.answer)
		sb.WriteString("\n\n")
	}
	if len(m.results) == 0 {
		if m.answer == "" {
			sb.WriteString("No results yet.")
		}
		return sb.String()
	}
	r := m.results[m.cursor]
	fmt.Fprintf(&sb, "Result %d/%d  %s #%d  distance=%.4f\n\n",
		m.cursor+1, len(m.results), r.DocumentID, r.Position, r.Distance)
	sb.WriteString(highlightBestSentence(r.Text, m.lastQuery))
	return sb.String()
}

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	modeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	summaryStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	answerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence emphasizes the sentence sharing the most words with query
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := make(map[string]struct{})
	for _, t := range unicodeWordRe.FindAllString(strings.ToLower(sentence), -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}

// Run starts the full-screen program and blocks until the user quits
func Run(ctx context.Context, searcher Searcher, asker Asker, topK int, summary string) error {
	p := tea.NewProgram(New(ctx, searcher, asker, topK, summary), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
