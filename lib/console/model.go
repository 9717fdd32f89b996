package console

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/samber/oops"
)

const defaultInterval = 2 * time.Second

type tickMsg time.Time

type fetchedMsg struct {
	snapshot Snapshot
	err      error
}

type model struct {
	client   *Client
	interval time.Duration
	styles   styles
	snapshot Snapshot
	fetchErr error
	ready    bool
	quitting bool
}

func newModel(client *Client, interval time.Duration) model {
	return model{
		client:   client,
		interval: interval,
		styles:   newStyles(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.fetch, m.tick())
}

func (m model) fetch() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	defer cancel()
	snap, err := m.client.Fetch(ctx)
	return fetchedMsg{snapshot: snap, err: err}
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	case tickMsg:
		return m, tea.Batch(m.fetch, m.tick())
	case fetchedMsg:
		m.fetchErr = msg.err
		if msg.err == nil {
			m.snapshot = msg.snapshot
			m.ready = true
		}
		return m, nil
	default:
		return m, nil
	}
}

func (m model) View() string {
	if m.quitting {
		return ""
	}
	return renderDashboard(m.snapshot, m.fetchErr, m.ready, m.styles)
}

// Run drives the dashboard until the user quits or the program fails.
func Run(baseURL, token string, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultInterval
	}

	p := tea.NewProgram(
		newModel(NewClient(baseURL, token), interval),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		return oops.Wrapf(err, "dashboard terminated abnormally")
	}
	return nil
}
