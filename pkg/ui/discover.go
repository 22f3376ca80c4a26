package ui

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"github.com/rescp17/streamlite/internal/style"
	"github.com/rescp17/streamlite/pkg/discovery"
)

// discoverState defines the states of the discovery UI.
type discoverState int

const (
	findingServers discoverState = iota
	selectingServer
	discoverFailed
)

type foundServicesMsg struct {
	services []discovery.ServiceInfo
}

type discoverErrorMsg struct {
	err error
}

type discoverDoneMsg struct{}

var columns = []table.Column{
	{Title: "Index", Width: 6},
	{Title: "Name", Width: 24},
	{Title: "Signaling URL", Width: 40},
}

// DiscoverModel browses mDNS for signaling servers and lets the user pick
// one. Selected returns the pick after the program exits.
type DiscoverModel struct {
	state    discoverState
	results  <-chan discovery.DiscoveryResult
	spinner  spinner.Model
	table    table.Model
	services []discovery.ServiceInfo
	selected *discovery.ServiceInfo
	err      error
}

func NewDiscoverModel(ctx context.Context, adapter discovery.Adapter, service string) DiscoverModel {
	t := table.New(
		table.WithColumns(columns),
		table.WithRows([]table.Row{}),
		table.WithFocused(true),
		table.WithHeight(0),
	)
	t.SetStyles(style.NewTableStyles())

	return DiscoverModel{
		state:   findingServers,
		results: adapter.Discover(ctx, service),
		spinner: style.NewSpinner(),
		table:   t,
	}
}

// Selected is the chosen service, if any.
func (m DiscoverModel) Selected() (discovery.ServiceInfo, bool) {
	if m.selected == nil {
		return discovery.ServiceInfo{}, false
	}
	return *m.selected, true
}

func (m DiscoverModel) listen() tea.Cmd {
	return func() tea.Msg {
		result, ok := <-m.results
		if !ok {
			return discoverDoneMsg{}
		}
		if result.Error != nil {
			return discoverErrorMsg{err: result.Error}
		}
		return foundServicesMsg{services: result.Services}
	}
}

func (m DiscoverModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen())
}

func (m *DiscoverModel) updateTable(services []discovery.ServiceInfo) {
	m.services = services
	rows := make([]table.Row, 0, len(services))
	for index, svc := range services {
		rows = append(rows, table.Row{strconv.Itoa(index), svc.Name, svc.SignalingURL()})
	}
	m.table.SetRows(rows)
	m.table.SetHeight(len(rows) + 1)
}

func (m DiscoverModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case foundServicesMsg:
		log.Info().Str("module", "ui").Int("service_count", len(msg.services)).Msg("discovery update")
		m.updateTable(msg.services)
		switch {
		case len(msg.services) > 0 && m.state == findingServers:
			m.state = selectingServer
		case len(msg.services) == 0 && m.state == selectingServer:
			m.state = findingServers
		}
		return m, m.listen()
	case discoverErrorMsg:
		m.state = discoverFailed
		m.err = msg.err
		return m, m.listen()
	case discoverDoneMsg:
		if m.state == findingServers {
			return m, tea.Quit
		}
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			if m.state == selectingServer {
				if i := m.table.Cursor(); i >= 0 && i < len(m.services) {
					svc := m.services[i]
					m.selected = &svc
					return m, tea.Quit
				}
			}
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m DiscoverModel) View() string {
	switch m.state {
	case findingServers:
		return fmt.Sprintf("\n%s Looking for signaling servers...\n\n%s", m.spinner.View(), style.HelpStyle.Render("q quit"))
	case selectingServer:
		s := fmt.Sprintf("\nFound %d signaling server(s)\n", len(m.services))
		s += style.BaseStyle.Render(m.table.View()) + "\n"
		s += style.HelpStyle.Render("Use arrow keys to navigate, Enter to select, q to quit.")
		return s
	case discoverFailed:
		return fmt.Sprintf("\n%s\n\n%s", style.ErrorStyle.Render("Discovery failed: "+m.err.Error()), style.HelpStyle.Render("q quit"))
	default:
		return "Internal error: unknown discovery state"
	}
}
