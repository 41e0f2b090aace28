package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/vpspilot/pilot/pkg/sshutil"
)

type hostItem struct {
	host sshutil.HostEntry
}

func (i hostItem) Title() string       { return i.host.Alias }
func (i hostItem) Description() string { return i.host.Description() }

// FilterValue lets the list filter on alias, hostname and user.
func (i hostItem) FilterValue() string {
	values := []string{i.host.Alias}
	if i.host.Hostname != "" {
		values = append(values, i.host.Hostname)
	}
	if i.host.User != "" {
		values = append(values, i.host.User)
	}
	return strings.Join(values, " ")
}

// PickerResult is how the host picker ended.
type PickerResult int

const (
	PickerCancelled PickerResult = iota
	PickerSelected
	PickerManual
	PickerDirect // connect without a tunnel
)

// HostPickerModel lets the user choose the ssh_config host that fronts the
// backend.
type HostPickerModel struct {
	list     list.Model
	selected *sshutil.HostEntry
	result   PickerResult
	quitting bool
}

var hostPickerKeys = struct {
	Enter  key.Binding
	Manual key.Binding
	Direct key.Binding
	Quit   key.Binding
}{
	Enter:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "tunnel via host")),
	Manual: key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "type a host")),
	Direct: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "no tunnel")),
	Quit:   key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q/esc", "cancel")),
}

// NewHostPickerModel creates a picker over hosts.
func NewHostPickerModel(hosts []sshutil.HostEntry) HostPickerModel {
	items := make([]list.Item, len(hosts))
	for i, h := range hosts {
		items[i] = hostItem{host: h}
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(ColorNeonPink).
		BorderForeground(ColorNeonPink)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(ColorSecondary).
		BorderForeground(ColorNeonPink)

	l := list.New(items, delegate, 80, 15)
	l.Title = "Which VPS runs the pilot backend?"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = lipgloss.NewStyle().Foreground(ColorNeonCyan).Bold(true).Padding(0, 0, 1, 0)
	l.Styles.HelpStyle = MutedStyle()
	l.AdditionalShortHelpKeys = func() []key.Binding {
		return []key.Binding{hostPickerKeys.Manual, hostPickerKeys.Direct}
	}

	return HostPickerModel{list: l}
}

// Init implements tea.Model.
func (m HostPickerModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m HostPickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch {
		case key.Matches(msg, hostPickerKeys.Enter):
			if item, ok := m.list.SelectedItem().(hostItem); ok {
				m.selected = &item.host
				m.result = PickerSelected
			}
			return m.quit()
		case key.Matches(msg, hostPickerKeys.Manual):
			m.result = PickerManual
			return m.quit()
		case key.Matches(msg, hostPickerKeys.Direct):
			m.result = PickerDirect
			return m.quit()
		case key.Matches(msg, hostPickerKeys.Quit):
			m.result = PickerCancelled
			return m.quit()
		}

	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-2)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m HostPickerModel) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	return m, tea.Quit
}

// View implements tea.Model.
func (m HostPickerModel) View() string {
	if m.quitting {
		return ""
	}
	return m.list.View() + MutedStyle().Render("\n  m: type a host   d: connect directly")
}

// Selected returns the chosen host, or nil.
func (m HostPickerModel) Selected() *sshutil.HostEntry {
	return m.selected
}

// Result reports how the picker ended.
func (m HostPickerModel) Result() PickerResult {
	return m.result
}

// PickSSHHost runs the picker on the given terminal streams. An empty host
// list short-circuits to PickerManual.
func PickSSHHost(hosts []sshutil.HostEntry, output io.Writer, input io.Reader) (*sshutil.HostEntry, PickerResult, error) {
	if len(hosts) == 0 {
		return nil, PickerManual, nil
	}

	p := tea.NewProgram(NewHostPickerModel(hosts), tea.WithOutput(output), tea.WithInput(input))
	final, err := p.Run()
	if err != nil {
		return nil, PickerCancelled, fmt.Errorf("ssh host picker: %w", err)
	}

	m, ok := final.(HostPickerModel)
	if !ok {
		return nil, PickerCancelled, nil
	}
	return m.Selected(), m.Result(), nil
}
