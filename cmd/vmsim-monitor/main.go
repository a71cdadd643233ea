// Command vmsim-monitor is an interactive terminal visualizer for the
// paging simulator: it drives a synthetic access pattern against a vmsim.VM
// and live-renders the arena sizing, resident-set occupancy and a log of
// fault/evict/swap-in events. The clock hand's position is not shown.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"vmsim/internal/config"
	"vmsim/vmsim"
)

const maxEvents = 8

type stepTick struct{}

func doStep() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(time.Time) tea.Msg {
		return stepTick{}
	})
}

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	danger    = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF6B6B"}

	titleStyle = lipgloss.NewStyle().Foreground(subtle).Padding(0, 1)

	arenaStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(highlight).
			Padding(1).
			Width(34)

	rsiStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(special).
			Padding(1).
			Width(34)

	logStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(subtle).
			Padding(1).
			Width(70)

	evictStyle = lipgloss.NewStyle().Foreground(danger).Bold(true)
	faultStyle = lipgloss.NewStyle().Foreground(special)
)

// model is the bubbletea model driving the monitor. It owns the vmsim.VM
// and a simple synthetic workload generator; every stepTick touches one
// more simulated address and records what happened to it.
type model struct {
	vm      *vmsim.VM
	paused  bool
	width   int
	pattern string
	cursor  uint32
	rng     *rand.Rand
	events  []string
}

func newModel(vm *vmsim.VM, pattern string) *model {
	return &model{
		vm:      vm,
		pattern: pattern,
		cursor:  0x1000,
		rng:     rand.New(rand.NewSource(1)),
	}
}

func (m *model) Init() tea.Cmd { return doStep() }

func (m *model) nextAddress() uint32 {
	switch m.pattern {
	case "random":
		return 0x1000 + uint32(m.rng.Intn(64))*0x1000
	default: // sequential
		sa := m.cursor
		m.cursor += 0x1000
		return sa
	}
}

func (m *model) logEvent(s string) {
	m.events = append(m.events, s)
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
}

func (m *model) touch() {
	sa := m.nextAddress()
	before, _ := m.vm.LowerPTE(sa)
	blockBefore := m.vm.NextBlock()

	_, err := m.vm.Map(sa, m.rng.Intn(3) == 0)
	if err != nil {
		m.logEvent(fmt.Sprintf("%#08x: error: %v", sa, err))
		return
	}

	switch {
	case before.IsEmpty():
		m.logEvent(faultStyle.Render(fmt.Sprintf("%#08x: fault (first touch)", sa)))
	case !before.IsResident():
		m.logEvent(faultStyle.Render(fmt.Sprintf("%#08x: fault (swap-in)", sa)))
	}
	if m.vm.NextBlock() != blockBefore {
		m.logEvent(evictStyle.Render(fmt.Sprintf("evicted a page to block %d", blockBefore)))
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stepTick:
		if !m.paused {
			m.touch()
		}
		return m, doStep()
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.paused = !m.paused
		}
	}
	return m, nil
}

func (m *model) View() string {
	occupied, total := m.vm.ResidentOccupancy()

	arena := fmt.Sprintf(
		"Arena %d bytes\nPT area %d bytes\nData frames %d\nNext block %d\nPattern %s",
		m.vm.ArenaSize(), m.vm.PTAreaSize(), total, m.vm.NextBlock(), m.pattern,
	)

	bar := occupancyBar(occupied, total, 20)
	rsiPanel := fmt.Sprintf("Resident-set occupancy\n%s\n%d/%d frames resident", bar, occupied, total)

	status := "running"
	if m.paused {
		status = "paused"
	}
	header := titleStyle.Render(fmt.Sprintf("vmsim monitor — %s (space: pause, q: quit)", status))

	panels := lipgloss.JoinHorizontal(lipgloss.Top,
		arenaStyle.Render(arena),
		rsiStyle.Render(rsiPanel),
	)

	eventLog := strings.Join(m.events, "\n")
	log := logStyle.Render("Events\n" + eventLog)

	return lipgloss.JoinVertical(lipgloss.Left, header, panels, log)
}

func occupancyBar(occupied, total uint32, width int) string {
	if total == 0 {
		return strings.Repeat("-", width)
	}
	filled := int(occupied) * width / int(total)
	return strings.Repeat("#", filled) + strings.Repeat("-", width-filled)
}

func main() {
	pattern := flag.String("pattern", "sequential", "access pattern: sequential or random")
	flag.Parse()

	vm, err := vmsim.NewDefault()
	if err != nil {
		fmt.Fprintln(os.Stderr, "vmsim-monitor:", err)
		os.Exit(1)
	}
	if err := vm.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "vmsim-monitor:", err)
		os.Exit(1)
	}

	if _, err := tea.NewProgram(newModel(vm, *pattern)).Run(); err != nil {
		fmt.Fprintln(os.Stderr, "vmsim-monitor:", err)
		_, _ = fmt.Fprintln(os.Stderr, config.EnvRealMemSize, "controls the arena size")
		os.Exit(1)
	}
}
