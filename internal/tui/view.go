package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"

	"github.com/Dicklesworthstone/botmaster/internal/agent"
)

// State colors, matching the badge colors used everywhere else in botmaster.
var (
	colorUnreachable = lipgloss.Color("245") // gray
	colorStopped     = lipgloss.Color("103") // slate
	colorIdle        = lipgloss.Color("39")  // blue
	colorPending     = lipgloss.Color("214") // orange
	colorExecuting   = lipgloss.Color("42")  // green

	titleStyle  = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	cursorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

func stateColor(st agent.RuntimeStatus) lipgloss.Color {
	if !st.Reachable {
		return colorUnreachable
	}
	switch st.State {
	case agent.StateExecuting:
		return colorExecuting
	case agent.StatePending:
		return colorPending
	case agent.StateIdle:
		return colorIdle
	case agent.StateStopped:
		return colorStopped
	default:
		return colorUnreachable
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	header := "botmaster"
	if m.opts.Version != "" {
		header += " " + m.opts.Version
	}
	b.WriteString("  " + titleStyle.Render(header))
	b.WriteString(dimStyle.Render(fmt.Sprintf("   %d agents", len(m.agents))))
	b.WriteString("\n\n")

	if len(m.agents) == 0 {
		b.WriteString("  " + dimStyle.Render("No agents registered. Use 'botmaster add <host:port>'.") + "\n")
	} else {
		b.WriteString(m.renderFleet())
	}

	b.WriteString("\n")
	b.WriteString(m.renderLog())
	b.WriteString("\n  " + m.renderHelpBar() + "\n")

	return b.String()
}

func (m Model) renderFleet() string {
	var b strings.Builder
	for i, a := range m.agents {
		st := m.snap[a.ID]

		prefix := "  "
		name := pad(a.DisplayName(), 22)
		if i == m.cursor {
			prefix = cursorStyle.Render("> ")
			name = cursorStyle.Render(name)
		}

		badge := m.renderStateBadge(st)
		auto := m.renderAutomation(a)

		detail := ""
		switch {
		case st.Reachable && st.IsExecuting:
			detail = dimStyle.Render(fmt.Sprintf("  %s  %s",
				truncate.StringWithTail(st.CurrentFile, 30, "…"),
				agent.FormatRuntime(st.RuntimeSeconds)))
		case st.Reachable && st.CharacterName != "":
			who := st.CharacterName
			if st.WorldName != "" {
				who += "@" + st.WorldName
			}
			detail = dimStyle.Render("  " + truncate.StringWithTail(who, 40, "…"))
		case !st.Reachable && st.ErrorMsg != "":
			detail = dimStyle.Render("  " + truncate.StringWithTail(st.ErrorMsg, 40, "…"))
		}

		b.WriteString(fmt.Sprintf("%s%s %s %s%s\n",
			prefix, name, badge, auto, detail))
	}
	return b.String()
}

func (m Model) renderStateBadge(st agent.RuntimeStatus) string {
	label := st.StateLabel()
	if !m.colored {
		return pad("["+label+"]", 13)
	}
	style := lipgloss.NewStyle().Foreground(stateColor(st)).Bold(true)
	return style.Render(pad(label, 12))
}

func (m Model) renderAutomation(a agent.Agent) string {
	info, active := m.runs[a.ID]
	if !active {
		if a.Automation.Mode == agent.ModeManual {
			return dimStyle.Render(pad("manual", 18))
		}
		return dimStyle.Render(pad(a.Automation.Mode.String()+" (idle)", 18))
	}
	switch info.Mode {
	case agent.ModeTimer:
		left := time.Until(info.TimerEnd).Round(time.Second)
		if left < 0 {
			left = 0
		}
		return pad(fmt.Sprintf("timer %s", left), 18)
	case agent.ModeSchedule:
		return pad(fmt.Sprintf("sched %s-%s", info.Start, info.End), 18)
	default:
		return pad("", 18)
	}
}

func (m Model) renderLog() string {
	rows := m.height - len(m.agents) - 7
	if rows < 3 {
		rows = 3
	}
	if rows > 10 {
		rows = 10
	}
	start := len(m.log) - rows
	if start < 0 {
		start = 0
	}

	var b strings.Builder
	b.WriteString("  " + dimStyle.Render(strings.Repeat("─", max(10, m.width-4))) + "\n")
	for _, l := range m.log[start:] {
		line := fmt.Sprintf("%s %s", l.at.Format("15:04:05"), l.text)
		line = truncate.StringWithTail(line, uint(max(20, m.width-4)), "…")
		if strings.Contains(l.text, "FAILED") {
			b.WriteString("  " + failStyle.Render(line) + "\n")
		} else {
			b.WriteString("  " + dimStyle.Render(line) + "\n")
		}
	}
	return b.String()
}

func (m Model) renderHelpBar() string {
	parts := []string{
		dashKeys.Up.Help().Key + "/" + dashKeys.Down.Help().Key + " move",
		dashKeys.Run.Help().Key + " " + dashKeys.Run.Help().Desc,
		dashKeys.Resume.Help().Key + " " + dashKeys.Resume.Help().Desc,
		dashKeys.Stop.Help().Key + " " + dashKeys.Stop.Help().Desc,
		dashKeys.GoHome.Help().Key + " " + dashKeys.GoHome.Help().Desc,
		dashKeys.Timer.Help().Key + " " + dashKeys.Timer.Help().Desc,
		dashKeys.Refresh.Help().Key + " " + dashKeys.Refresh.Help().Desc,
		dashKeys.Quit.Help().Key + " " + dashKeys.Quit.Help().Desc,
	}
	return helpStyle.Render(strings.Join(parts, " · "))
}

// pad right-pads s to width display cells, truncating when too wide.
func pad(s string, width int) string {
	w := runewidth.StringWidth(s)
	if w > width {
		return runewidth.Truncate(s, width, "…")
	}
	return s + strings.Repeat(" ", width-w)
}
