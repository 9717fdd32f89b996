package console

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func renderDashboard(snap Snapshot, fetchErr error, ready bool, s styles) string {
	lines := []string{
		s.title.Render("conngate top"),
	}

	if !ready {
		if fetchErr != nil {
			lines = append(lines, s.errLine.Render("cannot reach control API: "+fetchErr.Error()))
		} else {
			lines = append(lines, s.empty.Render("connecting..."))
		}
		lines = append(lines, s.footer.Render("q to quit"))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	st := snap.Status
	lines = append(lines, s.header.Render(fmt.Sprintf(
		"uptime %s | sessions %d | admitted %d | rejected %d",
		st.Uptime, st.LiveSessions, st.TotalAcquired, st.TotalRejected,
	)))

	if fetchErr != nil {
		lines = append(lines, s.errLine.Render("poll failed, showing last snapshot: "+fetchErr.Error()))
	}

	lines = append(lines, s.section.Render("GROUPS"))
	lines = append(lines, renderGroups(snap.Groups, s)...)

	lines = append(lines, s.section.Render("CONNECTIONS"))
	lines = append(lines, renderConnections(snap.Connections, s)...)

	footer := fmt.Sprintf("polled %s | q to quit", snap.TakenAt.Format("15:04:05"))
	lines = append(lines, s.footer.Render(footer))

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderGroups(groups []Group, s styles) []string {
	if len(groups) == 0 {
		return []string{s.empty.Render("no groups configured")}
	}

	lines := []string{s.header.Render(fmt.Sprintf(
		"%-18s %-15s %7s %11s %11s  %s",
		"IDENTIFIER", "TYPE", "ACTIVE", "MAX", "PER-USER", "LOAD",
	))}
	for _, g := range groups {
		row := fmt.Sprintf(
			"%-18s %-15s %7d %11s %11s  %s",
			g.Identifier, g.Type, g.ActiveSessions,
			limitCell(g.MaxSessions), limitCell(g.MaxSessionsPerUser),
			renderLoadBar(g.ActiveSessions, g.MaxSessions, 12, s),
		)
		lines = append(lines, styleRow(row, g.ActiveSessions, g.MaxSessions, s))
	}
	return lines
}

func renderConnections(conns []Connection, s styles) []string {
	if len(conns) == 0 {
		return []string{s.empty.Render("no connections configured")}
	}

	lines := []string{s.header.Render(fmt.Sprintf(
		"%-18s %7s %11s %11s  %s",
		"IDENTIFIER", "ACTIVE", "MAX", "PER-USER", "LOAD",
	))}
	for _, c := range conns {
		row := fmt.Sprintf(
			"%-18s %7d %11s %11s  %s",
			c.Identifier, c.ActiveSessions,
			limitCell(c.MaxSessions), limitCell(c.MaxSessionsPerUser),
			renderLoadBar(c.ActiveSessions, c.MaxSessions, 12, s),
		)
		lines = append(lines, styleRow(row, c.ActiveSessions, c.MaxSessions, s))
	}
	return lines
}

// styleRow highlights scopes that are at their bound.
func styleRow(row string, active int, max *int, s styles) string {
	if max != nil && *max > 0 && active >= *max {
		return s.hot.Render(row)
	}
	return s.row.Render(row)
}

// limitCell renders the limit tri-state: inherit the default, explicitly
// unlimited, or a bound.
func limitCell(v *int) string {
	switch {
	case v == nil:
		return "default"
	case *v == 0:
		return "unlimited"
	default:
		return strconv.Itoa(*v)
	}
}

// renderLoadBar draws occupancy for bounded scopes; unbounded ones get no
// bar since there is no denominator.
func renderLoadBar(active int, max *int, width int, s styles) string {
	if max == nil || *max <= 0 || width <= 0 {
		return ""
	}

	filled := active * width / *max
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", width-filled)),
		s.barBracket.Render("]"),
	)
}
