package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gmsas95/medtracker/internal/schedule"
	"golang.org/x/term"
)

var dayNames = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Printer writes command output. Styles are only applied when color is on.
type Printer struct {
	w      io.Writer
	title  lipgloss.Style
	muted  lipgloss.Style
	status map[schedule.Status]lipgloss.Style
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func NewPrinter(w io.Writer, color bool) *Printer {
	p := &Printer{
		w:     w,
		title: lipgloss.NewStyle(),
		muted: lipgloss.NewStyle(),
		status: map[schedule.Status]lipgloss.Style{
			schedule.StatusTaken:   lipgloss.NewStyle(),
			schedule.StatusPending: lipgloss.NewStyle(),
			schedule.StatusDueSoon: lipgloss.NewStyle(),
			schedule.StatusMissed:  lipgloss.NewStyle(),
		},
	}
	if !color {
		return p
	}

	r := lipgloss.NewRenderer(w)
	p.title = r.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	p.muted = r.NewStyle().Foreground(lipgloss.Color("8"))
	p.status[schedule.StatusTaken] = r.NewStyle().Foreground(lipgloss.Color("10"))
	p.status[schedule.StatusPending] = r.NewStyle().Foreground(lipgloss.Color("7"))
	p.status[schedule.StatusDueSoon] = r.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	p.status[schedule.StatusMissed] = r.NewStyle().Foreground(lipgloss.Color("9"))
	return p
}

func (p *Printer) Title(s string) {
	fmt.Fprintln(p.w, p.title.Render(s))
}

func (p *Printer) Line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *Printer) Muted(format string, args ...any) {
	fmt.Fprintln(p.w, p.muted.Render(fmt.Sprintf(format, args...)))
}

func (p *Printer) Status(s schedule.Status) string {
	return p.status[s].Render(fmt.Sprintf("%-8s", s))
}

func (p *Printer) Medication(m *schedule.Medication) {
	name := m.Name
	if m.Dosage != "" {
		name += " (" + m.Dosage + ")"
	}
	p.Line("%s  %s", shortID(m.ID), name)
	p.Muted("    %s at %s", formatDays(m.Days), strings.Join(m.Times, ", "))
	if m.Notes != "" {
		p.Muted("    %s", m.Notes)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDays(days []int) string {
	set := make(map[int]bool, len(days))
	for _, d := range days {
		set[d] = true
	}
	var names []string
	for d := range dayNames {
		if set[d] {
			names = append(names, dayNames[d])
		}
	}
	if len(names) == 7 {
		return "Every day"
	}
	return strings.Join(names, ", ")
}

// parseDays accepts weekday numbers (0=Sunday), short or long English
// names, "daily" and "weekdays".
func parseDays(s string) ([]int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return nil, nil
	case "daily", "every day", "all":
		return []int{0, 1, 2, 3, 4, 5, 6}, nil
	case "weekdays":
		return []int{1, 2, 3, 4, 5}, nil
	case "weekends":
		return []int{0, 6}, nil
	}

	var days []int
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		day, ok := parseDay(part)
		if !ok {
			return nil, fmt.Errorf("unknown day %q", part)
		}
		days = append(days, day)
	}
	return days, nil
}

func parseDay(s string) (int, bool) {
	if len(s) == 1 && s[0] >= '0' && s[0] <= '6' {
		return int(s[0] - '0'), true
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		long := strings.ToLower(wd.String())
		if s == long || s == long[:3] {
			return int(wd), true
		}
	}
	return 0, false
}

func splitTimes(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func channelStatus(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

func maskToken(token string) string {
	if len(token) < 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
