package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/weektrack/internal/core"
	"github.com/valter-silva-au/weektrack/internal/observability"
	"github.com/valter-silva-au/weektrack/pkg/models"
)

const watchInterval = 10 * time.Second

type watchModel struct {
	tracker  *core.Tracker
	notifier observability.Notifier
	interval time.Duration

	width     int
	reminders []models.Reminder
	lastScan  time.Time
	message   string
	err       error
}

// tickMsg triggers a periodic scan.
type tickMsg time.Time

// notifiedMsg reports the outcome of a reminder notification.
type notifiedMsg struct {
	err error
}

// Style definitions.
var (
	watchTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	watchPanelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 2)

	runningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	idleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	reminderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	watchErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	watchHelp     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newWatchModel(tracker *core.Tracker, notifier observability.Notifier) watchModel {
	return watchModel{tracker: tracker, notifier: notifier, interval: watchInterval}
}

func (m watchModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m watchModel) Init() tea.Cmd {
	return func() tea.Msg { return tickMsg(time.Now()) }
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "p":
			if _, err := m.tracker.Session().Pause(); err != nil {
				m.message = err.Error()
			} else {
				m.message = "paused"
			}
			return m, nil
		case "r":
			if a, err := m.tracker.Session().Resume(); err != nil {
				m.message = err.Error()
			} else {
				m.message = "resumed " + taskNameIn(m.tracker, a.Task)
			}
			return m, nil
		case "a":
			for _, r := range m.reminders {
				if err := m.tracker.Session().Acknowledge(r.EventID); err != nil {
					m.err = err
				}
			}
			m.reminders = nil
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		due, err := m.tracker.Tick()
		m.lastScan = time.Time(msg)
		m.err = err
		fresh := m.addReminders(due)
		if len(fresh) > 0 && m.notifier != nil {
			return m, tea.Batch(m.tick(), notify(m.notifier, fresh))
		}
		return m, m.tick()

	case notifiedMsg:
		if msg.err != nil {
			m.err = msg.err
		}
		return m, nil
	}

	return m, nil
}

// addReminders appends reminders not yet shown and returns them.
func (m *watchModel) addReminders(due []models.Reminder) []models.Reminder {
	var fresh []models.Reminder
	for _, r := range due {
		seen := false
		for _, old := range m.reminders {
			if old.EventID == r.EventID {
				seen = true
				break
			}
		}
		if !seen {
			fresh = append(fresh, r)
		}
	}
	m.reminders = append(m.reminders, fresh...)
	return fresh
}

func notify(n observability.Notifier, reminders []models.Reminder) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return notifiedMsg{err: n.NotifyReminders(ctx, reminders)}
	}
}

func (m watchModel) View() string {
	sess := m.tracker.Session()
	title := watchTitleStyle.Render(" weektrack " + models.WeekKey(sess.WeekStart()) + " ")

	var b strings.Builder
	if cur, ok := sess.Current(); ok {
		fmt.Fprintf(&b, "%s %s\n", runningStyle.Render("● "+taskNameIn(m.tracker, cur.Task)),
			idleStyle.Render(fmt.Sprintf("since %s, %s", sess.StartTime(cur).Format("15:04"), hours(sess.Duration(cur)))))
	} else {
		b.WriteString(idleStyle.Render("○ idle") + "\n")
	}

	loc := m.tracker.Config().Loc()
	daily := m.tracker.DailyTotals()
	today := int(m.tracker.Now().In(loc).Weekday()+6) % 7
	fmt.Fprintf(&b, "today %s\n", hours(daily[today]))

	if len(m.reminders) > 0 {
		b.WriteString("\n")
		for _, r := range m.reminders {
			label := r.Label
			if label == "" {
				label = fmt.Sprintf("event %d", r.EventID)
			}
			b.WriteString(reminderStyle.Render(fmt.Sprintf("⏰ %s  %s", r.Time.In(loc).Format("Mon 15:04"), label)) + "\n")
		}
	}

	panel := watchPanelStyle
	if m.width > 4 {
		panel = panel.Width(m.width - 4)
	}
	body := panel.Render(strings.TrimRight(b.String(), "\n"))

	footer := ""
	if m.err != nil {
		footer = watchErrStyle.Render("error: "+m.err.Error()) + "\n"
	} else if m.message != "" {
		footer = idleStyle.Render(m.message) + "\n"
	}
	help := watchHelp.Render("p: pause | r: resume | a: acknowledge | q: quit")
	return fmt.Sprintf("%s\n\n%s\n%s%s", title, body, footer, help)
}

func taskNameIn(tracker *core.Tracker, id int) string {
	if t, err := tracker.Tasks().GetTask(id); err == nil {
		return t.Name
	}
	return fmt.Sprintf("task %d", id)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the tracker running in the terminal",
	Long: `Keep the tracker running in the terminal. Every 10 seconds it carries
the running activity over midnight and week ends, fires scheduled starts,
pushes delayed events and shows due reminders. Reminders are also posted
to Slack when notifications are enabled.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		p := tea.NewProgram(newWatchModel(Tracker, Notifier), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("running watch: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
