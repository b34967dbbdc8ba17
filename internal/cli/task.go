package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/weektrack/internal/core"
	"github.com/valter-silva-au/weektrack/pkg/models"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage the task tree",
	Long: `Manage the tree of tasks that time is booked to.

Tasks are addressed by id or by exact name. A task inherits the booking
number of its nearest ancestor that has one.`,
}

var (
	taskAddParent  string
	taskAddBooking string
)

var taskAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		parent := 0
		if taskAddParent != "" {
			id, err := resolveTask(taskAddParent)
			if err != nil {
				return fmt.Errorf("resolving parent: %w", err)
			}
			parent = id
		}
		task, err := Tracker.Tasks().CreateTask(args[0], parent)
		if err != nil {
			return err
		}
		if taskAddBooking != "" {
			if err := Tracker.Tasks().Update(task.ID, core.TaskUpdate{BookingNumber: &taskAddBooking}); err != nil {
				return fmt.Errorf("setting booking number: %w", err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created task %d: %s\n", task.ID, task.Name)
		return nil
	},
}

var taskListAll bool

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the task tree",
	Long: `Show the task tree with state, effective booking number, time allocated
so far and progress. Completed and deleted tasks are hidden unless --all
is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		tasks := Tracker.Tasks().AllTasks()
		if len(tasks) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No tasks found.")
			return nil
		}
		running := 0
		if cur, ok := Tracker.Session().Current(); ok {
			running = cur.Task
		}

		tbl := uitable.New()
		tbl.Separator = "  "
		tbl.AddRow(boldText.Sprint("ID"), boldText.Sprint("TASK"), boldText.Sprint("STATE"),
			boldText.Sprint("BOOKING"), boldText.Sprint("ALLOCATED"), boldText.Sprint("PROGRESS"))
		for _, t := range tasks {
			if !taskListAll && !t.State.Incomplete() {
				continue
			}
			name := strings.Repeat("  ", depth(t)) + t.Name
			if t.ID == running {
				name = okText.Sprint(name + " *")
			}
			tbl.AddRow(t.ID, name, t.State, Tracker.Tasks().EffectiveBookingNumber(t.ID),
				hours(t.AllocatedTime), fmt.Sprintf("%.0f%%", Tracker.Tasks().Progress(t.ID)*100))
		}
		tbl.RightAlign(0)
		fmt.Fprintln(cmd.OutOrStdout(), tbl)
		return nil
	},
}

var taskRemoveCmd = &cobra.Command{
	Use:     "rm <task>",
	Aliases: []string{"remove"},
	Short:   "Delete a task and its subtree",
	Long:    "Delete a task and its subtree. Tasks with booked time cannot be deleted; complete them instead.",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		id, err := resolveTask(args[0])
		if err != nil {
			return err
		}
		name := taskName(id)
		if err := Tracker.Tasks().DeleteTask(id); err != nil {
			return fmt.Errorf("deleting task %d: %w", id, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %d: %s\n", id, name)
		return nil
	},
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete <task>",
	Short: "Mark a task complete",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		id, err := resolveTask(args[0])
		if err != nil {
			return err
		}
		if err := Tracker.Tasks().CompleteTask(id); err != nil {
			return fmt.Errorf("completing task %d: %w", id, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Completed task %d: %s\n", id, taskName(id))
		return nil
	},
}

var (
	taskMoveParent string
	taskMoveIndex  int
)

var taskMoveCmd = &cobra.Command{
	Use:   "move <task>",
	Short: "Move a task under another parent or to another position",
	Long: `Move a task, with its subtree and booked time, under --parent (use 0 for
the top level). --index places it among its new siblings.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		id, err := resolveTask(args[0])
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("parent") {
			parent := 0
			if taskMoveParent != "0" {
				if parent, err = resolveTask(taskMoveParent); err != nil {
					return fmt.Errorf("resolving parent: %w", err)
				}
			}
			if err := Tracker.Tasks().Reparent(id, parent); err != nil {
				return fmt.Errorf("moving task %d: %w", id, err)
			}
		}
		if taskMoveIndex >= 0 {
			if err := Tracker.Tasks().Reorder(id, taskMoveIndex); err != nil {
				return fmt.Errorf("reordering task %d: %w", id, err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Moved task %d: %s\n", id, taskName(id))
		return nil
	},
}

var (
	taskSetName       string
	taskSetBooking    string
	taskSetAllocation float64
	taskSetEstimate   time.Duration
	taskSetNotes      string
	taskSetState      string
)

var taskSetCmd = &cobra.Command{
	Use:   "set <task>",
	Short: "Change task fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTracker(); err != nil {
			return err
		}
		id, err := resolveTask(args[0])
		if err != nil {
			return err
		}
		var upd core.TaskUpdate
		flags := cmd.Flags()
		if flags.Changed("name") {
			upd.Name = &taskSetName
		}
		if flags.Changed("booking") {
			upd.BookingNumber = &taskSetBooking
		}
		if flags.Changed("allocation") {
			if taskSetAllocation < 0 || taskSetAllocation > 1 {
				return fmt.Errorf("allocation must be between 0 and 1, got %g", taskSetAllocation)
			}
			upd.Allocation = &taskSetAllocation
		}
		if flags.Changed("estimate") {
			upd.EstimatedTime = &taskSetEstimate
		}
		if flags.Changed("notes") {
			upd.Notes = &taskSetNotes
		}
		if err := Tracker.Tasks().Update(id, upd); err != nil {
			return fmt.Errorf("updating task %d: %w", id, err)
		}
		if flags.Changed("state") {
			state, err := models.ParseTaskState(taskSetState)
			if err != nil {
				return err
			}
			if err := Tracker.Tasks().SetState(id, state); err != nil {
				return fmt.Errorf("updating task %d: %w", id, err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated task %d: %s\n", id, taskName(id))
		return nil
	},
}

func init() {
	taskAddCmd.Flags().StringVar(&taskAddParent, "parent", "", "parent task id or name")
	taskAddCmd.Flags().StringVar(&taskAddBooking, "booking", "", "booking number")
	taskListCmd.Flags().BoolVarP(&taskListAll, "all", "a", false, "include completed and deleted tasks")
	taskMoveCmd.Flags().StringVar(&taskMoveParent, "parent", "", "new parent task id or name, 0 for top level")
	taskMoveCmd.Flags().IntVar(&taskMoveIndex, "index", -1, "position among siblings")

	taskSetCmd.Flags().StringVar(&taskSetName, "name", "", "task name")
	taskSetCmd.Flags().StringVar(&taskSetBooking, "booking", "", "booking number, empty to inherit")
	taskSetCmd.Flags().Float64Var(&taskSetAllocation, "allocation", 0, "fraction of activity time booked (0..1)")
	taskSetCmd.Flags().DurationVar(&taskSetEstimate, "estimate", 0, "estimated time, e.g. 16h")
	taskSetCmd.Flags().StringVar(&taskSetNotes, "notes", "", "free-form notes")
	taskSetCmd.Flags().StringVar(&taskSetState, "state", "", "task state (pending, active, scheduled, inactive)")

	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskRemoveCmd, taskCompleteCmd, taskMoveCmd, taskSetCmd)
	rootCmd.AddCommand(taskCmd)
}

// formatTaskRef renders "id name" for messages.
func formatTaskRef(id int) string {
	return strconv.Itoa(id) + " " + taskName(id)
}
