package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// completeTasks lists task ids with their names as descriptions. Completed
// and deleted tasks are left out unless all is set.
func completeTasks(all bool) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if Tracker == nil || len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		var ids []string
		for _, t := range Tracker.Tasks().AllTasks() {
			if !all && !t.State.Incomplete() {
				continue
			}
			id := strconv.Itoa(t.ID)
			if toComplete == "" || strings.HasPrefix(id, toComplete) {
				ids = append(ids, id+"\t"+t.Name)
			}
		}
		return ids, cobra.ShellCompDirectiveNoFileComp
	}
}

// completeActivities lists the open week's activity ids.
func completeActivities(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if Tracker == nil || Tracker.Session() == nil || len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	sess := Tracker.Session()
	var ids []string
	for _, a := range sess.Activities() {
		id := strconv.Itoa(a.ID)
		if toComplete == "" || strings.HasPrefix(id, toComplete) {
			ids = append(ids, id+"\t"+sess.StartTime(a).Format("Mon 15:04")+" "+taskName(a.Task))
		}
	}
	return ids, cobra.ShellCompDirectiveNoFileComp
}

func init() {
	startCmd.ValidArgsFunction = completeTasks(false)
	taskRemoveCmd.ValidArgsFunction = completeTasks(true)
	taskCompleteCmd.ValidArgsFunction = completeTasks(false)
	taskMoveCmd.ValidArgsFunction = completeTasks(true)
	taskSetCmd.ValidArgsFunction = completeTasks(true)

	for _, c := range []*cobra.Command{editSplitCmd, editSwapCmd, editFillCmd, editDeleteCmd, editRebindCmd, editStartCmd, editEndCmd, editAllocCmd} {
		c.ValidArgsFunction = completeActivities
	}
}
