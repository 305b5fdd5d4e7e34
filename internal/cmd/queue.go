package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/fenwick/warren/internal/config"
	"github.com/fenwick/warren/internal/workqueue"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the shared work queue",
	Long: `Commands for adding, claiming, and completing tasks in the shared
priority queue. Tasks persist in work_queue.json under the state
directory and carry an append-only history of every transition.`,
}

var queueAddCmd = &cobra.Command{
	Use:   "add <description>",
	Short: "Add a task to the queue",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueAdd,
}

var queueListCmd = &cobra.Command{
	Use:   "list [available|claimed|completed|blocked|all]",
	Short: "List queued tasks by priority",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runQueueList,
}

var queueShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show task details",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueShow,
}

var queueHistoryCmd = &cobra.Command{
	Use:   "history <task-id>",
	Short: "Show a task's event history",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueHistory,
}

var queueClaimCmd = &cobra.Command{
	Use:   "claim <task-id>",
	Short: "Claim an available task",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueClaim,
}

var queueCompleteCmd = &cobra.Command{
	Use:   "complete <task-id>",
	Short: "Mark a claimed task as completed",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueComplete,
}

var queueReleaseCmd = &cobra.Command{
	Use:   "release <task-id>",
	Short: "Release a claimed task back to available",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueRelease,
}

var queueRemoveCmd = &cobra.Command{
	Use:   "remove <task-id>",
	Short: "Remove a task from the queue",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueRemove,
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue statistics",
	Args:  cobra.NoArgs,
	RunE:  runQueueStats,
}

var (
	addPriority int
	addContext  string
	addDepends  []string
	addEstimate string
	queueTag    string
)

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueAddCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueShowCmd)
	queueCmd.AddCommand(queueHistoryCmd)
	queueCmd.AddCommand(queueClaimCmd)
	queueCmd.AddCommand(queueCompleteCmd)
	queueCmd.AddCommand(queueReleaseCmd)
	queueCmd.AddCommand(queueRemoveCmd)
	queueCmd.AddCommand(queueStatsCmd)

	queueAddCmd.Flags().IntVar(&addPriority, "priority", workqueue.PriorityNormal, "priority: 1 (high) to 3 (low)")
	queueAddCmd.Flags().StringVar(&addContext, "context", "", "free-form guidance for the claimant")
	queueAddCmd.Flags().StringSliceVar(&addDepends, "depends", nil, "task id that must complete first (repeatable)")
	queueAddCmd.Flags().StringVar(&addEstimate, "estimate", "", "size estimate: small, medium, or large")

	queueClaimCmd.Flags().StringVar(&queueTag, "tag", "", "session tag to claim as (default: this session's tag)")
	queueCompleteCmd.Flags().StringVar(&queueTag, "tag", "", "session tag to complete as (default: this session's tag)")
}

func runQueueAdd(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	logger := newLogger(cfg)
	defer logger.Close()

	task, err := workqueue.New(cfg, logger).Add(args[0], addPriority, addContext, addDepends, addEstimate)
	if err != nil {
		return fmt.Errorf("failed to add task: %w", err)
	}

	fmt.Printf("Added task: %s\n", task.ID)
	fmt.Printf("  Description: %s\n", task.Description)
	fmt.Printf("  Priority: %d\n", task.Priority)
	if len(task.DependsOn) > 0 {
		fmt.Printf("  Depends on: %s\n", strings.Join(task.DependsOn, ", "))
	}
	if task.Estimate != "" {
		fmt.Printf("  Estimate: %s\n", task.Estimate)
	}
	if task.Status == workqueue.StatusBlocked {
		fmt.Println(warningStyle.Render("  Status: BLOCKED (waiting for dependencies)"))
	}
	if len(task.MissingDeps) > 0 {
		fmt.Println(warningStyle.Render(fmt.Sprintf("  WARNING: Dependencies not found: %s", strings.Join(task.MissingDeps, ", "))))
		fmt.Println(mutedStyle.Render("           (Task is available, not blocked by missing deps)"))
	}
	return nil
}

func runQueueList(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	logger := newLogger(cfg)
	defer logger.Close()
	q := workqueue.New(cfg, logger)

	var status workqueue.Status
	if len(args) > 0 && args[0] != "all" {
		status = workqueue.Status(args[0])
	}

	tasks, err := q.List(status)
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}

	// Listing available work also surfaces what it is waiting on.
	if status == workqueue.StatusAvailable {
		blocked, err := q.List(workqueue.StatusBlocked)
		if err != nil {
			return fmt.Errorf("failed to list tasks: %w", err)
		}
		tasks = append(tasks, blocked...)
	}

	if len(tasks) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	for _, task := range tasks {
		fmt.Println(formatTaskLine(task))
		switch task.Status {
		case workqueue.StatusClaimed:
			fmt.Printf("      Claimed by %s\n", tagStyle.Render("@"+task.ClaimedBy))
		case workqueue.StatusBlocked:
			fmt.Printf("      Blocked by: %s\n", strings.Join(task.DependsOn, ", "))
		}
	}
	return nil
}

// formatTaskLine renders one queue listing row:
// status icon, priority badge, optional estimate, id, truncated description.
func formatTaskLine(task *workqueue.Task) string {
	statusIcon := "[?]"
	switch task.Status {
	case workqueue.StatusAvailable:
		statusIcon = "[ ]"
	case workqueue.StatusClaimed:
		statusIcon = successStyle.Render("[->]")
	case workqueue.StatusCompleted:
		statusIcon = mutedStyle.Render("[X]")
	case workqueue.StatusBlocked:
		statusIcon = warningStyle.Render("[B]")
	}

	priorityIcon := "[?]"
	switch task.Priority {
	case workqueue.PriorityHigh:
		priorityIcon = errorStyle.Render("[HIGH]")
	case workqueue.PriorityNormal:
		priorityIcon = "[NORM]"
	case workqueue.PriorityLow:
		priorityIcon = mutedStyle.Render("[LOW]")
	}

	estimateIcon := ""
	if task.Estimate != "" {
		estimateIcon = fmt.Sprintf(" (%s)", strings.ToUpper(task.Estimate[:1]))
	}

	desc := task.Description
	if len(desc) > 45 {
		desc = desc[:45]
	}
	return fmt.Sprintf("%s %s%s %s: %s", statusIcon, priorityIcon, estimateIcon, task.ID, desc)
}

func runQueueShow(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	logger := newLogger(cfg)
	defer logger.Close()

	task := workqueue.New(cfg, logger).Get(args[0])
	if task == nil {
		fmt.Println("Task not found.")
		return nil
	}

	fmt.Printf("Task: %s\n", task.ID)
	fmt.Printf("  Description: %s\n", task.Description)
	fmt.Printf("  Priority: %d\n", task.Priority)
	fmt.Printf("  Status: %s\n", task.Status)
	if task.Context != "" {
		fmt.Printf("  Context: %s\n", task.Context)
	}
	if len(task.DependsOn) > 0 {
		fmt.Printf("  Depends on: %s\n", strings.Join(task.DependsOn, ", "))
	}
	if task.Estimate != "" {
		fmt.Printf("  Estimate: %s\n", task.Estimate)
	}
	if task.ActualDuration > 0 {
		fmt.Printf("  Actual duration: %d minutes\n", task.ActualDuration)
	}
	if task.ClaimedBy != "" {
		fmt.Printf("  Claimed by: %s\n", tagStyle.Render("@"+task.ClaimedBy))
	}
	if task.CompletedBy != "" {
		fmt.Printf("  Completed by: %s\n", tagStyle.Render("@"+task.CompletedBy))
	}
	fmt.Printf("  Created: %s\n", task.CreatedAt.Format(time.RFC3339))
	return nil
}

func runQueueHistory(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	logger := newLogger(cfg)
	defer logger.Close()

	history, ok := workqueue.New(cfg, logger).History(args[0])
	if !ok {
		fmt.Println("Task not found.")
		return nil
	}
	if len(history) == 0 {
		fmt.Println("No history available.")
		return nil
	}

	fmt.Printf("History for %s:\n", args[0])
	for _, entry := range history {
		at := entry.At.Format("2006-01-02T15:04")
		if entry.Reason != "" {
			fmt.Printf("  [%s] %s by @%s - %s\n", at, entry.Action, entry.By, entry.Reason)
		} else {
			fmt.Printf("  [%s] %s by @%s\n", at, entry.Action, entry.By)
		}
	}
	return nil
}

func runQueueClaim(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	logger := newLogger(cfg)
	defer logger.Close()

	_, tag, err := identify(cfg, logger, queueTag)
	if err != nil {
		return fmt.Errorf("failed to register session: %w", err)
	}

	ok, message, err := workqueue.New(cfg, logger).Claim(args[0], tag)
	if err != nil {
		return fmt.Errorf("failed to claim task: %w", err)
	}
	printOutcome(ok, message)
	if !ok {
		return errSilentExit
	}
	return nil
}

func runQueueComplete(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	logger := newLogger(cfg)
	defer logger.Close()

	_, tag, err := identify(cfg, logger, queueTag)
	if err != nil {
		return fmt.Errorf("failed to register session: %w", err)
	}

	ok, message, err := workqueue.New(cfg, logger).Complete(args[0], tag)
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	printOutcome(ok, message)
	if !ok {
		return errSilentExit
	}
	return nil
}

func runQueueRelease(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	logger := newLogger(cfg)
	defer logger.Close()

	ok, message, err := workqueue.New(cfg, logger).Release(args[0], "")
	if err != nil {
		return fmt.Errorf("failed to release task: %w", err)
	}
	printOutcome(ok, message)
	if !ok {
		return errSilentExit
	}
	return nil
}

func runQueueRemove(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	logger := newLogger(cfg)
	defer logger.Close()

	ok, message, err := workqueue.New(cfg, logger).Remove(args[0])
	if err != nil {
		return fmt.Errorf("failed to remove task: %w", err)
	}
	printOutcome(ok, message)
	if !ok {
		return errSilentExit
	}
	return nil
}

func runQueueStats(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	logger := newLogger(cfg)
	defer logger.Close()

	stats := workqueue.New(cfg, logger).GetStats()

	fmt.Println(headerStyle.Render("Work Queue Statistics:"))
	fmt.Printf("  Total tasks: %d\n", stats.Total)
	fmt.Printf("  Available: %d\n", stats.Available)
	fmt.Printf("  Blocked: %d\n", stats.Blocked)
	fmt.Printf("  Claimed: %d\n", stats.Claimed)
	fmt.Printf("  Completed: %d\n", stats.Completed)
	fmt.Printf("  All-time completed: %d\n", stats.TotalCompleted)
	return nil
}

func printOutcome(ok bool, message string) {
	if ok {
		fmt.Println(successStyle.Render(message))
	} else {
		fmt.Println(warningStyle.Render(message))
	}
}
