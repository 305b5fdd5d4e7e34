package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/fenwick/warren/internal/config"
	"github.com/fenwick/warren/internal/taskclaim"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage advisory task claims",
	Long: `Commands for claiming and releasing tasks by content. Task identity is
derived from normalized content, so two sessions phrasing the same task
the same way contend for the same claim. Conflicts are advisory unless
strict mode is enabled.`,
}

var taskClaimCmd = &cobra.Command{
	Use:   "claim <content>",
	Short: "Claim a task by its content",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskClaim,
}

var taskReleaseCmd = &cobra.Command{
	Use:   "release <content>",
	Short: "Release a task claim",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskRelease,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List current task claims",
	Args:  cobra.NoArgs,
	RunE:  runTaskList,
}

var (
	taskTag     string
	taskListTag string
	taskStrict  bool
)

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskClaimCmd)
	taskCmd.AddCommand(taskReleaseCmd)
	taskCmd.AddCommand(taskListCmd)

	taskClaimCmd.Flags().StringVar(&taskTag, "tag", "", "session tag to claim as (default: this session's tag)")
	taskClaimCmd.Flags().BoolVar(&taskStrict, "strict", false, "fail instead of warn on conflict")
	taskListCmd.Flags().StringVar(&taskListTag, "tag", "", "only show claims held by this tag")
}

func runTaskClaim(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	logger := newLogger(cfg)
	defer logger.Close()

	id, tag, err := identify(cfg, logger, taskTag)
	if err != nil {
		return fmt.Errorf("failed to register session: %w", err)
	}

	var opts []taskclaim.Option
	if cmd.Flags().Changed("strict") {
		opts = append(opts, taskclaim.WithStrict(taskStrict))
	}

	reg := taskclaim.NewRegistry(cfg, logger, opts...)
	conflict, err := reg.Claim(args[0], id, tag)
	if err != nil {
		if errors.Is(err, taskclaim.ErrClaimDenied) && conflict != nil {
			printTaskConflict(conflict)
			return errSilentExit
		}
		return fmt.Errorf("failed to claim task: %w", err)
	}
	if conflict != nil {
		printTaskConflict(conflict)
		return nil
	}

	fmt.Printf("Claimed %s (%s)\n", taskclaim.TaskID(args[0]), tagStyle.Render("@"+tag))
	return nil
}

func printTaskConflict(c *taskclaim.Conflict) {
	fmt.Println(warningStyle.Render(fmt.Sprintf("CONFLICT: Task already claimed by @%s", c.HeldBy)))
	fmt.Printf("  Task: %s\n", c.TaskContent)
	fmt.Printf("  Claimed at: %s\n", c.ClaimedAt.Format(time.RFC3339))
}

func runTaskRelease(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	logger := newLogger(cfg)
	defer logger.Close()

	id, _, err := identify(cfg, logger, "")
	if err != nil {
		return fmt.Errorf("failed to register session: %w", err)
	}

	released, err := taskclaim.NewRegistry(cfg, logger).Release(args[0], id)
	if err != nil {
		return fmt.Errorf("failed to release task: %w", err)
	}
	if released {
		fmt.Printf("Released %s\n", taskclaim.TaskID(args[0]))
	} else {
		fmt.Println("No claim to release.")
	}
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	logger := newLogger(cfg)
	defer logger.Close()

	claims := taskclaim.NewRegistry(cfg, logger).List(taskListTag)
	if len(claims) == 0 {
		fmt.Println("No task claims.")
		return nil
	}

	fmt.Println(headerStyle.Render("Task claims:"))
	for _, c := range claims {
		fmt.Printf("  %s %s: %s\n", tagStyle.Render("@"+c.SessionTag), c.TaskID, c.TaskContent)
		fmt.Printf("      claimed %s\n", mutedStyle.Render(humanSince(c.ClaimedAt)))
	}
	return nil
}
