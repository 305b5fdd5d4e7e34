package cmd

import (
	"fmt"

	"github.com/fenwick/warren/internal/config"
	"github.com/fenwick/warren/internal/fileclaim"
	"github.com/fenwick/warren/internal/session"
	"github.com/spf13/cobra"
)

var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Manage advisory file claims",
	Long: `Commands for claiming and releasing files before editing them. Claims
are advisory and expire after a quiet period, so an abandoned claim
never blocks other sessions for long.`,
}

var fileClaimCmd = &cobra.Command{
	Use:   "claim <path>",
	Short: "Claim a file before editing it",
	Args:  cobra.ExactArgs(1),
	RunE:  runFileClaim,
}

var fileReleaseCmd = &cobra.Command{
	Use:   "release <path>",
	Short: "Release a file claim",
	Args:  cobra.ExactArgs(1),
	RunE:  runFileRelease,
}

var fileCheckCmd = &cobra.Command{
	Use:   "check <path>",
	Short: "Check whether another session holds a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runFileCheck,
}

var fileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List current file claims",
	Args:  cobra.NoArgs,
	RunE:  runFileList,
}

var fileTag string

func init() {
	rootCmd.AddCommand(fileCmd)
	fileCmd.AddCommand(fileClaimCmd)
	fileCmd.AddCommand(fileReleaseCmd)
	fileCmd.AddCommand(fileCheckCmd)
	fileCmd.AddCommand(fileListCmd)

	fileClaimCmd.Flags().StringVar(&fileTag, "tag", "", "session tag to claim as (default: this session's tag)")
}

func runFileClaim(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	logger := newLogger(cfg)
	defer logger.Close()

	id, tag, err := identify(cfg, logger, fileTag)
	if err != nil {
		return fmt.Errorf("failed to register session: %w", err)
	}

	conflict, err := fileclaim.NewRegistry(cfg, logger).Claim(args[0], id, tag)
	if err != nil {
		return fmt.Errorf("failed to claim file: %w", err)
	}
	if conflict != nil {
		printFileConflict(conflict)
		return errSilentExit
	}

	fmt.Printf("Claimed %s (%s)\n", args[0], tagStyle.Render("@"+tag))
	return nil
}

func printFileConflict(c *fileclaim.Conflict) {
	fmt.Println(warningStyle.Render(fmt.Sprintf("[CONFLICT] File '%s' is being edited by @%s", c.File, c.HeldBy)))
	fmt.Printf("[CONFLICT] Locked since: %s\n", c.Since.Format("2006-01-02T15:04:05"))
	fmt.Println("[CONFLICT] Proceeding may cause merge conflicts!")
}

func runFileRelease(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	logger := newLogger(cfg)
	defer logger.Close()

	id, _, err := identify(cfg, logger, "")
	if err != nil {
		return fmt.Errorf("failed to register session: %w", err)
	}

	released, err := fileclaim.NewRegistry(cfg, logger).Release(args[0], id)
	if err != nil {
		return fmt.Errorf("failed to release file: %w", err)
	}
	if released {
		fmt.Printf("Released %s\n", args[0])
	} else {
		fmt.Println("No claim to release.")
	}
	return nil
}

func runFileCheck(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	logger := newLogger(cfg)
	defer logger.Close()

	id := session.NewRegistry(cfg, logger).ResolveID()
	conflict := fileclaim.NewRegistry(cfg, logger).Check(args[0], id)
	if conflict == nil {
		fmt.Println("File is free.")
		return nil
	}
	printFileConflict(conflict)
	return errSilentExit
}

func runFileList(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	logger := newLogger(cfg)
	defer logger.Close()

	claims := fileclaim.NewRegistry(cfg, logger).List()
	if len(claims) == 0 {
		fmt.Println("No file claims.")
		return nil
	}

	fmt.Println(headerStyle.Render("File claims:"))
	for _, c := range claims {
		fmt.Printf("  %s %s\n", tagStyle.Render("@"+c.SessionTag), c.Path)
		fmt.Printf("      last touched %s\n", mutedStyle.Render(humanSince(c.LastTouched)))
	}
	return nil
}
