package cmd

import (
	"fmt"
	"time"

	"github.com/fenwick/warren/internal/config"
	"github.com/fenwick/warren/internal/session"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage coordinating sessions",
	Long: `Commands for registering, listing, and ending sessions. Each session
heartbeats into sessions.json and is assigned a worker tag. Sessions
silent for too long are evicted together with their claims.`,
}

var sessionHeartbeatCmd = &cobra.Command{
	Use:   "heartbeat",
	Short: "Register or refresh this session",
	Long: `Register this session in the shared registry, or refresh its
last-seen timestamp if already registered. Prints the session's tag.`,
	Args: cobra.NoArgs,
	RunE: runSessionHeartbeat,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessionList,
}

var sessionEndCmd = &cobra.Command{
	Use:   "end [session-id]",
	Short: "End a session and release its claims",
	Long: `Remove a session from the registry and release every task claim and
file claim it holds, in one transaction. Without an argument, ends the
calling session.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSessionEnd,
}

var sessionCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Evict stale sessions",
	Long: `Evict every session whose last heartbeat is older than the stale
threshold, releasing their task and file claims.`,
	Args: cobra.NoArgs,
	RunE: runSessionCleanup,
}

var heartbeatTag string

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionHeartbeatCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionEndCmd)
	sessionCmd.AddCommand(sessionCleanupCmd)

	sessionHeartbeatCmd.Flags().StringVar(&heartbeatTag, "tag", "", "requested display tag (default: assigned worker-N)")
}

func runSessionHeartbeat(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	logger := newLogger(cfg)
	defer logger.Close()

	reg := session.NewRegistry(cfg, logger)
	id := reg.ResolveID()
	tag, created, err := reg.Heartbeat(id, heartbeatTag)
	if err != nil {
		return fmt.Errorf("failed to heartbeat: %w", err)
	}

	if created {
		fmt.Printf("Registered session %s as %s\n", id, tagStyle.Render("@"+tag))
	} else {
		fmt.Printf("Session %s is %s\n", id, tagStyle.Render("@"+tag))
	}

	if others := reg.Others(id); len(others) > 0 {
		fmt.Println(mutedStyle.Render("Other active sessions:"))
		for _, o := range others {
			fmt.Printf("  %s (last seen %s)\n", tagStyle.Render("@"+o.Tag), humanSince(o.LastSeen))
		}
	}
	return nil
}

func runSessionList(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	logger := newLogger(cfg)
	defer logger.Close()

	sessions := session.NewRegistry(cfg, logger).List()
	if len(sessions) == 0 {
		fmt.Println("No active sessions.")
		return nil
	}

	fmt.Println(headerStyle.Render("Sessions:"))
	for _, s := range sessions {
		marker := mutedStyle.Render("idle")
		if s.Active {
			marker = successStyle.Render("active")
		}
		fmt.Printf("  %s %s (%s)\n", tagStyle.Render("@"+s.Tag), s.ID, marker)
		fmt.Printf("      last seen %s, %d tool calls", humanSince(s.LastSeen), s.ToolCount)
		if len(s.ClaimedTasks) > 0 {
			fmt.Printf(", %d claimed tasks", len(s.ClaimedTasks))
		}
		fmt.Println()
	}
	return nil
}

func runSessionEnd(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	logger := newLogger(cfg)
	defer logger.Close()

	reg := session.NewRegistry(cfg, logger)
	id := reg.ResolveID()
	if len(args) > 0 {
		id = args[0]
	}

	evicted, err := reg.End(id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if len(evicted) == 0 {
		fmt.Println("Session not found.")
		return nil
	}

	for _, e := range evicted {
		fmt.Printf("Ended session %s (released %d task claims, %d file claims)\n",
			tagStyle.Render("@"+e.Tag), e.ReleasedTasks, e.ReleasedFiles)
	}
	return nil
}

func runSessionCleanup(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	logger := newLogger(cfg)
	defer logger.Close()

	evicted, err := session.NewRegistry(cfg, logger).EvictStale()
	if err != nil {
		return fmt.Errorf("failed to evict stale sessions: %w", err)
	}
	if len(evicted) == 0 {
		fmt.Println("No stale sessions.")
		return nil
	}

	for _, e := range evicted {
		fmt.Printf("Evicted stale session %s (released %d task claims, %d file claims)\n",
			tagStyle.Render("@"+e.Tag), e.ReleasedTasks, e.ReleasedFiles)
	}
	return nil
}

// humanSince renders an elapsed duration compactly: "42s ago", "3m ago",
// "2h ago".
func humanSince(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
}
