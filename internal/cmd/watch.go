package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fenwick/warren/internal/config"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch shared state for changes",
	Long: `Watch the state directory and print a line whenever a shared document
changes. Useful for observing coordination between sessions as it
happens. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(cfg.StateDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", cfg.StateDir, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Watching %s (ctrl-c to stop)\n", cfg.StateDir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(event.Name)
			// Documents land via rename from a temp file, so temp
			// files and lock sidecars are just noise here.
			if !strings.HasSuffix(name, ".json") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			stamp := mutedStyle.Render(time.Now().Format("15:04:05"))
			fmt.Printf("%s %s %s\n", stamp, event.Op, name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Println(errorStyle.Render(fmt.Sprintf("watch error: %v", err)))
		}
	}
}
