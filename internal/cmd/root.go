package cmd

import (
	"errors"
	"strings"

	"github.com/fenwick/warren/internal/config"
	"github.com/fenwick/warren/internal/logging"
	"github.com/fenwick/warren/internal/session"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "warren",
	Short: "Filesystem coordination for concurrent agent sessions",
	Long: `Warren coordinates short-lived CLI agent sessions that share a working
directory. Sessions register themselves, claim tasks and files through
advisory registries, and pull work from a shared priority queue. All
state lives in JSON documents under the state directory, guarded by
sidecar lock files.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// errSilentExit signals a non-zero exit where the outcome message has
// already been printed.
var errSilentExit = errors.New("silent exit")

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// IsSilentExit reports whether err only asks for a non-zero exit code.
func IsSilentExit(err error) bool {
	return errors.Is(err, errSilentExit)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is .warren/warren.yaml)")
	rootCmd.PersistentFlags().String("state-dir", "", "state directory (default is .warren)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("state_dir", rootCmd.PersistentFlags().Lookup("state-dir"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("warren")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.DefaultStateDir)
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("WARREN")
	// Replace dots with underscores for nested keys in env vars
	// e.g., WARREN_CLAIMS_STRICT for claims.strict
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// newLogger opens the shared log file. Logging failures never block a
// command, callers get a nil logger that discards everything.
func newLogger(cfg *config.Config) *logging.Logger {
	if !cfg.Logging.Enabled {
		return nil
	}
	logger, err := logging.New(cfg.StateDir, cfg.Logging.Level)
	if err != nil {
		return nil
	}
	return logger
}

// identify resolves the calling session's identity and registers a
// heartbeat, returning the session id and its display tag.
func identify(cfg *config.Config, logger *logging.Logger, requestedTag string) (string, string, error) {
	reg := session.NewRegistry(cfg, logger)
	id := reg.ResolveID()
	tag, _, err := reg.Heartbeat(id, requestedTag)
	if err != nil {
		return "", "", err
	}
	return id, tag, nil
}
