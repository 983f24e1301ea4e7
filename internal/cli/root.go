// Package cli implements the taskvault command-line interface.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "taskvault",
	Short: "Task and memory store with pluggable storage backends",
	Long: `taskvault manages projects, tasks and conversation memory on top of
two interchangeable storage backends: an embedded relational store
(the default) and a cloud document store with native vector search.

Each project picks its backend through its storage mode; the migrate
command moves a project's data between backends and cuts the mode
over once the copy is verified.

Quick start:
  taskvault projects add .             Register the current directory
  taskvault tasks add -p <id> "title"  Create a task
  taskvault memory search -p <id> "q"  Search conversation memory
  taskvault migrate <id> --dry-run     Preview a backend migration`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// exitError carries a non-default process exit code through cobra's
// error return, so deferred cleanup in RunE still runs before exit.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return errorMessage(e.err) }
func (e *exitError) Unwrap() error { return e.err }

// ExitCode maps an error returned by Execute to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.taskvault/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(newProjectsCmd())
	rootCmd.AddCommand(newTasksCmd())
	rootCmd.AddCommand(newMemoryCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("$HOME/.taskvault")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("TASKVAULT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
