// Command arsync runs the state synchronization engine for the task
// client: it keeps the local task graph durable across the two local
// stores, merges shared collaborator data from the sync server, and
// relays live updates over the realtime channel.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var rootCmd = &cobra.Command{
	Use:   "arsync",
	Short: "State sync engine for the task client",
	Long: `arsync keeps the local task graph in sync.

It persists state into two local stores (a durable SQLite store and a
fast snapshot store), merges the server's copy and resources shared by
collaborators, and relays live updates over the realtime channel.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default ~/.arsync.yaml)")
	rootCmd.PersistentFlags().String("server", "", "sync server base URL")
	rootCmd.PersistentFlags().String("token", "", "bearer credential for the sync server")
	rootCmd.PersistentFlags().String("data-dir", "", "local data directory (default ~/.arsync)")
	rootCmd.PersistentFlags().String("log-file", "", "rotating log file (default stderr)")

	_ = viper.BindPFlag("server.url", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("server.token", rootCmd.PersistentFlags().Lookup("token"))
	_ = viper.BindPFlag("data.dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log-file"))

	viper.SetDefault("server.url", "http://localhost:3001")
	viper.SetDefault("sync.interval", "30s")
	viper.SetDefault("storage.key", "app-storage")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(invitationsCmd)
}

func initConfig() {
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".arsync")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("ARSYNC")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Warning: failed to read config: %v\n", err)
		}
	}
}

// dataDir resolves the local data directory.
func dataDir() string {
	if dir := viper.GetString("data.dir"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".arsync"
	}
	return filepath.Join(home, ".arsync")
}

// logWriter returns the destination for component loggers: a rotating
// file when configured, stderr otherwise.
func logWriter() io.Writer {
	if file := viper.GetString("log.file"); file != "" {
		return &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
		}
	}
	return os.Stderr
}

func newLogger(prefix string) *log.Logger {
	return log.New(logWriter(), prefix, log.LstdFlags)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
