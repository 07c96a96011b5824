// Package cmd implements the peer-watch command line.
package cmd

import (
	"os"

	"github.com/rudransh-shrivastava/peer-watch/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logLevel string
	dbPath   string
)

var rootCmd = &cobra.Command{
	Use:   `peer-watch`,
	Short: `watch a video together over peer to peer channels`,
	Long: `peer-watch streams a media file from one peer to the others in a room
and keeps everyone's playback in step.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "peer-watch.sqlite3", "path to the library and history database")

	rootCmd.AddCommand(signalCmd)
	rootCmd.AddCommand(hostCmd)
	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(libraryCmd)
	rootCmd.AddCommand(historyCmd)
}

func newLogger() *logrus.Logger {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log := logger.New(os.Stderr, level)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", logLevel)
	}
	return log
}
