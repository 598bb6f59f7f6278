package main

import (
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/getsentry/calltree/internal/logutil"
)

var release string

var config ServiceConfig

var rootCmd = &cobra.Command{
	Use:   "calltree [command] (flags)",
	Short: "record, read and prune call trees",
	Long:  ``,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		config, err = loadConfig()
		if err != nil {
			return err
		}
		logutil.ConfigureLogger(config.LogLevel)
		return sentry.Init(sentry.ClientOptions{
			Dsn:         config.SentryDSN,
			Environment: config.Environment,
			Release:     release,
		})
	},
	SilenceUsage: true,
}

func main() {
	cobra.EnableCommandSorting = false
	rootCmd.AddCommand(
		runCmd,
		readCmd,
		cleanupCmd,
	)

	err := rootCmd.Execute()
	sentry.Flush(5 * time.Second)
	if err != nil {
		log.Err(err).Msg("command failed")
		os.Exit(1)
	}
}
