package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	configCmd "github.com/sidkik/ftpsync/cmd/config"
	"github.com/sidkik/ftpsync/cmd/start"
	"github.com/sidkik/ftpsync/cmd/testconn"
	"github.com/sidkik/ftpsync/cmd/util"
	"github.com/sidkik/ftpsync/cmd/version"
	"github.com/sidkik/ftpsync/pkg/config"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "FTPSYNC_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}

	rootCmd := &cobra.Command{
		Use:          "ftpsync",
		Short:        "Mirror a local directory to an SFTP server",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&util.ConfigPath, "config",
		config.DefaultConfigPath, "Path to the ftpsync config file")
	rootCmd.AddCommand(
		configCmd.New(),
		start.New(),
		testconn.New(),
		version.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}
