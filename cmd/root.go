package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tadoEng/EtabExtension/internal/config"
	"github.com/tadoEng/EtabExtension/internal/logging"
)

var (
	cfgFile     string
	projectDir  string
	logLevel    string
	logger      *log.Logger
	logCloser   io.Closer
	showVersion bool
)

// Version is set at build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "etabext",
	Short: "Version control for ETABS structural design files",
	Long: `etabext keeps the history of ETABS design files (.edb):
  - immutable, content-addressed versions on independent branches
  - one working file per branch, opened and saved in ETABS
  - optional E2K exports for structural and geometric diffs
  - optional embeddings of version messages for semantic search

Every project keeps its data in a .etabext directory next to the design.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Printf("etabext %s\n", Version)
			return nil
		}
		return cmd.Help()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, styleError.Render("Error:"), err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/etabext/config.toml)")
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "C", ".", "project directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug|info|warn|error (overrides log.level)")
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Print the version")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		viper.AddConfigPath(configDir(home))
		viper.SetConfigType("toml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("ETABEXT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	config.Defaults()

	configErr := viper.ReadInConfig()

	level := config.GetLogLevel()
	if logLevel != "" {
		level = logLevel
	}
	l, closer, err := logging.Open(config.GetLogFile(), level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Warning:", err)
		l, closer = logging.New(os.Stderr, level), nil
	}
	logger, logCloser = l, closer

	if configErr == nil {
		logger.Debug("using config file", "path", viper.ConfigFileUsed())
	}
}

// configDir is where init writes the default config.
func configDir(home string) string {
	return filepath.Join(home, ".config", "etabext")
}

// getLogger returns the CLI logger, discarding output when commands run
// without initConfig (tests).
func getLogger() *log.Logger {
	return logging.OrDiscard(logger)
}
