package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mysql-backup-porter/internal/display"
	"mysql-backup-porter/internal/logging"
	"mysql-backup-porter/internal/report"
)

var cfgFile string

// Version information set from build flags through SetVersionInfo.
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
	goVersion = "unknown"
)

// Persistent flags shared by export and import.
var (
	logLevel     string
	logFile      string
	outputFormat string
	noColor      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mysql-backup-porter",
	Short: "Convert a physical MySQL backup into typed SQL artifacts and re-import them",
	Long: `mysql-backup-porter turns a prepared physical MySQL backup into a set of
dependency-ordered SQL artifacts (schema, data, views, routines, triggers,
events, grants) and applies those artifacts to any target instance with
size-adaptive execution and a per-stage outcome ledger.

Export boots a throwaway MySQL container from the backup, reads every
selected database out of it, and tears the container down on every exit
path. Import runs offline against any reachable MySQL endpoint.

Examples:
  # Export every user database from a prepared backup
  mysql-backup-porter export --backup-dir=/backups/2026-08-25 --output-dir=./dump --all

  # Export two databases with zstd compression, upload to S3
  mysql-backup-porter export --backup-dir=/backups/2026-08-25 \
                             --databases=shop,crm --compress=zstd \
                             --upload=s3://db-artifacts/nightly

  # Import one database's artifact set into a fresh target
  mysql-backup-porter import --database=shop_copy --dir=./dump/shop \
                             --host=db.internal --user=root

  # Unattended import that never stops on stage failures
  mysql-backup-porter import --database=shop_copy --dir=./dump/shop --auto-continue`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mysql-backup-porter.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "normal", "log level (quiet, normal, verbose, debug)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to file in addition to stdout")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "text", "summary format (text, json, yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable color output")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))
	viper.BindPFlag("format", rootCmd.PersistentFlags().Lookup("format"))
	viper.BindPFlag("no_color", rootCmd.PersistentFlags().Lookup("no-color"))

	rootCmd.AddCommand(createVersionCommand())
}

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc, gv string) {
	version = v
	buildTime = bt
	gitCommit = gc
	goVersion = gv
}

// createVersionCommand creates the version subcommand
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mysql-backup-porter version %s\n", version)
			fmt.Printf("Built: %s\n", buildTime)
			fmt.Printf("Commit: %s\n", gitCommit)
			fmt.Printf("Go version: %s\n", goVersion)
		},
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".mysql-backup-porter")
	}

	viper.SetEnvPrefix("MYSQL_BACKUP_PORTER")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && logLevel == "debug" {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func newLogger() (*logging.Logger, error) {
	return logging.NewLogger(logging.Config{
		Level:   logging.LogLevel(viper.GetString("log_level")),
		Format:  "text",
		LogFile: viper.GetString("log_file"),
	})
}

func newColorSystem() display.ColorSystem {
	return display.NewColorSystem(display.DefaultTheme(), viper.GetBool("no_color"))
}

func summaryFormat() (report.Format, error) {
	return report.ParseFormat(viper.GetString("format"))
}
