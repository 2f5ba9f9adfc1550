package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mysql-backup-porter/internal/artifact"
	"mysql-backup-porter/internal/codec"
	"mysql-backup-porter/internal/database"
	"mysql-backup-porter/internal/display"
	"mysql-backup-porter/internal/importer"
	"mysql-backup-porter/internal/report"
	"mysql-backup-porter/internal/store"
)

var (
	importDatabase     string
	importDir          string
	importHost         string
	importPort         int
	importUser         string
	importFetch        string
	importAutoContinue bool
	importHalt         bool
	importDecrypt      bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Apply an exported artifact set to a target MySQL instance",
	RunE:  runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importDatabase, "database", "", "target database name (required)")
	importCmd.Flags().StringVar(&importDir, "dir", "", "artifact set directory (required unless --fetch)")
	importCmd.Flags().StringVar(&importHost, "host", "127.0.0.1", "target MySQL host")
	importCmd.Flags().IntVar(&importPort, "port", 3306, "target MySQL port")
	importCmd.Flags().StringVar(&importUser, "user", "root", "target MySQL user")
	importCmd.Flags().StringVar(&importFetch, "fetch", "", "pull the artifact set from a store URL (s3://, gs://, azblob://) before importing")
	importCmd.Flags().BoolVar(&importAutoContinue, "auto-continue", false, "continue past stage failures without asking")
	importCmd.Flags().BoolVar(&importHalt, "halt-on-failure", false, "halt at the first stage failure without asking")
	importCmd.Flags().BoolVar(&importDecrypt, "decrypt", false, "decrypt encrypted stage files with a prompted passphrase")

	importCmd.MarkFlagsMutuallyExclusive("auto-continue", "halt-on-failure")
}

func runImport(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	format, err := summaryFormat()
	if err != nil {
		return err
	}
	colors := newColorSystem()

	if importDatabase == "" {
		return fmt.Errorf("--database is required")
	}
	if importDir == "" && importFetch == "" {
		return fmt.Errorf("--dir is required (or fetch the set with --fetch)")
	}

	// The target password is never accepted inline.
	password, err := promptSecret(fmt.Sprintf("MySQL password for %s@%s: ", importUser, importHost))
	if err != nil {
		return err
	}

	var encryptor *codec.Encryptor
	if importDecrypt {
		passphrase, err := promptSecret("Artifact decryption passphrase: ")
		if err != nil {
			return err
		}
		if encryptor, err = codec.NewEncryptor(passphrase); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir := importDir
	if importFetch != "" {
		remote, err := store.FromURL(ctx, importFetch)
		if err != nil {
			return err
		}
		if dir == "" {
			dir = filepath.Join(os.TempDir(), "porter-fetch-"+importDatabase)
		}
		fetched, err := store.FetchSet(ctx, remote, importDatabase, dir, logger)
		if err != nil {
			return err
		}
		logger.WithField("files", fetched).Info("Fetched artifact set from store")
	}

	conn := database.Config{
		Host:     importHost,
		Port:     importPort,
		Username: importUser,
		Password: password,
		Timeout:  30 * time.Second,
	}.WithDefaults()

	catalog, err := database.Connect(conn, logger)
	if err != nil {
		return err
	}
	defer catalog.Close()

	client := database.NewShellClient(conn, logger)
	pipeline := importer.NewPipeline(catalog, client, logger)

	ledger, err := pipeline.ImportArtifactSet(ctx, importDatabase, importer.Options{
		Dir:       dir,
		Encryptor: encryptor,
		Decide:    continuationPolicy(colors),
		Relay:     display.DetectRelay(colors),
	})
	if err != nil {
		return err
	}

	return report.NewImportReport(ledger).Render(os.Stdout, format)
}

// continuationPolicy picks the decision callback for stage failures: a
// fixed policy for unattended runs, a prompt otherwise.
func continuationPolicy(colors display.ColorSystem) importer.DecisionFunc {
	if importAutoContinue {
		return importer.AlwaysContinue
	}
	if importHalt {
		return importer.AlwaysHalt
	}
	return func(stage artifact.Stage, cause error) bool {
		fmt.Fprintln(os.Stderr, colors.Colorize(
			fmt.Sprintf("Stage %s failed: %v", stage, cause), colors.Theme().Error))
		return promptYesNo("Continue with the remaining stages?", true)
	}
}
