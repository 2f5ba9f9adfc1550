package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mysql-backup-porter/internal/codec"
	"mysql-backup-porter/internal/database"
	"mysql-backup-porter/internal/discovery"
	"mysql-backup-porter/internal/errors"
	"mysql-backup-porter/internal/export"
	"mysql-backup-porter/internal/report"
	"mysql-backup-porter/internal/service"
	"mysql-backup-porter/internal/store"
)

var (
	exportBackupDir string
	exportOutputDir string
	exportDatabases []string
	exportAll       bool
	exportSkipFull  bool
	exportPassword  string
	exportImage     string
	exportPort      int
	exportWorkDir   string
	exportCompress  string
	exportEncrypt   bool
	exportUpload    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Boot an ephemeral MySQL from a backup and export its databases as SQL artifacts",
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportBackupDir, "backup-dir", "", "prepared physical backup directory (required)")
	exportCmd.Flags().StringVar(&exportOutputDir, "output-dir", "./export", "directory artifact sets are written under")
	exportCmd.Flags().StringSliceVar(&exportDatabases, "databases", nil, "databases to export, in order (comma separated)")
	exportCmd.Flags().BoolVar(&exportAll, "all", false, "export every user database found in the backup")
	exportCmd.Flags().BoolVar(&exportSkipFull, "skip-full", false, "skip the combined full dump per database")
	exportCmd.Flags().StringVar(&exportPassword, "password", "", "MySQL root password (prompted when omitted)")
	exportCmd.Flags().StringVar(&exportImage, "image", "mysql:8.0", "MySQL image for the ephemeral service")
	exportCmd.Flags().IntVar(&exportPort, "port", 33306, "host port the ephemeral service binds")
	exportCmd.Flags().StringVar(&exportWorkDir, "work-dir", "", "parent directory for the restored data directory (default system temp)")
	exportCmd.Flags().StringVar(&exportCompress, "compress", "none", "compress stage files (none, gzip, lz4, zstd)")
	exportCmd.Flags().BoolVar(&exportEncrypt, "encrypt", false, "encrypt stage files with a prompted passphrase")
	exportCmd.Flags().StringVar(&exportUpload, "upload", "", "push artifact sets to a store URL (s3://, gs://, azblob://) after export")
}

func runExport(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	format, err := summaryFormat()
	if err != nil {
		return err
	}

	if exportBackupDir == "" {
		return fmt.Errorf("--backup-dir is required")
	}
	if !exportAll && len(exportDatabases) == 0 {
		return fmt.Errorf("select databases with --databases or pass --all")
	}

	compression, err := codec.ParseCompression(exportCompress)
	if err != nil {
		return err
	}

	password := exportPassword
	if password == "" {
		if password, err = promptSecret("MySQL root password: "); err != nil {
			return err
		}
	}

	var encryptor *codec.Encryptor
	if exportEncrypt {
		passphrase, err := promptSecret("Artifact encryption passphrase: ")
		if err != nil {
			return err
		}
		if encryptor, err = codec.NewEncryptor(passphrase); err != nil {
			return err
		}
	}

	// Operator abort still tears the ephemeral service down.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootstrapper := service.NewBootstrapper(logger)
	handle, err := bootstrapper.PrepareAndStart(ctx, service.Config{
		BackupDir:    exportBackupDir,
		Image:        exportImage,
		RootPassword: password,
		Port:         exportPort,
		WorkRoot:     exportWorkDir,
	})
	if err != nil {
		return err
	}
	defer bootstrapper.Teardown(context.Background(), handle)

	catalog, err := database.Connect(handle.Conn, logger)
	if err != nil {
		return err
	}
	defer catalog.Close()

	resolver := discovery.NewResolver(catalog, logger)
	databases, err := resolver.Resolve(ctx, discovery.Selection{Databases: exportDatabases})
	if err != nil {
		return err
	}

	var remote store.Store
	if exportUpload != "" {
		if remote, err = store.FromURL(ctx, exportUpload); err != nil {
			return err
		}
	}

	client := database.NewShellClient(handle.Conn, logger)
	pipeline := export.NewPipeline(catalog, client, logger)
	rep := report.NewExportReport()

	opts := export.Options{
		OutputDir:   exportOutputDir,
		IncludeFull: !exportSkipFull,
		Compression: compression,
		Encryptor:   encryptor,
	}

	for _, dbName := range databases {
		set, err := pipeline.ExportDatabase(ctx, dbName, opts)
		if err != nil {
			if errors.IsFatal(err) {
				return err
			}
			rep.AddFailure(dbName, err)
			continue
		}
		rep.AddSet(set)

		if remote != nil {
			if err := store.UploadSet(ctx, remote, set, logger); err != nil {
				return err
			}
		}
	}

	rep.Finish()
	if _, err := rep.WriteSummaryFile(exportOutputDir); err != nil {
		return err
	}
	return rep.Render(os.Stdout, format)
}
