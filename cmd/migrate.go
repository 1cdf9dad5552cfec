package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmorgan/regflag/internal/config"
	"github.com/jmorgan/regflag/internal/logger"
	"github.com/jmorgan/regflag/internal/service"
	"github.com/jmorgan/regflag/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateDir string
var migrateState string
var migrateDocType string
var migrateModelVersion string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate analyzer CSV exports into PostgreSQL",
	Long: `Migrate scans for red_flag_analysis_*.csv exports and imports them
into the normalized schema. Each row resolves its document, inserts a new
current analysis (demoting any previous one), and inserts the row's red
flags. If federal_statute_references.csv is present, statute citations
are upserted per document afterwards.

The migration is safe to re-run: documents are never duplicated or
overwritten, old analyses are kept but marked non-current, and statute
references are replaced in place.

Examples:
  # Migrate exports from the current directory
  ./regflag migrate

  # Migrate California policy documents from a data directory
  ./regflag migrate --dir ./exports --state CA --type policy_document`,
	Run: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().StringVarP(&migrateDir, "dir", "d", "", "Directory containing the CSV exports")
	migrateCmd.Flags().StringVarP(&migrateState, "state", "s", "", "Two-letter state code ('' for federal documents)")
	migrateCmd.Flags().StringVarP(&migrateDocType, "type", "t", "", "Document type (regulation or policy_document)")
	migrateCmd.Flags().StringVar(&migrateModelVersion, "model-version", "", "Model version recorded on analyses without one")
}

func runMigrate(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	// Flags override config
	if migrateDir != "" {
		cfg.Import.Dir = migrateDir
	}
	if cmd.Flags().Changed("state") {
		cfg.Import.State = migrateState
	}
	if migrateDocType != "" {
		cfg.Import.DocType = migrateDocType
	}
	if migrateModelVersion != "" {
		cfg.Import.ModelVersion = migrateModelVersion
	}

	zlog, err := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		zlog.Info("received interrupt signal, shutting down")
		cancel()
	}()

	// Connect to database; a connectivity failure is fatal for the run
	zlog.Info("connecting to database")
	db, err := store.NewDB(cfg.Database.URL)
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Create dependencies
	source := service.NewCSVSource(cfg.Import.Dir)
	parser := service.NewFlagParser()
	documentStore := store.NewDocumentStore(db)
	analysisStore := store.NewAnalysisStore(db)
	importer := service.NewImporter(source, parser, documentStore, analysisStore, service.ImporterOptions{
		State:        cfg.Import.State,
		DocType:      cfg.Import.DocType,
		ModelVersion: cfg.Import.ModelVersion,
	}, zlog)

	// Run the analysis migration
	zlog.Info("starting migration",
		zap.String("dir", cfg.Import.Dir),
		zap.String("state", cfg.Import.State),
		zap.String("type", cfg.Import.DocType),
	)
	stats, err := importer.Migrate(ctx)
	if err != nil {
		if ctx.Err() != nil {
			zlog.Warn("migration cancelled")
			importer.PrintSummary(stats)
			os.Exit(1)
		}
		zlog.Fatal("migration failed", zap.Error(err))
	}
	importer.PrintSummary(stats)

	// Statute references are best-effort: a failure here never undoes the
	// analysis migration
	statuteStats, err := importer.MigrateStatuteReferences(ctx)
	if err != nil {
		if ctx.Err() != nil {
			zlog.Warn("migration cancelled")
			os.Exit(1)
		}
		zlog.Error("statute reference migration failed, continuing", zap.Error(err))
	}
	if statuteStats != nil {
		importer.PrintStatuteSummary(statuteStats)
	}

	// Post-import report
	metricsService := service.NewMetricsService(db)
	metrics, err := metricsService.Calculate(ctx)
	if err != nil {
		zlog.Warn("failed to calculate metrics", zap.Error(err))
	} else {
		zlog.Info("database totals",
			zap.Int("documents", metrics.TotalDocuments),
			zap.Int("analyses", metrics.TotalAnalyses),
			zap.Int("current_analyses", metrics.CurrentAnalyses),
			zap.Int("red_flags", metrics.TotalFlags),
			zap.Float64("average_severity", metrics.AverageSeverity),
			zap.Int("high_severity_documents", metrics.HighSeverityDocs),
		)
		for _, ts := range metrics.SeverityByType {
			zlog.Info("severity by type",
				zap.String("type", ts.Type),
				zap.Int("documents", ts.Documents),
				zap.Float64("average_severity", ts.AverageSeverity),
			)
		}
		for _, cc := range metrics.TopCategories {
			zlog.Info("top flag category",
				zap.String("category", cc.Category),
				zap.Int("count", cc.Count),
				zap.Float64("average_severity", cc.AverageSeverity),
			)
		}
	}

	// Exit with error code if there were failures
	if stats.Failed > 0 || stats.FilesFailed > 0 {
		os.Exit(1)
	}
}
