package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"

	"github.com/jmorgan/regflag/internal/config"
	"github.com/jmorgan/regflag/internal/store"
	"github.com/spf13/cobra"
)

var statusState string
var statusDocType string

var statusCmd = &cobra.Command{
	Use:   "status <source_index>",
	Short: "Show the current analysis for a document",
	Long: `Status looks up a document by its (state, source_index, type) identity
and prints its current analysis, red flags, and statute references.

Examples:
  # Show NY regulation 42
  ./regflag status 42

  # Show a federal policy document
  ./regflag status 42 --state "" --type policy_document`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusState, "state", "s", "", "Two-letter state code ('' for federal documents)")
	statusCmd.Flags().StringVarP(&statusDocType, "type", "t", "", "Document type (regulation or policy_document)")
}

func runStatus(cmd *cobra.Command, args []string) {
	sourceIndex, err := strconv.Atoi(args[0])
	if err != nil {
		log.Fatalf("Invalid source index %q", args[0])
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	if cmd.Flags().Changed("state") {
		cfg.Import.State = statusState
	}
	if statusDocType != "" {
		cfg.Import.DocType = statusDocType
	}

	db, err := store.NewDB(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	documentStore := store.NewDocumentStore(db)
	analysisStore := store.NewAnalysisStore(db)

	state := sql.NullString{String: cfg.Import.State, Valid: cfg.Import.State != ""}
	doc, err := documentStore.GetByIdentity(ctx, state, sourceIndex, cfg.Import.DocType)
	if err != nil {
		log.Fatalf("Failed to look up document: %v", err)
	}
	if doc == nil {
		log.Fatalf("No %s document %d for state %q", cfg.Import.DocType, sourceIndex, cfg.Import.State)
	}

	latest, err := analysisStore.GetLatestForDocument(ctx, doc.ID)
	if err != nil {
		log.Fatalf("Failed to look up analysis: %v", err)
	}

	fmt.Printf("Document %d: %s\n", doc.ID, doc.Title)
	fmt.Printf("  identity: state=%s source_index=%d type=%s\n",
		orDash(doc.State.String), doc.SourceIndex, doc.Type)
	if doc.URL.Valid {
		fmt.Printf("  url: %s (%s)\n", doc.URL.String, orDash(doc.URLType.String))
	}

	if latest == nil || !latest.AnalysisID.Valid {
		fmt.Println("  no analysis on record")
		return
	}

	fmt.Printf("\nCurrent analysis %d (%s)\n",
		latest.AnalysisID.Int64, latest.AnalysisTimestamp.Time.Format("2006-01-02 15:04:05"))
	fmt.Printf("  model: %s\n", orDash(latest.ModelVersion.String))
	fmt.Printf("  complexity: %s  flags: %d  max severity: %s\n",
		orDash(latest.OverallComplexity.String),
		latest.NumFlags.Int64,
		nullableInt(latest.MaxSeverity))
	fmt.Printf("  implementation issues: %t  technical review: %t  reporting requirement: %t\n",
		latest.HasImplementationIssues.Bool,
		latest.RequiresTechnicalReview.Bool,
		latest.HasReportingRequirement.Bool)
	if latest.Summary.Valid {
		fmt.Printf("  summary: %s\n", latest.Summary.String)
	}

	flags, err := analysisStore.GetFlags(ctx, int(latest.AnalysisID.Int64))
	if err != nil {
		log.Fatalf("Failed to look up red flags: %v", err)
	}
	for _, f := range flags {
		fmt.Printf("\n  [%d/10] %s (%s)\n", f.Severity, f.Category, orDash(f.Complexity.String))
		if f.Explanation.Valid {
			fmt.Printf("      %s\n", f.Explanation.String)
		}
		if f.EffortEstimate.Valid {
			fmt.Printf("      effort: %s\n", f.EffortEstimate.String)
		}
	}

	ref, err := documentStore.GetStatuteReference(ctx, doc.ID)
	if err != nil {
		log.Fatalf("Failed to look up statute references: %v", err)
	}
	if ref != nil {
		fmt.Println("\nStatute references")
		printCitation("USC", ref.USCCitations)
		printCitation("CFR", ref.CFRCitations)
		printCitation("public laws", ref.PublicLaws)
		printCitation("acts", ref.Acts)
		printCitation("state title", ref.StateTitle)
		printCitation("state section", ref.StateSection)
	}
}

func printCitation(label string, v sql.NullString) {
	if v.Valid {
		fmt.Printf("  %s: %s\n", label, v.String)
	}
}

func nullableInt(n sql.NullInt64) string {
	if !n.Valid {
		return "-"
	}
	return strconv.FormatInt(n.Int64, 10)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
