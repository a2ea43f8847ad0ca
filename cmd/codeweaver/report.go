package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rooney011/CodeWeaver/internal/archive"
	"github.com/rooney011/CodeWeaver/internal/reporting"
	"github.com/spf13/cobra"
)

var (
	reportOut   string
	reportDB    string
	reportLimit int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render archived decisions as a PDF incident report",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath := reportDB
		if dbPath == "" {
			dataDir := strings.TrimSpace(os.Getenv("CW_DATA_DIR"))
			if dataDir == "" {
				dataDir = "./data"
			}
			dbPath = filepath.Join(dataDir, "plans.db")
		}
		if _, err := os.Stat(dbPath); err != nil {
			return fmt.Errorf("open plan archive: %w", err)
		}

		store, err := archive.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open plan archive: %w", err)
		}
		defer store.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		entries, err := store.List(ctx, reportLimit)
		if err != nil {
			return err
		}

		pdf, err := reporting.NewPDFGenerator().Generate(&reporting.ReportData{
			GeneratedAt: time.Now().UTC(),
			Entries:     entries,
		})
		if err != nil {
			return fmt.Errorf("generate report: %w", err)
		}
		if err := os.WriteFile(reportOut, pdf, 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d decision(s) to %s\n", len(entries), reportOut)
		return nil
	},
}

var hashTokenCmd = &cobra.Command{
	Use:   "hash-token [token]",
	Short: "Hash an approver token for CW_APPROVAL_TOKEN_HASH",
	Long: `Hash-token prints a bcrypt hash for CW_APPROVAL_TOKEN_HASH. Without an
argument it generates a random token and prints it first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHashToken(cmd, args)
	},
}

func init() {
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "codeweaver-report.pdf", "output PDF path")
	reportCmd.Flags().StringVar(&reportDB, "db", "", "archive database (default $CW_DATA_DIR/plans.db)")
	reportCmd.Flags().IntVar(&reportLimit, "limit", 100, "maximum number of decisions to include")
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(hashTokenCmd)
}
