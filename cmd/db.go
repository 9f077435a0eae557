package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance commands",
}

var dbVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the store's integrity and ledger consistency",
	Long: `Run SQLite's integrity check, list applied migrations, print today's
attendance totals and look for duplicated (employee, day) records.`,
	RunE: runDBVerify,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbVerifyCmd)

	dbVerifyCmd.Flags().Bool("json", false, "Output as JSON")
}

func runDBVerify(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	report, err := a.pool.Verify(ctx)
	if err != nil {
		return err
	}
	summary, err := a.machine.DailySummary(ctx, "")
	if err != nil {
		return err
	}
	dups, err := a.machine.IntegrityReport(ctx)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		if err := outputJSON(map[string]any{
			"store":      report,
			"today":      summary,
			"duplicates": dups,
		}); err != nil {
			return err
		}
	} else {
		fmt.Printf("Database:     %s (%d bytes)\n", report.Path, report.SizeBytes)
		fmt.Printf("SQLite:       %s\n", report.SQLiteVersion)
		fmt.Printf("Integrity:    %s\n", report.Integrity)
		fmt.Printf("Migrations:   %d applied\n", len(report.Migrations))
		for _, m := range report.Migrations {
			fmt.Printf("  %s\n", m)
		}
		fmt.Printf("Employees:    %d\n", report.Employees)
		fmt.Printf("Attendance:   %d records\n", report.Attendance)
		fmt.Printf("Today (%s): %d employees, %d completed\n", summary.Date, summary.TotalEmployees, summary.Completed)
		fmt.Printf("Duplicates:   %d\n", len(dups))
	}

	if report.Integrity != "ok" {
		return fmt.Errorf("integrity check failed: %s", report.Integrity)
	}
	if len(dups) > 0 {
		return fmt.Errorf("found %d duplicated (employee, day) pairs", len(dups))
	}
	return nil
}
