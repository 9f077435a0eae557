package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Attendance ledger commands",
}

var attendanceStatusCmd = &cobra.Command{
	Use:   "status <emp-code>",
	Short: "Show an employee's attendance state for a day",
	Args:  cobra.ExactArgs(1),
	RunE:  runAttendanceStatus,
}

var attendanceProcessCmd = &cobra.Command{
	Use:   "process <emp-code>",
	Short: "Record a manual check-in or checkout",
	Long: `Record a manual attendance event. The first event of the day checks the
employee in, every later event updates the checkout time.

Examples:
  face-attendance attendance process E100
  face-attendance attendance process E100 --date 01-05-2024 --time "6:05 PM"`,
	Args: cobra.ExactArgs(1),
	RunE: runAttendanceProcess,
}

var attendanceSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show the day's attendance totals",
	RunE:  runAttendanceSummary,
}

var attendanceLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List attendance records",
	RunE:  runAttendanceLogs,
}

var attendanceIntegrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Check the ledger for duplicate records",
	RunE:  runAttendanceIntegrity,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)
	attendanceCmd.AddCommand(attendanceStatusCmd, attendanceProcessCmd, attendanceSummaryCmd,
		attendanceLogsCmd, attendanceIntegrityCmd)

	attendanceStatusCmd.Flags().String("date", "", "Day to inspect (default today)")
	attendanceStatusCmd.Flags().Bool("json", false, "Output as JSON")

	attendanceProcessCmd.Flags().String("date", "", "Civil date of the event (default today)")
	attendanceProcessCmd.Flags().String("time", "", "Civil time of the event (default now)")
	attendanceProcessCmd.Flags().String("name", "", "Employee name (default from the directory)")
	attendanceProcessCmd.Flags().Bool("json", false, "Output as JSON")

	attendanceSummaryCmd.Flags().String("date", "", "Day to summarize (default today)")
	attendanceSummaryCmd.Flags().Bool("json", false, "Output as JSON")

	attendanceLogsCmd.Flags().String("date", "", "Day to list (default today unless --emp-code is set)")
	attendanceLogsCmd.Flags().String("emp-code", "", "Only this employee")
	attendanceLogsCmd.Flags().String("status", "", "Only CHECKED_IN or CHECKED_OUT records")
	attendanceLogsCmd.Flags().Int("limit", constants.DefaultLogLimit, "Maximum number of records")
	attendanceLogsCmd.Flags().Bool("json", false, "Output as JSON")
}

func runAttendanceStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	st, err := a.machine.Status(ctx, args[0], mustGetString(cmd, "date"))
	if err != nil {
		return err
	}
	next, err := a.machine.NextAction(ctx, args[0], mustGetString(cmd, "date"))
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(map[string]any{"status": st, "next_action": next})
	}
	fmt.Printf("Employee:     %s\n", args[0])
	fmt.Printf("Checked in:   %v\n", st.HasCheckedIn)
	fmt.Printf("Checked out:  %v\n", st.HasCheckedOut)
	fmt.Printf("Next action:  %s\n", next)
	if st.Record != nil {
		printRecord(*st.Record)
	}
	return nil
}

func runAttendanceProcess(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	ev := attendance.Event{
		EmpCode: args[0],
		EmpName: mustGetString(cmd, "name"),
		Date:    mustGetString(cmd, "date"),
		Time:    mustGetString(cmd, "time"),
		Mode:    database.ModeManual,
	}
	if emp, err := a.directory.Get(ctx, args[0]); err == nil {
		if ev.EmpName == "" {
			ev.EmpName = emp.FullName
		}
		ev.EmpBID = emp.EmpBID
	}

	res := a.machine.Process(ctx, ev)
	if mustGetBool(cmd, "json") {
		if err := outputJSON(res); err != nil {
			return err
		}
	} else {
		fmt.Printf("%s: %s\n", res.Action, res.Message)
	}
	if !res.Success {
		return fmt.Errorf("attendance not recorded (%s)", res.Action)
	}
	return nil
}

func runAttendanceSummary(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sum, err := a.machine.DailySummary(context.Background(), mustGetString(cmd, "date"))
	if err != nil {
		return err
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(sum)
	}

	fmt.Printf("Date:             %s\n", sum.Date)
	fmt.Printf("Employees:        %d\n", sum.TotalEmployees)
	fmt.Printf("Checked in only:  %d\n", sum.CheckedInOnly)
	fmt.Printf("Completed:        %d\n", sum.Completed)
	if len(sum.Records) > 0 {
		fmt.Println()
		for _, r := range sum.Records {
			printRecord(r)
		}
	}
	return nil
}

func runAttendanceLogs(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	recs, err := a.machine.Logs(context.Background(), database.LogFilter{
		Date:    mustGetString(cmd, "date"),
		EmpCode: mustGetString(cmd, "emp-code"),
		Status:  database.AttendanceStatus(strings.ToUpper(mustGetString(cmd, "status"))),
		Limit:   mustGetInt(cmd, "limit"),
	})
	if err != nil {
		return err
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(recs)
	}

	fmt.Printf("Records: %d\n\n", len(recs))
	for _, r := range recs {
		printRecord(r)
	}
	return nil
}

func runAttendanceIntegrity(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	groups, err := a.machine.IntegrityReport(context.Background())
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		fmt.Println("No duplicate attendance records found")
		return nil
	}
	for _, g := range groups {
		fmt.Printf("  %s on %s: %d records\n", g.EmpCode, g.Date, g.Count)
	}
	return fmt.Errorf("found %d duplicated (employee, day) pairs", len(groups))
}

func printRecord(r database.AttendanceRecord) {
	out := "-"
	if r.HasCheckedOut() {
		out = r.CheckoutTime
	}
	fmt.Printf("  %-10s %-24s %s  in %s  out %-8s  %-11s %s\n",
		r.EmpCode, r.EmpFullName, r.CheckinDate, r.CheckinTime, out, r.Status, r.Mode)
}
