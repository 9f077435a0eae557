package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/backup"
	"github.com/kozaktomas/face-attendance/internal/database"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Backup and off-site mirror commands",
}

var backupRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one backup cycle now",
	Long: `Run one backup cycle: a full snapshot of the store, the daily extract and,
when due, the weekly and monthly extracts. Artifacts are uploaded to every
configured destination when the network probe succeeds.`,
	RunE: runBackupRun,
}

var backupExtractCmd = &cobra.Command{
	Use:       "extract <daily|weekly|monthly>",
	Short:     "Write a single attendance extract",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(backup.LabelDaily), string(backup.LabelWeekly), string(backup.LabelMonthly)},
	RunE:      runBackupExtract,
}

var backupMirrorCheckCmd = &cobra.Command{
	Use:   "mirror-check",
	Short: "Compare the local ledger with the PostgreSQL mirror",
	Long: `Compare a day's local attendance count with the mirror. With --image the
probe photo is embedded and matched against the mirrored reference faces.`,
	RunE: runBackupMirrorCheck,
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupRunCmd, backupExtractCmd, backupMirrorCheckCmd)

	backupRunCmd.Flags().Bool("with-faces", false, "Build the identity index and mirror reference embeddings")
	backupRunCmd.Flags().Bool("json", false, "Output as JSON")

	backupExtractCmd.Flags().Int("days", 0, "Override the configured window in days")
	backupExtractCmd.Flags().Bool("json", false, "Output as JSON")

	backupMirrorCheckCmd.Flags().String("date", "", "Day to compare (default today)")
	backupMirrorCheckCmd.Flags().String("image", "", "Photo to match against mirrored faces")
}

func runBackupRun(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var faces backup.FaceSource
	if mustGetBool(cmd, "with-faces") {
		index := a.newIndex(nil)
		stats, err := index.Rebuild(ctx)
		if err != nil {
			return fmt.Errorf("failed to build identity index: %w", err)
		}
		fmt.Printf("Indexed %d embeddings from %d images\n", stats.Indexed, stats.Images)
		faces = index
	}

	sched, queue, err := a.newScheduler(ctx, faces)
	if err != nil {
		return err
	}
	if queue != nil {
		queue.Start(ctx)
	}
	report := sched.RunOnce(ctx)
	if queue != nil {
		queue.Close()
	}

	if mustGetBool(cmd, "json") {
		if err := outputJSON(sched.Status()); err != nil {
			return err
		}
	} else {
		printCycle(report)
		if queue != nil {
			fmt.Println("\nUploads:")
			for _, u := range queue.Records() {
				line := fmt.Sprintf("  %-8s %-8s %s", u.Status, u.Label, u.File)
				if u.Error != "" {
					line += "  (" + u.Error + ")"
				}
				fmt.Println(line)
			}
		}
	}

	if report.Failed() {
		return errors.New("backup cycle finished with errors")
	}
	return nil
}

func printCycle(r *backup.CycleReport) {
	fmt.Printf("Cycle %s (online: %v)\n", r.ID, r.Online)
	for _, s := range r.Steps {
		switch {
		case s.Error != "":
			fmt.Printf("  %-8s FAILED  %s\n", s.Label, s.Error)
		case s.Artifact == nil:
			fmt.Printf("  %-8s skipped (%s)\n", s.Label, s.Skipped)
		default:
			queued := ""
			if s.Queued {
				queued = "  [queued]"
			}
			fmt.Printf("  %-8s %s (%d rows)%s\n", s.Label, s.Artifact.Path, s.Artifact.Rows, queued)
		}
	}
	if r.Canceled {
		fmt.Println("  cycle canceled")
	}
}

func runBackupExtract(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	sched, _, err := a.newScheduler(ctx, nil)
	if err != nil {
		return err
	}

	label := backup.Label(args[0])
	days, err := sched.Window(label)
	if err != nil {
		return err
	}
	if d := mustGetInt(cmd, "days"); d > 0 {
		days = d
	}

	artifact, err := sched.Extract(ctx, label, days)
	if err != nil {
		return fmt.Errorf("%s extract failed: %w", label, err)
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(artifact)
	}
	if artifact == nil {
		fmt.Printf("No attendance data in the last %d days, nothing written\n", days)
		return nil
	}
	fmt.Printf("Wrote %s (%d rows)\n", artifact.Path, artifact.Rows)
	return nil
}

func runBackupMirrorCheck(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	mirror, err := a.connectMirror(ctx)
	if err != nil {
		return err
	}
	if mirror == nil {
		return errors.New("no mirror configured (set BACKUP_MIRROR_DATABASE_URL)")
	}

	day, err := a.machine.Clock().NormalizeDay(mustGetString(cmd, "date"))
	if err != nil {
		return err
	}
	local, err := a.machine.LogsByDate(ctx, day)
	if err != nil {
		return err
	}
	remote, err := mirror.AttendanceCount(ctx, day)
	if err != nil {
		return err
	}
	fmt.Printf("Date:    %s\n", day)
	fmt.Printf("Local:   %d records\n", len(local))
	fmt.Printf("Mirror:  %d records\n", remote)

	imagePath := mustGetString(cmd, "image")
	if imagePath == "" {
		if remote < len(local) {
			return fmt.Errorf("mirror is missing %d records for %s", len(local)-remote, day)
		}
		return nil
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	resp, err := a.embeddingClient().ComputeFaceEmbeddings(ctx, data)
	if err != nil {
		return fmt.Errorf("failed to compute embeddings: %w", err)
	}
	if len(resp.Faces) == 0 {
		return errors.New("no face found in image")
	}
	code, dist, err := mirror.NearestFace(ctx, resp.Faces[0].Embedding)
	if errors.Is(err, database.ErrNotFound) {
		fmt.Println("Nearest: no faces mirrored yet")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("Nearest: %s (similarity %.2f)\n", code, 1-dist)
	return nil
}
