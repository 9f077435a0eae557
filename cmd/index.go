package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/identity"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Identity index commands",
	Long:  `Commands for building and inspecting the face index built from the reference photos.`,
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the face index from the reference photos",
	Long: `Scan the reference image directory, compute one embedding per photo
with the embedding service and report what was indexed and skipped.

Examples:
  face-attendance index build
  face-attendance index build --json`,
	RunE: runIndexBuild,
}

var indexStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List the reference photos the index would be built from",
	RunE:  runIndexStatus,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexStatusCmd)

	indexBuildCmd.Flags().Bool("json", false, "Output as JSON instead of progress bar")
	indexStatusCmd.Flags().Bool("json", false, "Output as JSON")
}

func runIndexBuild(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	refs, err := identity.ScanReferenceImages(a.cfg.Terminal.ImageDir)
	if err != nil {
		return err
	}

	var progress func()
	var bar *progressbar.ProgressBar
	if !jsonOutput {
		fmt.Printf("Reference photos in %s: %d\n\n", a.cfg.Terminal.ImageDir, len(refs))
		bar = progressbar.NewOptions(len(refs),
			progressbar.OptionSetDescription("Indexing faces"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("photos"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
		progress = func() { bar.Add(1) }
	}

	index := a.newIndex(progress)
	stats, err := index.Rebuild(context.Background())
	if err != nil {
		return fmt.Errorf("index build failed: %w", err)
	}
	if bar != nil {
		bar.Finish()
	}

	info := index.Info()
	if jsonOutput {
		return outputJSON(info)
	}

	fmt.Printf("\n\nIndexed:          %d\n", stats.Indexed)
	fmt.Printf("Skipped (decode): %d\n", stats.SkippedDecode)
	fmt.Printf("Skipped (face):   %d\n", stats.SkippedNoFace)
	fmt.Printf("Skipped (error):  %d\n", stats.SkippedError)
	fmt.Printf("Duration:         %s\n", stats.Duration.Round(time.Millisecond))
	if info.Empty {
		fmt.Println("\nWarning: no profiles loaded, recognition will report every face as unknown")
	}
	return nil
}

func runIndexStatus(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	refs, err := identity.ScanReferenceImages(a.cfg.Terminal.ImageDir)
	if err != nil {
		return err
	}
	codes := identity.CodesOf(refs)

	var missing []string
	for _, code := range codes {
		exists, err := a.employees.EmployeeExists(context.Background(), code)
		if err != nil {
			return err
		}
		if !exists {
			missing = append(missing, code)
		}
	}

	if jsonOutput {
		if missing == nil {
			missing = []string{}
		}
		return outputJSON(map[string]any{
			"image_dir":        a.cfg.Terminal.ImageDir,
			"codes":            codes,
			"not_in_directory": missing,
		})
	}

	fmt.Printf("Image directory: %s\n", a.cfg.Terminal.ImageDir)
	fmt.Printf("Reference photos: %d\n", len(refs))
	for _, r := range refs {
		fmt.Printf("  %-12s %s\n", r.EmpCode, r.Path)
	}
	if len(missing) > 0 {
		fmt.Printf("\nCodes without a directory entry: %v\n", missing)
	}
	return nil
}
