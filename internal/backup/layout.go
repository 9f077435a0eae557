package backup

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
)

// Label names a backup step and the artifact it produces
type Label string

const (
	LabelFull    Label = "full"
	LabelDaily   Label = "daily"
	LabelWeekly  Label = "weekly"
	LabelMonthly Label = "monthly"
)

// artifact file names carry this timestamp
const stampLayout = "20060102_150405"

// Layout is the destination directory tree.
type Layout struct {
	Root    string `json:"root"`
	Daily   string `json:"daily"`
	Weekly  string `json:"weekly"`
	Monthly string `json:"monthly"`
}

// NewLayout places the three extract folders under root.
func NewLayout(root string, folders config.BackupFolders) *Layout {
	return &Layout{
		Root:    root,
		Daily:   filepath.Join(root, folders.Daily),
		Weekly:  filepath.Join(root, folders.Weekly),
		Monthly: filepath.Join(root, folders.Monthly),
	}
}

// Ensure creates every directory of the layout.
func (l *Layout) Ensure() error {
	for _, dir := range []string{l.Root, l.Daily, l.Weekly, l.Monthly} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create backup directory %s: %w", dir, err)
		}
	}
	return nil
}

// Dir returns the folder an artifact with label is written to.
func (l *Layout) Dir(label Label) string {
	switch label {
	case LabelDaily:
		return l.Daily
	case LabelWeekly:
		return l.Weekly
	case LabelMonthly:
		return l.Monthly
	}
	return l.Root
}

// FullName is the file name of a full store snapshot.
func FullName(stamp string) string {
	return "db_backup_" + stamp + ".db"
}

// ExtractName is the file name of an attendance extract.
func ExtractName(label Label, stamp string) string {
	return string(label) + "_attendance_" + stamp + ".db"
}

// PartitionLister exposes the host's mounted filesystems.
type PartitionLister interface {
	Partitions(ctx context.Context) ([]disk.PartitionStat, error)
	Usage(ctx context.Context, path string) (*disk.UsageStat, error)
}

// HostPartitions reads partitions through gopsutil.
type HostPartitions struct{}

func (HostPartitions) Partitions(ctx context.Context) ([]disk.PartitionStat, error) {
	return disk.PartitionsWithContext(ctx, false)
}

func (HostPartitions) Usage(ctx context.Context, path string) (*disk.UsageStat, error) {
	return disk.UsageWithContext(ctx, path)
}

// mountOf returns the longest mount point containing path.
func mountOf(path string, parts []disk.PartitionStat) string {
	best := ""
	for _, p := range parts {
		mp := filepath.Clean(p.Mountpoint)
		if path == mp || strings.HasPrefix(path, strings.TrimSuffix(mp, string(filepath.Separator))+string(filepath.Separator)) {
			if len(mp) > len(best) {
				best = mp
			}
		}
	}
	return best
}

// ResolveRoot picks the backup root. An explicit directory wins. Otherwise
// the first writable partition other than the store's own with enough free
// space is used, falling back to a folder next to the store.
func ResolveRoot(ctx context.Context, cfg *config.BackupConfig, dbPath string, lister PartitionLister) string {
	if cfg.Dir != "" {
		return cfg.Dir
	}

	absDB, err := filepath.Abs(dbPath)
	if err != nil {
		absDB = dbPath
	}
	fallback := filepath.Join(filepath.Dir(absDB), cfg.RootName)
	if lister == nil {
		return fallback
	}

	parts, err := lister.Partitions(ctx)
	if err != nil {
		log.Printf("backup: listing partitions failed, using %s: %v", fallback, err)
		return fallback
	}
	slices.SortFunc(parts, func(a, b disk.PartitionStat) int { return strings.Compare(a.Mountpoint, b.Mountpoint) })

	dbMount := mountOf(absDB, parts)
	for _, p := range parts {
		mp := filepath.Clean(p.Mountpoint)
		if mp == dbMount || slices.Contains(p.Opts, "ro") {
			continue
		}
		usage, err := lister.Usage(ctx, mp)
		if err != nil || usage.Free < constants.MinBackupFreeBytes {
			continue
		}
		root := filepath.Join(mp, cfg.RootName)
		if err := os.MkdirAll(root, 0o755); err != nil {
			continue
		}
		log.Printf("backup: using partition %s (%s)", mp, p.Device)
		return root
	}

	log.Printf("backup: no alternate partition found, using %s", fallback)
	return fallback
}
