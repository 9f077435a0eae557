package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Terminal  TerminalConfig
	Database  DatabaseConfig
	Embedding EmbeddingConfig
	Liveness  LivenessConfig
	Backup    BackupConfig
	Web       WebConfig
}

type TerminalConfig struct {
	Name             string        // terminal identifier attached to off-site uploads
	ImageDir         string        // reference photos, one file per employee code
	Timezone         string        // IANA zone used for civil dates and times
	Locale           string        // default message language (en, hi)
	DetectInterval   time.Duration // polling cadence of the detection loop
	BuildConcurrency int           // parallel detector calls while building the index
}

// Location resolves the configured time zone, falling back to a fixed
// +05:30 zone when the name is unknown.
func (c *TerminalConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.FixedZone("IST", 5*60*60+30*60)
	}
	return loc
}

type DatabaseConfig struct {
	Path          string // SQLite file holding employees, attendance and sessions
	MaxOpenConns  int    // Maximum open connections (default 4)
	BusyTimeoutMs int    // SQLite busy_timeout pragma in milliseconds
}

type EmbeddingConfig struct {
	URL string // defaults to http://localhost:8000
}

type LivenessConfig struct {
	URL string // empty disables liveness checks (recognition-only mode)
}

type BackupConfig struct {
	Dir           string        // explicit destination root, skips partition detection
	Mode          string        `yaml:"mode"` // interval or fixed
	Interval      time.Duration `yaml:"-"`
	IntervalText  string        `yaml:"interval"`
	Times         []string      `yaml:"times"`
	WeeklyDay     string        `yaml:"weekly_day"`
	MonthlyDay    int           `yaml:"monthly_day"`
	RootName      string        `yaml:"root_name"`
	Folders       BackupFolders `yaml:"folders"`
	Windows       BackupWindows `yaml:"windows"`
	ProbeAddr     string        // TCP address dialled to decide whether uploads are possible
	UploadTimeout time.Duration
	MongoURI      string // GridFS destination (optional)
	MongoDatabase string
	Mirror        MirrorConfig
}

// MirrorConfig points at the optional PostgreSQL attendance mirror
type MirrorConfig struct {
	URL          string // empty disables mirroring
	MaxOpenConns int
	MaxIdleConns int
}

type BackupFolders struct {
	Daily   string `yaml:"daily"`
	Weekly  string `yaml:"weekly"`
	Monthly string `yaml:"monthly"`
}

type BackupWindows struct {
	Daily   int `yaml:"daily"`
	Weekly  int `yaml:"weekly"`
	Monthly int `yaml:"monthly"`
}

// Weekday parses WeeklyDay, defaulting to Monday.
func (c *BackupConfig) Weekday() time.Weekday {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), strings.TrimSpace(c.WeeklyDay)) {
			return d
		}
	}
	return time.Monday
}

type WebConfig struct {
	Host           string
	Port           int
	AdminToken     string // bearer token for mutating endpoints; empty leaves them open
	AllowedOrigins []string
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envDuration reads a Go duration ("1s", "12h"). Non-positive or invalid
// values return the default.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func loadBackupDefaults() BackupConfig {
	var doc struct {
		Backup BackupConfig `yaml:"backup"`
	}
	if err := yaml.Unmarshal(defaultsYAML, &doc); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	b := doc.Backup
	b.Interval, _ = time.ParseDuration(b.IntervalText)
	if b.Interval <= 0 {
		b.Interval = 12 * time.Hour
	}
	return b
}

func Load() *Config {
	backup := loadBackupDefaults()
	backup.Dir = os.Getenv("BACKUP_DIR")
	backup.Mode = envString("BACKUP_MODE", backup.Mode)
	backup.Interval = envDuration("BACKUP_INTERVAL", backup.Interval)
	backup.Times = envList("BACKUP_TIMES", backup.Times)
	backup.WeeklyDay = envString("BACKUP_WEEKLY_DAY", backup.WeeklyDay)
	backup.ProbeAddr = envString("BACKUP_PROBE_ADDR", "8.8.8.8:53")
	backup.UploadTimeout = envDuration("BACKUP_UPLOAD_TIMEOUT", 2*time.Minute)
	backup.MongoURI = os.Getenv("BACKUP_MONGO_URI")
	backup.MongoDatabase = envString("BACKUP_MONGO_DATABASE", "attendance")
	backup.Mirror = MirrorConfig{
		URL:          os.Getenv("BACKUP_MIRROR_DATABASE_URL"),
		MaxOpenConns: envInt("BACKUP_MIRROR_MAX_OPEN_CONNS", 4),
		MaxIdleConns: envInt("BACKUP_MIRROR_MAX_IDLE_CONNS", 2),
	}

	return &Config{
		Terminal: TerminalConfig{
			Name:             envString("TERMINAL_NAME", hostname()),
			ImageDir:         envString("PROFILE_IMAGE_DIR", "profile_images"),
			Timezone:         envString("ATTENDANCE_TIMEZONE", "Asia/Kolkata"),
			Locale:           envString("ATTENDANCE_LOCALE", "en"),
			DetectInterval:   envDuration("DETECT_INTERVAL", time.Second),
			BuildConcurrency: envInt("INDEX_BUILD_CONCURRENCY", 4),
		},
		Database: DatabaseConfig{
			Path:          envString("ATTENDANCE_DB_PATH", "employees.db"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 4),
			BusyTimeoutMs: envInt("DATABASE_BUSY_TIMEOUT_MS", 5000),
		},
		Embedding: EmbeddingConfig{
			URL: envString("EMBEDDING_URL", "http://localhost:8000"),
		},
		Liveness: LivenessConfig{
			URL: os.Getenv("LIVENESS_URL"),
		},
		Backup: backup,
		Web: WebConfig{
			Host:           envString("WEB_HOST", "127.0.0.1"),
			Port:           envInt("WEB_PORT", 8080),
			AdminToken:     os.Getenv("WEB_ADMIN_TOKEN"),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS", nil),
		},
	}
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "terminal"
	}
	return name
}
