// Package config loads runtime settings from the environment. Call
// LoadEnvFile(".env") before Load() to pick up a local env file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds catalog, archive, downloader, and mount settings.
type Config struct {
	// Paths
	CatalogPath string // catalog database file
	ArchiveRoot string // directory the per-source subdirectories live under
	MountPoint  string // where the virtual filesystem mounts

	// External tools
	ExtractorBin string // metadata extractor / downloader binary
	FFmpegBin    string // transmuxer for bare MP4 payloads

	// Download behavior
	Rate       int64  // bytes/sec ceiling passed to the downloader, 0 = unlimited
	Format     string // global format override, usually empty
	External   string // external downloader name handed to the extractor
	Cookies    string // cookies file path
	Languages  string // comma-separated caption languages; empty = all
	AutoSleep  bool   // premieres and live items get a sleep entry instead of an error
	IfSmall    bool   // re-download files smaller than 80% of the best advertised format
	MountLinks string // "relative" or "absolute" symlink targets in the VFS

	// Sync pacing
	SyncDelay    time.Duration // pause between sources within a pass
	LoopInterval time.Duration // pause between full passes in loop mode

	// Observability
	MetricsAddr string // optional prometheus listen address, empty = disabled
}

// Load reads config from environment with defaults suitable for running in
// the archive directory itself.
func Load() *Config {
	c := &Config{
		CatalogPath:  getEnv("YDL_CATALOG", "ydl.db"),
		ArchiveRoot:  getEnv("YDL_ARCHIVE_ROOT", "."),
		MountPoint:   getEnv("YDL_MOUNT", "/mnt/ydl"),
		ExtractorBin: getEnv("YDL_EXTRACTOR", "yt-dlp"),
		FFmpegBin:    getEnv("YDL_FFMPEG", "ffmpeg"),
		Rate:         getEnvInt64("YDL_RATE", 900000),
		Format:       os.Getenv("YDL_FORMAT"),
		External:     os.Getenv("YDL_DOWNLOADER"),
		Cookies:      os.Getenv("YDL_COOKIES"),
		Languages:    getEnv("YDL_LANGUAGES", "en"),
		AutoSleep:    getEnvBool("YDL_AUTO_SLEEP", true),
		IfSmall:      getEnvBool("YDL_IF_SMALL", false),
		MountLinks:   getEnvLinkMode("YDL_MOUNT_LINKS", "relative"),
		SyncDelay:    getEnvDuration("YDL_SYNC_DELAY", 0),
		LoopInterval: getEnvDuration("YDL_LOOP_INTERVAL", time.Hour),
		MetricsAddr:  os.Getenv("YDL_METRICS_ADDR"),
	}
	if c.LoopInterval <= 0 {
		c.LoopInterval = time.Hour
	}
	return c
}

// CaptionLanguages splits the configured language list. Empty result means
// "fetch all languages".
func (c *Config) CaptionLanguages() []string {
	var out []string
	for _, l := range strings.Split(c.Languages, ",") {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

// AbsoluteLinks reports whether VFS symlinks should render absolute targets.
func (c *Config) AbsoluteLinks() bool {
	return c.MountLinks == "absolute"
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvLinkMode normalizes YDL_MOUNT_LINKS to "relative" or "absolute".
func getEnvLinkMode(key, defaultVal string) string {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch v {
	case "absolute", "abs":
		return "absolute"
	case "relative", "rel":
		return "relative"
	case "":
		return defaultVal
	}
	return defaultVal
}
