// Package config parses the mount command's flags. File-based
// configuration loading is explicitly out of scope (§1); only flags are
// handled here, using pflag the way the rest of the reference stack
// does.
package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Config holds the flags needed to bring a mount up.
type Config struct {
	MountPoint   string
	StagingDir   string
	DirCachePath string
	BaseURL      string
	APIKey       string
	PollInterval int
	Verbose      bool
}

// Parse parses args (typically os.Args[1:]) into a Config.
func Parse(args []string) (Config, error) {
	fs := pflag.NewFlagSet("mediafirefs", pflag.ContinueOnError)

	cfg := Config{}
	fs.StringVar(&cfg.MountPoint, "mount", "", "local mount point (required)")
	fs.StringVar(&cfg.StagingDir, "staging-dir", "", "writable directory for staged files (required)")
	fs.StringVar(&cfg.DirCachePath, "dir-cache", "", "path to the persisted catalog snapshot (required)")
	fs.StringVar(&cfg.BaseURL, "api-base-url", "https://api.example.invalid", "base URL of the remote account API")
	fs.StringVar(&cfg.APIKey, "api-key", "", "bearer token for the remote account API (required)")
	fs.IntVar(&cfg.PollInterval, "poll-interval-seconds", 1, "upload status poll interval in seconds")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	var missing []string
	if cfg.MountPoint == "" {
		missing = append(missing, "--mount")
	}
	if cfg.StagingDir == "" {
		missing = append(missing, "--staging-dir")
	}
	if cfg.DirCachePath == "" {
		missing = append(missing, "--dir-cache")
	}
	if cfg.APIKey == "" {
		missing = append(missing, "--api-key")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required flags: %v", missing)
	}

	return cfg, nil
}
