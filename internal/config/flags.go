package config

import (
	"flag"
	"os"
	"time"

	"github.com/dkarpov/syncbox/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-d string   store driver ("sqlite" or "postgres")
//	-dsn string store path / connection string
//	-q int      max cache size in megabytes
//	-r int      default max retries per operation
//	-i int      sync interval in seconds
//
// Only these flags are consumed (via flagx.FilterArgs) so subcommand
// arguments stay untouched.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-dsn", "-q", "-r", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.StoreDriver, "d", cfg.StoreDriver, "store driver (sqlite or postgres)")
	fs.StringVar(&cfg.StoreDSN, "dsn", cfg.StoreDSN, "store path or connection string")
	fs.IntVar(&cfg.MaxCacheSizeMB, "q", cfg.MaxCacheSizeMB, "max cache size (in megabytes)")
	fs.IntVar(&cfg.MaxRetries, "r", cfg.MaxRetries, "default max retries per operation")
	syncInterval := fs.Int("i", int(cfg.SyncInterval.Seconds()), "sync interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.SyncInterval = time.Duration(*syncInterval) * time.Second
}
