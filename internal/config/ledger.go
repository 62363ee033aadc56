package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Veraticus/the-budget-must-balance/internal/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Backends lists the supported storage backends.
var Backends = []string{BackendSQLite, BackendFile, BackendRedis, BackendMemory}

var namespacePattern = regexp.MustCompile(`^[A-Za-z0-9@._+-]{1,128}$`)

// Redis holds connection settings for the redis backend.
type Redis struct {
	Addr      string
	Password  string
	KeyPrefix string
	DB        int
}

// Events holds settings for publishing ledger events.
type Events struct {
	AMQPURL    string
	Exchange   string
	RoutingKey string
}

// Enabled reports whether an event broker is configured.
func (e Events) Enabled() bool {
	return e.AMQPURL != ""
}

// Ledger is the resolved application configuration.
type Ledger struct {
	Redis          Redis
	Events         Events
	Backend        string
	DatabasePath   string
	FileDir        string
	CheckpointsDir string
	User           string
	PageSize       int
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	dataDir := DataDir()
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("storage.backend", BackendSQLite)
	v.SetDefault("database.path", filepath.Join(dataDir, "budget.db"))
	v.SetDefault("storage.file_dir", filepath.Join(dataDir, "ledgers"))
	v.SetDefault("checkpoints.dir", filepath.Join(dataDir, "checkpoints"))
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "budget:ledger")
	v.SetDefault("ledger.user", "default")
	v.SetDefault("ledger.page_size", 5)
	v.SetDefault("events.exchange", "budget")
	v.SetDefault("events.routing_key", "ledger")
}

// LoadDotEnv reads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set.
// Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if isNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// LoadLedgerConfig resolves the ledger configuration from v and validates it.
func LoadLedgerConfig(v *viper.Viper) (*Ledger, error) {
	cfg := &Ledger{
		Backend:        strings.ToLower(strings.TrimSpace(v.GetString("storage.backend"))),
		DatabasePath:   ExpandPath(v.GetString("database.path")),
		FileDir:        ExpandPath(v.GetString("storage.file_dir")),
		CheckpointsDir: ExpandPath(v.GetString("checkpoints.dir")),
		User:           strings.TrimSpace(v.GetString("ledger.user")),
		PageSize:       v.GetInt("ledger.page_size"),
		Redis: Redis{
			Addr:      v.GetString("redis.addr"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			KeyPrefix: v.GetString("redis.key_prefix"),
		},
		Events: Events{
			AMQPURL:    v.GetString("events.amqp_url"),
			Exchange:   v.GetString("events.exchange"),
			RoutingKey: v.GetString("events.routing_key"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and reports every problem at once.
func (c *Ledger) Validate() error {
	var problems []string

	switch c.Backend {
	case BackendSQLite:
		if c.DatabasePath == "" {
			problems = append(problems, "database.path cannot be empty when using the sqlite backend")
		}
	case BackendFile:
		if c.FileDir == "" {
			problems = append(problems, "storage.file_dir cannot be empty when using the file backend")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			problems = append(problems, "redis.addr cannot be empty when using the redis backend")
		}
		if c.Redis.DB < 0 {
			problems = append(problems, fmt.Sprintf("invalid redis.db %d: must not be negative", c.Redis.DB))
		}
	case BackendMemory:
	default:
		problems = append(problems, fmt.Sprintf("invalid storage backend '%s': must be one of %v", c.Backend, Backends))
	}

	if !namespacePattern.MatchString(c.User) {
		problems = append(problems, fmt.Sprintf("invalid ledger.user '%s': use 1-128 letters, digits or @._+-", c.User))
	}

	if c.PageSize < 1 || c.PageSize > 500 {
		problems = append(problems, fmt.Sprintf("invalid ledger.page_size %d: must be between 1 and 500", c.PageSize))
	}

	if c.Events.Enabled() {
		if parsed, err := url.Parse(c.Events.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid events.amqp_url: %v", err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid events.amqp_url scheme '%s': must be 'amqp' or 'amqps'", parsed.Scheme))
		}
		if c.Events.Exchange == "" {
			problems = append(problems, "events.exchange cannot be empty when events.amqp_url is set")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w:\n- %s", common.ErrInvalidConfig, strings.Join(problems, "\n- "))
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
