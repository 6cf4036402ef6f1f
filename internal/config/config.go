package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/JoeShih716/digicash-ledger/pkg/database"
)

// 儲存後端
const (
	BackendSQL    = "sql"
	BackendMemory = "memory"
	BackendLMAX   = "lmax"
)

type Config struct {
	Store    StoreConfig     `yaml:"store"`
	Database database.Config `yaml:"database"`
	GRPC     GRPCConfig      `yaml:"grpc"`
	Redis    RedisConfig     `yaml:"redis"`
	Ledger   LedgerConfig    `yaml:"ledger"`
	Log      LogConfig       `yaml:"log"`
}

type StoreConfig struct {
	Backend string `yaml:"backend"`  // sql | memory | lmax
	WALPath string `yaml:"wal_path"` // 僅 memory / lmax
}

type GRPCConfig struct {
	Addr       string `yaml:"addr"`
	Reflection bool   `yaml:"reflection"`
}

// RedisConfig Addr 為空時不啟用 ref_id 鎖
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type LedgerConfig struct {
	HouseAccount string `yaml:"house_account"`
	MinCashIn    int64  `yaml:"min_cash_in"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load 載入設定，優先順序：環境變數 > .env > yaml 檔 > 預設值
// yaml 檔不存在時只使用預設值與環境變數
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		slog.Warn("config file not found, using defaults", slog.String("path", path))
	default:
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	// .env 不存在是正常情況 (正式環境直接給環境變數)
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Store.Backend, "DIGICASH_STORE_BACKEND")
	setString(&c.Store.WALPath, "DIGICASH_WAL_PATH")
	setString(&c.Database.Driver, "DIGICASH_DB_DRIVER")
	setString(&c.Database.Host, "DIGICASH_DB_HOST")
	setString(&c.Database.User, "DIGICASH_DB_USER")
	setString(&c.Database.Password, "DIGICASH_DB_PASSWORD")
	setString(&c.Database.DBName, "DIGICASH_DB_NAME")
	setString(&c.Database.Path, "DIGICASH_DB_PATH")
	setString(&c.GRPC.Addr, "DIGICASH_GRPC_ADDR")
	setString(&c.Redis.Addr, "DIGICASH_REDIS_ADDR")
	setString(&c.Redis.Password, "DIGICASH_REDIS_PASSWORD")
	setString(&c.Ledger.HouseAccount, "DIGICASH_HOUSE_ACCOUNT")
	setString(&c.Log.Level, "DIGICASH_LOG_LEVEL")
	setString(&c.Log.Format, "DIGICASH_LOG_FORMAT")

	if v, ok := os.LookupEnv("DIGICASH_DB_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DIGICASH_DB_PORT %q: %w", v, err)
		}
		c.Database.Port = port
	}
	if v, ok := os.LookupEnv("DIGICASH_MIN_CASH_IN"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid DIGICASH_MIN_CASH_IN %q: %w", v, err)
		}
		c.Ledger.MinCashIn = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Store.Backend == "" {
		c.Store.Backend = BackendSQL
	}
	if c.Store.WALPath == "" {
		c.Store.WALPath = "wal.log"
	}
	c.Database.ApplyDefaults()
	if c.Database.Port == 0 {
		switch c.Database.Driver {
		case database.DriverMySQL:
			c.Database.Port = 3306
		case database.DriverPostgres:
			c.Database.Port = 5432
		}
	}
	if c.GRPC.Addr == "" {
		c.GRPC.Addr = ":50051"
	}
	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = 10 * time.Second
	}
	if c.Ledger.HouseAccount == "" {
		c.Ledger.HouseAccount = "DIGICASH"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// NewLogger 依設定建立 slog.Logger
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}
