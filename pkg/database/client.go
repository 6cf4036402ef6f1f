package database

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Client 封裝 GORM DB 實例
type Client struct {
	db *gorm.DB
}

// NewClient 建立並回傳一個新的資料庫客戶端實例 (GORM)
//
// 參數:
//
//	cfg: Config - 連線配置，未設定的欄位以預設值補全
//
// 回傳值:
//
//	*Client: 封裝後的客戶端
//	error: 若連線失敗則回傳錯誤
func NewClient(cfg Config) (*Client, error) {
	cfg.ApplyDefaults()

	dialector, err := cfg.dialector()
	if err != nil {
		return nil, err
	}

	gormConfig := &gorm.Config{
		// 只有業務邏輯明確開啟的 Transaction 才包交易
		SkipDefaultTransaction: true,
		// 將驅動錯誤 (如 duplicate key) 轉為 gorm.ErrDuplicatedKey
		TranslateError: true,
		Logger:         newLogger(cfg.LogLevel, slog.Default().Handler()),
	}

	var db *gorm.DB
	for i := 0; i < cfg.ConnectRetries; i++ {
		db, err = gorm.Open(dialector, gormConfig)
		if err == nil {
			rawDB, pingErr := db.DB()
			if pingErr == nil {
				if err = rawDB.Ping(); err == nil {
					break
				}
			} else {
				err = pingErr
			}
		}

		if i < cfg.ConnectRetries-1 {
			slog.Warn("database connect failed, retrying",
				slog.String("driver", cfg.Driver),
				slog.Int("attempt", i+1),
				slog.Int("max_attempts", cfg.ConnectRetries),
				slog.Duration("retry_in", cfg.RetryInterval),
				slog.Any("error", err),
			)
			time.Sleep(cfg.RetryInterval)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s after %d attempts: %w", cfg.Driver, cfg.ConnectRetries, err)
	}

	// 取得底層 sql.DB 物件以設定連線池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.db: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &Client{db: db}, nil
}

// DB 回傳底層的 *gorm.DB 實例，供 adapter 使用
func (c *Client) DB() *gorm.DB {
	return c.db
}

// Migrate 依 model 建立或更新資料表
func (c *Client) Migrate(models ...any) error {
	if err := c.db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close 關閉資料庫連線
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (c *Config) dialector() (gorm.Dialector, error) {
	switch c.Driver {
	case DriverMySQL:
		return mysql.Open(c.DSN()), nil
	case DriverPostgres:
		return postgres.Open(c.DSN()), nil
	case DriverSQLite:
		if c.Path == "" {
			return nil, fmt.Errorf("sqlite driver requires a path")
		}
		return sqlite.Open(c.DSN()), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", c.Driver)
}

// gormLevels 配置字串對應的 GORM 記錄等級與輸出的 slog 等級
var gormLevels = map[string]struct {
	gorm logger.LogLevel
	slog slog.Level
}{
	"info":   {logger.Info, slog.LevelInfo},
	"warn":   {logger.Warn, slog.LevelWarn},
	"error":  {logger.Error, slog.LevelError},
	"silent": {logger.Silent, slog.LevelError},
}

// newLogger 建立輸出到 slog 的 GORM Logger，未知等級視為 error
// 找不到資料 (ErrRecordNotFound) 屬於正常流程，不記錄
func newLogger(level string, h slog.Handler) logger.Interface {
	lv, ok := gormLevels[level]
	if !ok {
		lv = gormLevels["error"]
	}
	h = h.WithAttrs([]slog.Attr{slog.String("component", "gorm")})
	return logger.New(slog.NewLogLogger(h, lv.slog), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  lv.gorm,
		IgnoreRecordNotFoundError: true,
	})
}
