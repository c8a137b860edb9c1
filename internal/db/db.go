package db

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/dronepad/internal/config"
)

// Connect establishes a gorm DB connection for the configured backend.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	logLevel := logger.Warn
	if cfg.Environment == "development" {
		logLevel = logger.Info
	}
	return Open(cfg.DBBackend, cfg.DBDSN, cfg.LockTimeout, logLevel)
}

// Open connects to backend using dsn. lockTimeout is applied to SQLite as
// the busy timeout and to MySQL as the connection's InnoDB lock wait.
func Open(backend config.DatabaseBackend, dsn string, lockTimeout time.Duration, logLevel logger.LogLevel) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch backend {
	case config.DatabasePostgres:
		dialector = postgres.Open(dsn)
	case config.DatabaseMySQL:
		dialector = mysql.Open(mysqlDSN(dsn, lockTimeout))
	case config.DatabaseSQLite:
		dialector = sqlite.Open(SQLiteDSN(dsn, lockTimeout))
	default:
		return nil, fmt.Errorf("unknown database backend: %s", backend)
	}

	gormConfig := &gorm.Config{
		Logger:  logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// SQLiteDSN adds the connection parameters the commit protocol relies on:
// a busy timeout, WAL journaling and write-locking (IMMEDIATE) transactions.
// Parameters already present in dsn are kept.
func SQLiteDSN(dsn string, busyTimeout time.Duration) string {
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}

	path, rawQuery, _ := strings.Cut(dsn, "?")
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		params = url.Values{}
	}

	setDefault := func(key, value string) {
		if params.Get(key) == "" {
			params.Set(key, value)
		}
	}
	setDefault("_busy_timeout", fmt.Sprintf("%d", busyTimeout.Milliseconds()))
	setDefault("_txlock", "immediate")
	setDefault("_foreign_keys", "1")
	if !strings.Contains(path, ":memory:") && !strings.Contains(params.Get("mode"), "memory") {
		setDefault("_journal_mode", "WAL")
	}

	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	return path + "?" + params.Encode()
}

// mysqlDSN makes DATETIME columns scan into time.Time in UTC and sets
// innodb_lock_wait_timeout, which the driver applies to every new pool
// connection. Parameters already present in dsn are kept.
func mysqlDSN(dsn string, lockTimeout time.Duration) string {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	// innodb_lock_wait_timeout has one-second granularity.
	secs := (lockTimeout.Milliseconds() + 999) / 1000

	var extra []string
	if !strings.Contains(dsn, "parseTime=") {
		extra = append(extra, "parseTime=true")
	}
	if !strings.Contains(dsn, "loc=") {
		extra = append(extra, "loc=UTC")
	}
	if !strings.Contains(dsn, "innodb_lock_wait_timeout=") {
		extra = append(extra, fmt.Sprintf("innodb_lock_wait_timeout=%d", secs))
	}
	if len(extra) == 0 {
		return dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(extra, "&")
}

// Close releases database resources.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
