package integration

import (
	"database/sql"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/caseforge/docstream/internal/storage/postgres"
)

var (
	testDB   *sql.DB
	testPort string
)

func TestMain(m *testing.M) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Fatalf("Could not construct pool: %s", err)
	}

	pool.MaxWait = 60 * time.Second

	if err := pool.Client.Ping(); err != nil {
		log.Fatalf("Could not connect to Docker: %s", err)
	}

	pg, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "17-alpine",
		Env: []string{
			"POSTGRES_USER=testuser",
			"POSTGRES_PASSWORD=testpass",
			"POSTGRES_DB=docstream_test",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("Could not start postgres container: %s", err)
	}

	testPort = pg.GetPort("5432/tcp")
	dsn := fmt.Sprintf(
		"host=localhost user=testuser password=testpass dbname=docstream_test port=%s sslmode=disable TimeZone=UTC",
		testPort,
	)

	if err := pool.Retry(func() error {
		var err error
		testDB, err = sql.Open("postgres", dsn)
		if err != nil {
			return err
		}

		if err := testDB.Ping(); err != nil {
			testDB.Close()
			return err
		}

		if err := runMigrations(testDB); err != nil {
			log.Printf("Failed to run migrations: %v", err)
			testDB.Close()
			return err
		}

		return nil
	}); err != nil {
		log.Fatalf("Could not connect to postgres: %s", err)
	}

	code := m.Run()

	if testDB != nil {
		testDB.Close()
	}

	if err := pool.Purge(pg); err != nil {
		log.Fatalf("Could not purge postgres container: %s", err)
	}

	os.Exit(code)
}

func runMigrations(db *sql.DB) error {
	_, filename, _, _ := runtime.Caller(0)
	migrationsDir := filepath.Join(filepath.Dir(filename), "../..", "migrations")

	if _, err := os.Stat(migrationsDir); os.IsNotExist(err) {
		return fmt.Errorf("migrations directory does not exist: %s", migrationsDir)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(db, migrationsDir); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}

	return nil
}

// setupTestDB hands each test its own connection with a clean slate.
func setupTestDB(tb testing.TB) *gorm.DB {
	tb.Helper()

	cfg := &postgres.Config{
		User:       "testuser",
		Password:   "testpass",
		Host:       "localhost",
		Port:       testPort,
		Database:   "docstream_test",
		MaxRetries: 3,
		RetryDelay: 100 * time.Millisecond,
		LogLevel:   gormlogger.Silent,
	}

	db, err := postgres.ConnectDB(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(tb, err)

	require.NoError(tb, db.Exec("DELETE FROM jobs").Error)
	require.NoError(tb, db.Exec("DELETE FROM status_snapshots").Error)

	tb.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil && sqlDB != nil {
			sqlDB.Close()
		}
	})

	return db
}
