package testhelpers

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" for the sqlx seed connection
	"github.com/jmoiron/sqlx"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresTestImage is the stock image the fixture is loaded into.
const PostgresTestImage = "postgres:16-alpine"

const (
	pgDatabase = "analyst_test"
	pgUser     = "analyst"
	pgPassword = "analyst_test_pw"
)

// TestDB is a Postgres container holding the customers/orders fixture.
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	Host      string
	Port      int
}

// sharedPostgres starts one container per test binary.
var sharedPostgres = sync.OnceValues(func() (*TestDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	return startPostgres(ctx)
})

// GetTestDB returns the shared Postgres fixture, skipping the test under
// -short since it needs Docker.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("needs Docker; skipped in short mode")
	}
	db, err := sharedPostgres()
	if err != nil {
		t.Fatalf("start postgres fixture: %v", err)
	}
	return db
}

func startPostgres(ctx context.Context) (*TestDB, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        PostgresTestImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       pgDatabase,
				"POSTGRES_USER":     pgUser,
				"POSTGRES_PASSWORD": pgPassword,
			},
			// The entrypoint restarts postgres once after init scripts run.
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("container port: %w", err)
	}

	connStr := (&url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(pgUser, pgPassword),
		Host:     fmt.Sprintf("%s:%s", host, port.Port()),
		Path:     "/" + pgDatabase,
		RawQuery: "sslmode=disable",
	}).String()

	db, err := sqlx.ConnectContext(ctx, "pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("connect for seeding: %w", err)
	}
	defer db.Close()
	if err := seed(db); err != nil {
		return nil, fmt.Errorf("seed fixture: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	return &TestDB{Container: container, Pool: pool, Host: host, Port: port.Int()}, nil
}

// StoreConfig returns the adapter config map for the fixture database.
func (db *TestDB) StoreConfig() map[string]any {
	return map[string]any{
		"host":     db.Host,
		"port":     db.Port,
		"user":     pgUser,
		"password": pgPassword,
		"database": pgDatabase,
		"ssl_mode": "disable",
	}
}
