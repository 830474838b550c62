// Package testhelpers provides shared infrastructure for integration tests.
package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestWarehouse holds a shared PostgreSQL container posing as the claims
// warehouse, with a small claims dataset loaded.
type TestWarehouse struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
}

var (
	sharedWarehouse     *TestWarehouse
	sharedWarehouseOnce sync.Once
	sharedWarehouseErr  error
)

// GetTestWarehouse returns a shared PostgreSQL container for integration
// tests. The container is created once and reused across all tests in the
// run; the claims table is seeded on first use.
func GetTestWarehouse(t *testing.T) *TestWarehouse {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedWarehouseOnce.Do(func() {
		sharedWarehouse, sharedWarehouseErr = setupTestWarehouse()
	})

	if sharedWarehouseErr != nil {
		t.Fatalf("Failed to setup test warehouse: %v", sharedWarehouseErr)
	}

	return sharedWarehouse
}

func setupTestWarehouse() (*TestWarehouse, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "claims",
			"POSTGRES_USER":     "claimsight",
			"POSTGRES_PASSWORD": "test_password",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://claimsight:test_password@%s:%s/claims?sslmode=disable",
		host, port.Port())

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection with retry
	for i := 0; i < 10; i++ {
		if err := pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	if err := seedClaims(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to seed claims data: %w", err)
	}

	return &TestWarehouse{
		Container: container,
		Pool:      pool,
		ConnStr:   connStr,
	}, nil
}

// seedClaims creates the claims table the executor tests query against.
func seedClaims(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS claims (
			claim_id       SERIAL PRIMARY KEY,
			claim_amount   NUMERIC NOT NULL,
			procedure_type TEXT NOT NULL,
			diagnosis      TEXT,
			patient_state  TEXT NOT NULL,
			provider_id    INT,
			service_date   DATE NOT NULL
		)`,
		`TRUNCATE claims`,
		`INSERT INTO claims (claim_amount, procedure_type, diagnosis, patient_state, provider_id, service_date) VALUES
			(120.00, 'Virtual Consultation', 'Anxiety',      'CA', 1, '2026-07-03'),
			(310.00, 'Virtual Consultation', 'Hypertension', 'NY', 2, '2026-07-11'),
			(540.00, 'Mental Health Session', 'Depression',  'CA', 1, '2026-07-15'),
			(95.00,  'Prescription Refill',  'Diabetes',     'TX', 3, '2026-07-21'),
			(880.00, 'Emergency Consult',    'Chest Pain',   'NY', 2, '2026-08-02'),
			(150.00, 'Virtual Consultation', 'Anxiety',      'CA', 1, '2026-08-09'),
			(420.00, 'Follow-up Visit',      'Hypertension', 'TX', 3, '2026-08-14'),
			(610.00, 'Mental Health Session', 'Depression',  'NY', 2, '2026-08-20')`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
