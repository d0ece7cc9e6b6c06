//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cliniccloud/cliniccloud/internal/platform/db"
	"github.com/cliniccloud/cliniccloud/migrations"
)

// pool is the shared database, migrated once in TestMain.
var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	p, cleanup, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up postgres: %v\n", err)
		os.Exit(1)
	}
	pool = p

	if _, err := db.NewMigrator(pool, migrations.FS).Up(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to migrate: %v\n", err)
		cleanup()
		os.Exit(1)
	}

	code := m.Run()
	cleanup()
	os.Exit(code)
}

func startPostgres(ctx context.Context) (*pgxpool.Pool, func(), error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       "cliniccloud_test",
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "testpass",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("start container: %w", err)
	}
	terminate := func() { _ = container.Terminate(context.Background()) }

	host, err := container.Host(ctx)
	if err != nil {
		terminate()
		return nil, nil, fmt.Errorf("container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		terminate()
		return nil, nil, fmt.Errorf("container port: %w", err)
	}

	url := fmt.Sprintf("postgres://test:testpass@%s:%s/cliniccloud_test?sslmode=disable", host, port.Port())
	p, err := db.NewPool(ctx, url, 10, 2)
	if err != nil {
		terminate()
		return nil, nil, err
	}
	return p, func() {
		p.Close()
		terminate()
	}, nil
}
