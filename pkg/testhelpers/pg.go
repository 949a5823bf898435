package testhelpers

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

//go:embed testdata/*.sql
var initScripts embed.FS

type PostgresContainer struct {
	*postgres.PostgresContainer
	ConnectionString string
	Logs             *bytes.Buffer

	scriptDir string
}

type CreatePostgresContainerOpts struct {
	CreateSchema bool
	Fixtures     bool
}

func CreatePostgresContainer(ctx context.Context, opts CreatePostgresContainerOpts) (*PostgresContainer, error) {
	initDatafiles := []string{}
	if opts.CreateSchema {
		initDatafiles = append(initDatafiles, "testdata/01-schema.sql")
	}
	if opts.Fixtures {
		initDatafiles = append(initDatafiles, "testdata/02-fixtures.sql")
	}

	scriptDir, err := os.MkdirTemp("", "launchpad-pg-init-")
	if err != nil {
		return nil, err
	}

	mergedFilename := filepath.Join(scriptDir, "init-scripts-merged.sql")
	merged := bytes.Buffer{}
	for _, initDatafile := range initDatafiles {
		b, err := initScripts.ReadFile(initDatafile)
		if err != nil {
			return nil, err
		}
		merged.Write(b)
		merged.WriteString("\n")
	}
	if err := os.WriteFile(mergedFilename, merged.Bytes(), 0644); err != nil {
		return nil, err
	}

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithInitScripts(mergedFilename),
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.
				ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		if pgContainer == nil {
			return nil, fmt.Errorf("container failed: %w", err)
		}

		logReader, logErr := pgContainer.Logs(ctx)
		if logErr != nil {
			return nil, fmt.Errorf("container failed: %v (failed to get logs: %v)", err, logErr)
		}
		defer logReader.Close()

		logs := new(bytes.Buffer)
		if _, readErr := logs.ReadFrom(logReader); readErr != nil {
			return nil, fmt.Errorf("container failed: %v (failed to read logs: %v)", err, readErr)
		}
		return nil, fmt.Errorf("container failed: %v\nLogs:\n%s", err, logs.String())
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, err
	}

	return &PostgresContainer{
		PostgresContainer: pgContainer,
		ConnectionString:  connStr,
		scriptDir:         scriptDir,
	}, nil
}

// Close terminates the container and removes the generated init script.
func (c *PostgresContainer) Close(ctx context.Context) error {
	defer os.RemoveAll(c.scriptDir)
	return c.PostgresContainer.Terminate(ctx)
}
