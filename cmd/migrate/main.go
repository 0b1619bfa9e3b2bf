package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/academy-payments/internal/config"
	infraBQ "github.com/dvloznov/academy-payments/internal/infra/bigquery"
	"github.com/dvloznov/academy-payments/internal/store/gormstore"
	"google.golang.org/api/iterator"
)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// migrationPattern matches migration files: 0001_name.sql
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

func main() {
	cfg := config.Load()

	var (
		dbDriver      = flag.String("db-driver", cfg.DBDriver, "Database driver: sqlite, postgres or mysql (or set DB_DRIVER env)")
		dbDSN         = flag.String("db-dsn", cfg.DBDSN, "Database DSN (or set DB_DSN env)")
		projectID     = flag.String("project", cfg.BQProject, "GCP project ID; BigQuery is skipped when empty (or set BQ_PROJECT env)")
		datasetID     = flag.String("dataset", cfg.BQDataset, "BigQuery dataset ID")
		auditTable    = flag.String("audit-table", cfg.BQAuditTable, "BigQuery audit events table")
		appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
		migrationsDir = flag.String("migrations", "migrations/bigquery", "Path to BigQuery migrations directory")
	)
	flag.Parse()

	ctx := context.Background()

	if *dbDriver != "memory" {
		if err := migrateDatabase(*dbDriver, *dbDSN); err != nil {
			log.Fatalf("Failed to migrate %s database: %v", *dbDriver, err)
		}
		log.Printf("Migrated %s payment tables", *dbDriver)
	}

	if *projectID == "" {
		log.Println("No BigQuery project configured, skipping audit migrations.")
		return
	}

	// Create BigQuery client
	client, err := bigquery.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatalf("Failed to create BigQuery client: %v", err)
	}
	defer client.Close()

	log.Printf("Connected to BigQuery project: %s, dataset: %s", *projectID, *datasetID)

	if err := infraBQ.EnsureAuditTable(ctx, client, *datasetID, *auditTable); err != nil {
		log.Fatalf("Failed to ensure audit table: %v", err)
	}

	m := &migrator{client: client, projectID: *projectID, datasetID: *datasetID, auditTable: *auditTable, appliedBy: *appliedBy}

	// Ensure schema_migrations table exists
	if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
		log.Fatalf("Failed to ensure schema_migrations table: %v", err)
	}

	dir, err := locateMigrations(*migrationsDir)
	if err != nil {
		log.Fatalf("Failed to locate migrations: %v", err)
	}
	migrations, err := readMigrations(dir, m.placeholders())
	if err != nil {
		log.Fatalf("Failed to read migrations: %v", err)
	}

	log.Printf("Found %d migration files", len(migrations))

	appliedMigrations, err := m.getAppliedMigrations(ctx)
	if err != nil {
		log.Fatalf("Failed to get applied migrations: %v", err)
	}

	log.Printf("Found %d already applied migrations", len(appliedMigrations))

	pending, mismatched := pendingMigrations(migrations, appliedMigrations)
	for _, mm := range mismatched {
		log.Printf("  [WARN] %04d_%s changed after it was applied", mm.Version, mm.Name)
	}

	for _, migration := range pending {
		log.Printf("  [RUN]  %04d_%s", migration.Version, migration.Name)

		if err := m.run(ctx, migration.SQL, nil); err != nil {
			log.Fatalf("Failed to execute migration %04d_%s: %v", migration.Version, migration.Name, err)
		}

		// Record migration in schema_migrations
		if err := m.recordMigration(ctx, migration); err != nil {
			log.Fatalf("Failed to record migration %04d_%s: %v", migration.Version, migration.Name, err)
		}

		log.Printf("  [OK]   %04d_%s", migration.Version, migration.Name)
	}

	if len(pending) == 0 {
		log.Println("No new migrations to apply. Dataset is up to date.")
	} else {
		log.Printf("Successfully applied %d migration(s)", len(pending))
	}
}

func migrateDatabase(driver, dsn string) error {
	db, err := gormstore.Open(driver, dsn)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	return gormstore.AutoMigrate(db)
}

type migrator struct {
	client     *bigquery.Client
	projectID  string
	datasetID  string
	auditTable string
	appliedBy  string
}

func (m *migrator) placeholders() map[string]string {
	return map[string]string{
		"{{PROJECT_ID}}":  m.projectID,
		"{{DATASET_ID}}":  m.datasetID,
		"{{AUDIT_TABLE}}": m.auditTable,
	}
}

func (m *migrator) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", m.projectID, m.datasetID, name)
}

// ensureSchemaMigrationsTable creates the schema_migrations table if it doesn't exist
func (m *migrator) ensureSchemaMigrationsTable(ctx context.Context) error {
	sql := `
		CREATE TABLE IF NOT EXISTS ` + m.table("schema_migrations") + ` (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`
	return m.run(ctx, sql, nil)
}

// getAppliedMigrations retrieves the list of already applied migrations
func (m *migrator) getAppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	sql := `
		SELECT version, name, applied_at, checksum, applied_by
		FROM ` + m.table("schema_migrations") + `
		ORDER BY version ASC
	`

	it, err := m.client.Query(sql).Read(ctx)
	if err != nil {
		// If table doesn't exist yet, return empty list
		if strings.Contains(err.Error(), "Not found") {
			return []AppliedMigration{}, nil
		}
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64
			Name      string
			AppliedAt time.Time
			Checksum  bigquery.NullString
			AppliedBy bigquery.NullString
		}

		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}

		am := AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
		}
		if row.Checksum.Valid {
			am.Checksum = row.Checksum.StringVal
		}
		if row.AppliedBy.Valid {
			am.AppliedBy = row.AppliedBy.StringVal
		}
		applied = append(applied, am)
	}

	return applied, nil
}

// recordMigration records a successfully applied migration in schema_migrations
func (m *migrator) recordMigration(ctx context.Context, migration Migration) error {
	sql := `
		INSERT INTO ` + m.table("schema_migrations") + `
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`
	return m.run(ctx, sql, []bigquery.QueryParameter{
		{Name: "version", Value: migration.Version},
		{Name: "name", Value: migration.Name},
		{Name: "checksum", Value: migration.Checksum},
		{Name: "applied_by", Value: m.appliedBy},
	})
}

// run executes a statement and waits for its job to finish.
func (m *migrator) run(ctx context.Context, sql string, params []bigquery.QueryParameter) error {
	query := m.client.Query(sql)
	query.Parameters = params

	job, err := query.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}

	return nil
}

// locateMigrations finds dir relative to the working directory, or to the
// repository root when run from cmd/migrate.
func locateMigrations(dir string) (string, error) {
	if _, err := os.Stat(dir); err == nil {
		return dir, nil
	}
	alt := filepath.Join("..", "..", dir)
	if _, err := os.Stat(alt); err == nil {
		return alt, nil
	}
	return "", fmt.Errorf("migrations directory not found: %s", dir)
}

// parseMigrationFilename extracts the version and name of a migration file.
func parseMigrationFilename(filename string) (int, string, bool) {
	matches := migrationPattern.FindStringSubmatch(filename)
	if matches == nil {
		return 0, "", false
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, "", false
	}
	return version, matches[2], true
}

// readMigrations reads all migration files from dir, sorted by version.
// Checksums cover the file content before placeholder substitution, so the
// same migration applied to another dataset keeps its checksum.
func readMigrations(dir string, placeholders map[string]string) ([]Migration, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []Migration
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		version, name, ok := parseMigrationFilename(file.Name())
		if !ok {
			log.Printf("Skipping file with invalid format: %s", file.Name())
			continue
		}

		content, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", file.Name(), err)
		}

		sql := string(content)
		for placeholder, value := range placeholders {
			sql = strings.ReplaceAll(sql, placeholder, value)
		}

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			Filename: file.Name(),
			SQL:      sql,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// pendingMigrations returns the migrations not yet applied, and the applied
// ones whose file content no longer matches the recorded checksum.
func pendingMigrations(all []Migration, applied []AppliedMigration) (pending, mismatched []Migration) {
	byVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}
	for _, m := range all {
		am, ok := byVersion[m.Version]
		switch {
		case !ok:
			pending = append(pending, m)
		case am.Checksum != "" && am.Checksum != m.Checksum:
			mismatched = append(mismatched, m)
		}
	}
	return pending, mismatched
}
