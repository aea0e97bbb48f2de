package db

import (
	"fmt"

	"memorymap/internal/jobs"
	"memorymap/internal/store/postgres"

	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(pgdriver.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	return gdb, nil
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	// Tables
	if err := gdb.AutoMigrate(
		&postgres.MemoryRow{},
		&postgres.AuthorizedSession{},
		&jobs.Job{},
	); err != nil {
		return err
	}

	// Change feed: one NOTIFY per changed row, payload = app id
	if err := gdb.Exec(fmt.Sprintf(`
create or replace function memories_notify() returns trigger as $$
begin
  perform pg_notify('%s', coalesce(new.app_id, old.app_id));
  return null;
end;
$$ language plpgsql;
`, postgres.NotifyChannel)).Error; err != nil {
		return err
	}
	if err := gdb.Exec(`drop trigger if exists memories_notify on memories;`).Error; err != nil {
		return err
	}
	if err := gdb.Exec(`
create trigger memories_notify
after insert or update or delete on memories
for each row execute function memories_notify();
`).Error; err != nil {
		return err
	}

	// Helpful indexes
	stmts := []string{
		`create index if not exists idx_memories_app_created on memories(app_id, created_ms desc, id);`,
		`create index if not exists idx_jobs_due on jobs(status, run_at);`,
		`create index if not exists idx_jobs_lock on jobs(status, locked_at);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}
