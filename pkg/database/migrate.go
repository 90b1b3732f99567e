package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"

	"dopahiyaa/pkg/logging"
)

// ApplySchema executes every *.sql file under dir in lexical order. The
// files are expected to be idempotent.
func ApplySchema(ctx context.Context, db *sql.DB, files fs.FS, dir string, logger logging.Logger) error {
	names, err := fs.Glob(files, dir+"/*.sql")
	if err != nil {
		return fmt.Errorf("list schema files: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := fs.ReadFile(files, name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		logger.WithField("file", name).Debug("Applied schema file")
	}
	return nil
}
