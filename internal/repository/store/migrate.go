package store

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
)

// migrations holds the embedded schema scripts, applied in lexical order.
//
//go:embed migrations/*.sql
var migrations embed.FS

// migrate brings the database schema up to date. The current version lives
// in "pragma user_version" and equals the number of scripts already applied,
// so re-running migrate on an up-to-date database is a no-op.
func migrate(conn *sqlite.Conn, fsys fs.FS) (err error) {
	release := sqlitex.Save(conn)
	defer release(&err)

	var oldVersion int

	err = sqlitex.ExecTransient(conn, "pragma user_version", func(stmt *sqlite.Stmt) error {
		oldVersion = stmt.ColumnInt(0)

		return nil
	})
	if err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	scripts, err := fs.Glob(fsys, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migration scripts: %w", err)
	}

	if oldVersion >= len(scripts) {
		return nil
	}

	sort.Strings(scripts)

	for _, script := range scripts[oldVersion:] {
		if err = runScript(conn, fsys, script); err != nil {
			return err
		}
	}

	err = sqlitex.Exec(conn, "pragma user_version="+strconv.Itoa(len(scripts)), nil)
	if err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}

	return nil
}

// runScript executes every statement of one migration script.
func runScript(conn *sqlite.Conn, fsys fs.FS, script string) error {
	contents, err := fs.ReadFile(fsys, script)
	if err != nil {
		return fmt.Errorf("read %s: %w", script, err)
	}

	queries := string(contents)

	for i := 0; strings.TrimSpace(queries) != ""; i++ {
		stmt, trailing, err := conn.PrepareTransient(queries)
		if err != nil {
			return fmt.Errorf("prepare %s, statement %d: %w", script, i, err)
		}

		queries = queries[len(queries)-trailing:]

		_, err = stmt.Step()
		stmt.Finalize()

		if err != nil {
			return fmt.Errorf("execute %s, statement %d: %w", script, i, err)
		}
	}

	return nil
}
