package pg

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
)

// Clean drops every table in the target database's public schema and
// returns the number of dropped tables. Zero tables is a no-op, not an
// error. Only the public schema is ever touched.
func Clean(ctx context.Context, conn *Connection) (int, error) {
	c, err := pgx.Connect(ctx, conn.URI())
	if err != nil {
		return 0, fmt.Errorf("unable to connect to database: %w", err)
	}
	defer c.Close(ctx)

	rows, err := c.Query(ctx, "SELECT tablename FROM pg_tables WHERE schemaname = 'public'")
	if err != nil {
		return 0, err
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return 0, err
		}
		tables = append(tables, name)
	}
	rows.Close()
	if rows.Err() != nil {
		return 0, rows.Err()
	}

	if len(tables) == 0 {
		log.Infof("no tables in public schema of %s, nothing to clean", conn.DbName)
		return 0, nil
	}

	if _, err := c.Exec(ctx, dropTablesStatement(tables)); err != nil {
		return 0, err
	}
	return len(tables), nil
}

// dropTablesStatement quotes each table name and drops them in one
// statement, cascading to dependent objects.
func dropTablesStatement(tables []string) string {
	quoted := make([]string, 0, len(tables))
	for _, t := range tables {
		quoted = append(quoted, quoteIdent(t))
	}
	return fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", strings.Join(quoted, ", "))
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// PingConnection opens and closes a connection, used by the console to
// verify credentials before offering destructive actions.
func PingConnection(ctx context.Context, conn *Connection) error {
	c, err := pgx.Connect(ctx, conn.URI())
	if err != nil {
		return err
	}
	return c.Close(ctx)
}
