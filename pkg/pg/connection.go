package pg

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "pg")

// Connection describes a single PostgreSQL target from config.toml
// (or discovered from a K8s secret).
type Connection struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DbName   string `json:"dbname"`
	User     string `json:"user"`
	Password string `json:"-"`
	DumpDir  string `json:"dumpDir"`
}

// URI returns the connection in postgresql:// form, for pgx.
func (c *Connection) URI() string {
	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s",
		url.QueryEscape(c.User), url.QueryEscape(c.Password), c.Host, c.Port, c.DbName)
}

// Env returns the process environment for pg_dump/pg_restore. The password
// goes through PGPASSWORD only, never through command line arguments.
func (c *Connection) Env() []string {
	return append(os.Environ(), fmt.Sprintf("PGPASSWORD=%s", c.Password))
}

// ExpandedDumpDir resolves a leading ~ in the configured dump directory.
func (c *Connection) ExpandedDumpDir() string {
	dir := c.DumpDir
	if dir == "" {
		dir = "."
	}
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Errorf("can't resolve home dir, err: %s", err)
			return dir
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}
	return dir
}

// DumpfilePath returns the absolute location of a dump file for this connection.
func (c *Connection) DumpfilePath(dumpfile string) string {
	return filepath.Join(c.ExpandedDumpDir(), dumpfile)
}
