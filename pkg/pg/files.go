package pg

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const DumpExt = ".dump"

// GenerateDumpName builds the default dump name for a connection,
// e.g. mydb_dump_20260829_153000.
func GenerateDumpName(conn *Connection) string {
	return fmt.Sprintf("%s_dump_%s", conn.DbName, time.Now().Format("20060102_150405"))
}

// EnsureDumpExt appends the .dump extension when it is missing.
func EnsureDumpExt(name string) string {
	if strings.HasSuffix(name, DumpExt) {
		return name
	}
	return name + DumpExt
}

// ListDumps returns the dump files in the connection's dump directory,
// newest name first. A missing directory is an empty list, not an error.
func ListDumps(conn *Connection) []string {
	pattern := filepath.Join(conn.ExpandedDumpDir(), "*"+DumpExt)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		log.Errorf("error listing dumps in %s, err: %s", conn.ExpandedDumpDir(), err)
		return nil
	}
	var dumps []string
	for _, m := range matches {
		dumps = append(dumps, filepath.Base(m))
	}
	// timestamped names sort newest first in reverse lexical order
	sort.Sort(sort.Reverse(sort.StringSlice(dumps)))
	return dumps
}
