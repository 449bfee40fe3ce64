package archive

import (
	"path"
	"strings"
)

// dumpObjectName extracts the dump file name from a listed object key.
// Only .dump objects under the destination dir count, ping tokens and
// anything else a shared bucket may hold are ignored.
func dumpObjectName(key, dstDir string) (string, bool) {
	if !strings.HasPrefix(key, dstDir+"/") {
		return "", false
	}
	if !strings.HasSuffix(key, ".dump") {
		return "", false
	}
	return path.Base(key), true
}
