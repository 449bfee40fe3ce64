package pg

import (
	"fmt"
	"regexp"
	"strings"
)

// pg_dump/pg_restore write their --verbose diagnostics to stderr, one line
// per step. A few well known shapes are condensed into short phrases for
// the status label, anything else prefixed by the tool name is shown as is.
var progressPatterns = []struct {
	re     *regexp.Regexp
	format string
}{
	{regexp.MustCompile(`^dumping contents of table "?([^"]+)"?$`), "dumping table %s"},
	{regexp.MustCompile(`^finding the columns and types of table "?([^"]+)"?$`), "reading table %s"},
	{regexp.MustCompile(`^restoring data for table "?([^"]+)"?$`), "restoring table %s"},
	{regexp.MustCompile(`^creating ([A-Z ]+) "?([^"]+)"?$`), "creating %s %s"},
	{regexp.MustCompile(`^processing item \d+ (.+)$`), "processing %s"},
	{regexp.MustCompile(`^connecting to database for restore$`), "connecting to database"},
}

var toolPrefix = regexp.MustCompile(`^pg_(?:dump|restore): (?:warning: )?`)

// ParseProgress turns one stderr line into a status label update. The
// second return value is false for lines that are not tool diagnostics.
func ParseProgress(line string) (string, bool) {
	line = strings.TrimSpace(line)
	loc := toolPrefix.FindStringIndex(line)
	if loc == nil {
		return "", false
	}
	msg := line[loc[1]:]
	if msg == "" {
		return "", false
	}
	for _, p := range progressPatterns {
		if m := p.re.FindStringSubmatch(msg); m != nil {
			args := make([]interface{}, 0, len(m)-1)
			for _, g := range m[1:] {
				args = append(args, strings.ToLower(strings.TrimSpace(g)))
			}
			return fmt.Sprintf(p.format, args...), true
		}
	}
	return msg, true
}

// observeLine feeds a scraped stderr line into the job's progress label and
// keeps a short tail for error reporting.
func (j *Job) observeLine(line string, tail *stderrTail) {
	tail.add(line)
	if msg, ok := ParseProgress(line); ok {
		j.setProgress(msg)
	}
}

const tailSize = 5

type stderrTail struct {
	lines []string
}

func (t *stderrTail) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > tailSize {
		t.lines = t.lines[len(t.lines)-tailSize:]
	}
}

func (t *stderrTail) String() string {
	if len(t.lines) == 0 {
		return "unknown error"
	}
	return strings.Join(t.lines, "; ")
}
