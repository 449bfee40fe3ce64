package pg

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// lookupTool resolves a client binary and probes it with --version, so a
// broken installation fails before any job state changes.
func lookupTool(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", &ToolNotFound{Tool: name}
	}
	out, err := exec.Command(path, "--version").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to get version of %s: %w", name, err)
	}
	log.Debugf("%s version: %s", name, strings.TrimSpace(string(out)))
	return path, nil
}

func buildDumpArgs(conn *Connection, dumpfilePath string) []string {
	return []string{
		"-h", conn.Host,
		"-p", strconv.Itoa(conn.Port),
		"-U", conn.User,
		"-d", conn.DbName,
		"--format=custom",
		fmt.Sprintf("--file=%s", dumpfilePath),
		"--verbose",
	}
}

// RunDump executes pg_dump for the job and scrapes its stderr into the
// job's progress label. Meant to run in its own goroutine.
func RunDump(job *Job, conn *Connection) error {
	defer job.release()

	dumpPath, err := lookupTool("pg_dump")
	if err != nil {
		job.fail(err.Error())
		return err
	}

	if err := os.MkdirAll(conn.ExpandedDumpDir(), 0755); err != nil {
		job.fail(fmt.Sprintf("can't create dump dir: %s", err))
		return err
	}

	job.setStatus(DumpingDB)
	job.setProgress(fmt.Sprintf("Dumping database %s...", conn.DbName))
	log.Infof("starting dump: %s for connection: %s", job.Dumpfile, conn.Name)

	if err := job.runTool(dumpPath, buildDumpArgs(conn, conn.DumpfilePath(job.Dumpfile)), conn.Env()); err != nil {
		return err
	}

	job.finish(fmt.Sprintf("Dump completed: %s", job.Dumpfile))
	return nil
}

// runTool starts the subprocess and streams stderr line by line. The
// verbose diagnostics of both tools go to stderr, stdout stays quiet.
func (j *Job) runTool(path string, args []string, env []string) error {
	cmd := exec.Command(path, args...)
	cmd.Env = env

	stderr, err := cmd.StderrPipe()
	if err != nil {
		j.fail(err.Error())
		return err
	}

	if err := cmd.Start(); err != nil {
		j.fail(err.Error())
		return err
	}

	tail := &stderrTail{}
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		m := scanner.Text()
		log.Debugf("|%s| %s", j.JobId, m)
		j.observeLine(m, tail)
	}

	if err := cmd.Wait(); err != nil {
		j.fail(fmt.Sprintf("%s failed: %s", j.Kind, tail))
		return err
	}
	return nil
}
