package pg

import (
	"context"
	"fmt"
	"os"
	"strconv"
)

func buildRestoreArgs(conn *Connection, dumpfilePath string) []string {
	return []string{
		"-h", conn.Host,
		"-p", strconv.Itoa(conn.Port),
		"-U", conn.User,
		"-d", conn.DbName,
		"--no-owner",
		"--no-privileges",
		"--verbose",
		dumpfilePath,
	}
}

// RunRestore executes pg_restore for the job, optionally dropping all
// public schema tables first. A failed clean aborts the restore before the
// subprocess ever starts. Meant to run in its own goroutine.
func RunRestore(job *Job, conn *Connection, clean bool) error {
	defer job.release()

	restorePath, err := lookupTool("pg_restore")
	if err != nil {
		job.fail(err.Error())
		return err
	}

	dumpfilePath := conn.DumpfilePath(job.Dumpfile)
	if _, err := os.Stat(dumpfilePath); os.IsNotExist(err) {
		notFound := &DumpfileNotFound{Connection: conn.Name, Dumpfile: job.Dumpfile}
		job.fail(notFound.Error())
		return notFound
	}

	if clean {
		job.setStatus(CleaningDB)
		job.setProgress("Cleaning database...")
		dropped, err := Clean(context.Background(), conn)
		if err != nil {
			job.fail(fmt.Sprintf("clean failed: %s", err))
			return err
		}
		log.Infof("dropped %d tables in %s", dropped, conn.DbName)
	}

	job.setStatus(RestoringDB)
	job.setProgress(fmt.Sprintf("Restoring database %s...", conn.DbName))
	log.Infof("starting restore: %s for connection: %s", job.Dumpfile, conn.Name)

	if err := job.runTool(restorePath, buildRestoreArgs(conn, dumpfilePath), conn.Env()); err != nil {
		return err
	}

	job.finish(fmt.Sprintf("Restore completed from %s", job.Dumpfile))
	return nil
}
