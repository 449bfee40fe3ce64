package pg

import (
	"sort"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v3"
)

type Status string

type JobKind string

const (
	Initialized Status = "initialized"
	CleaningDB  Status = "cleaningdb"
	DumpingDB   Status = "dumpingdb"
	RestoringDB Status = "restoringdb"
	Failed      Status = "failed"
	Finished    Status = "finished"

	DumpJob    JobKind = "dump"
	RestoreJob JobKind = "restore"
)

// Job tracks one dump or restore run. Progress carries the latest human
// readable line scraped from the tool's stderr, the web UI polls it.
type Job struct {
	JobId      string    `json:"jobId"`
	Kind       JobKind   `json:"kind"`
	Connection string    `json:"connection"`
	Dumpfile   string    `json:"dumpfile"`
	Status     Status    `json:"status"`
	Progress   string    `json:"progress"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

// maxFinishedJobs caps how many finished or failed jobs the registry keeps
// around for polling, older ones are pruned when new jobs register.
const maxFinishedJobs = 100

var (
	mutex             = sync.Mutex{}
	jobs              = map[string]*Job{}
	activeConnections = map[string]bool{}
)

// NewJob registers a job and claims the connection. A connection with a job
// still running is rejected, not queued.
func NewJob(kind JobKind, conn *Connection, dumpfile string) (*Job, error) {
	mutex.Lock()
	defer mutex.Unlock()
	if activeConnections[conn.Name] {
		return nil, &ConnectionBusyError{Connection: conn.Name}
	}
	j := &Job{
		JobId:      shortuuid.New(),
		Kind:       kind,
		Connection: conn.Name,
		Dumpfile:   dumpfile,
		Status:     Initialized,
		Progress:   "Ready",
		StartedAt:  time.Now(),
	}
	jobs[j.JobId] = j
	activeConnections[conn.Name] = true
	pruneFinishedJobs()
	log.Infof("job: %s (%s on %s) has been registered", j.JobId, j.Kind, j.Connection)
	return j, nil
}

// pruneFinishedJobs drops the oldest finished jobs past the retention cap.
// Running jobs are never pruned. Caller must hold the mutex.
func pruneFinishedJobs() {
	var finished []*Job
	for _, j := range jobs {
		if j.Status == Finished || j.Status == Failed {
			finished = append(finished, j)
		}
	}
	if len(finished) <= maxFinishedJobs {
		return
	}
	sort.Slice(finished, func(i, k int) bool { return finished[i].FinishedAt.Before(finished[k].FinishedAt) })
	for _, j := range finished[:len(finished)-maxFinishedJobs] {
		delete(jobs, j.JobId)
	}
}

func GetJob(id string) *Job {
	mutex.Lock()
	defer mutex.Unlock()
	if j, ok := jobs[id]; ok {
		snapshot := *j
		return &snapshot
	}
	return nil
}

func ListJobs() []*Job {
	mutex.Lock()
	defer mutex.Unlock()
	var all []*Job
	for _, j := range jobs {
		snapshot := *j
		all = append(all, &snapshot)
	}
	sort.Slice(all, func(i, k int) bool { return all[i].StartedAt.After(all[k].StartedAt) })
	return all
}

// ConnectionActive reports whether a job currently holds the connection.
func ConnectionActive(name string) bool {
	mutex.Lock()
	defer mutex.Unlock()
	return activeConnections[name]
}

func (j *Job) release() {
	mutex.Lock()
	if _, active := activeConnections[j.Connection]; active {
		delete(activeConnections, j.Connection)
	}
	mutex.Unlock()
	log.Infof("job: %s released connection %s", j.JobId, j.Connection)
}

func (j *Job) setStatus(s Status) {
	mutex.Lock()
	j.Status = s
	mutex.Unlock()
}

func (j *Job) setProgress(p string) {
	mutex.Lock()
	j.Progress = p
	mutex.Unlock()
}

func (j *Job) fail(msg string) {
	mutex.Lock()
	j.Status = Failed
	j.Error = msg
	j.Progress = msg
	j.FinishedAt = time.Now()
	mutex.Unlock()
	log.Errorf("job: %s failed, err: %s", j.JobId, msg)
}

func (j *Job) finish(msg string) {
	mutex.Lock()
	j.Status = Finished
	j.Progress = msg
	j.FinishedAt = time.Now()
	mutex.Unlock()
	log.Infof("job: %s is finished", j.JobId)
}

// Snapshot returns a copy safe to marshal while the engine keeps writing.
func (j *Job) Snapshot() Job {
	mutex.Lock()
	defer mutex.Unlock()
	return *j
}
