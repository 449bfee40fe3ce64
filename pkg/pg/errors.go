package pg

import "fmt"

type ConnectionBusyError struct {
	Connection string `json:"connection"`
}

func (e *ConnectionBusyError) Error() string {
	return fmt.Sprintf("connection %s already has a job running", e.Connection)
}

type DumpfileNotFound struct {
	Connection string `json:"connection"`
	Dumpfile   string `json:"dumpfile"`
}

func (e *DumpfileNotFound) Error() string {
	return fmt.Sprintf("dump file %s not found for connection %s", e.Dumpfile, e.Connection)
}

type ToolNotFound struct {
	Tool string `json:"tool"`
}

func (e *ToolNotFound) Error() string {
	return fmt.Sprintf("%s not found, please make sure it is installed", e.Tool)
}
