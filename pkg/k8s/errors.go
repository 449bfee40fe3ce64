package k8s

import "fmt"

type RequiredKeyIsMissing struct {
	ObjectName string `json:"objectName"`
	Key        string `json:"key"`
}

func (e *RequiredKeyIsMissing) Error() string {
	return fmt.Sprintf("key: %s is missing in %s", e.Key, e.ObjectName)
}
