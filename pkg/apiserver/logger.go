package apiserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger routes gin request logging through logrus.
func Logger(notLogged ...string) gin.HandlerFunc {

	var skip map[string]struct{}

	if length := len(notLogged); length > 0 {
		skip = make(map[string]struct{}, length)

		for _, p := range notLogged {
			skip[p] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		start := time.Now()
		c.Next()
		latency := time.Since(start).Milliseconds()
		statusCode := c.Writer.Status()

		if _, ok := skip[path]; ok {
			return
		}

		if len(c.Errors) > 0 {
			log.Error(c.Errors.ByType(gin.ErrorTypePrivate).String())
			return
		}
		msg := fmt.Sprintf("[%s %s %d %dms]", c.Request.Method, path, statusCode, latency)
		if statusCode >= http.StatusBadRequest {
			log.Error(msg)
		} else {
			log.Info(msg)
		}
	}
}
