package apiserver

import (
	"context"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/Jakub-Wilk/postgres-manager/pkg/archive"
	"github.com/Jakub-Wilk/postgres-manager/pkg/pg"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithFields(logrus.Fields{"module": "api"})

type Server struct {
	connections map[string]*pg.Connection
	bucket      archive.Bucket
}

type dumpRequest struct {
	Connection string `json:"connection"`
	DumpName   string `json:"dumpName"`
}

type restoreRequest struct {
	Connection string `json:"connection"`
	Dumpfile   string `json:"dumpfile"`
	Clean      bool   `json:"clean"`
}

type archiveRequest struct {
	Connection string `json:"connection"`
	Dumpfile   string `json:"dumpfile"`
}

type removeRequest struct {
	Dumpfile string `json:"dumpfile"`
}

func NewServer(connections map[string]*pg.Connection, bucket archive.Bucket) *Server {
	return &Server{connections: connections, bucket: bucket}
}

func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(Logger(), gin.Recovery())
	r.SetHTMLTemplate(pageTemplate())
	r.GET("/", s.Index)
	r.GET("/v1/connections", s.ListConnections)
	r.GET("/v1/connections/:name/dumps", s.ListDumps)
	r.GET("/v1/connections/:name/ping", s.PingConnection)
	r.POST("/v1/dump", s.StartDump)
	r.POST("/v1/restore", s.StartRestore)
	r.GET("/v1/jobs", s.ListJobs)
	r.GET("/v1/jobs/:id", s.GetJob)
	r.GET("/v1/archive", s.ListArchive)
	r.POST("/v1/archive/upload", s.ArchiveUpload)
	r.POST("/v1/archive/download", s.ArchiveDownload)
	r.DELETE("/v1/archive", s.ArchiveRemove)
	return r
}

// RunApi starts the web console, blocking until the listener dies.
func RunApi(bindAddr string, connections map[string]*pg.Connection, bucket archive.Bucket) {
	log.Info("starting api service...")
	if err := NewServer(connections, bucket).Router().Run(bindAddr); err != nil {
		log.Fatalf("error starting api server, %s", err)
	}
}

func (s *Server) connectionNames() []string {
	var names []string
	for name := range s.connections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "index", gin.H{
		"Connections":    s.connectionNames(),
		"ArchiveEnabled": s.bucket != nil,
	})
}

func (s *Server) ListConnections(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"connections": s.connectionNames()})
}

func (s *Server) ListDumps(c *gin.Context) {
	conn, ok := s.connections[c.Param("name")]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid connection"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"dumps": pg.ListDumps(conn)})
}

// PingConnection verifies the stored credentials actually open a session,
// the console calls it before offering a clean restore.
func (s *Server) PingConnection(c *gin.Context) {
	conn, ok := s.connections[c.Param("name")]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid connection"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	if err := pg.PingConnection(ctx, conn); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connection": conn.Name, "status": "ok"})
}

func (s *Server) StartDump(c *gin.Context) {
	var req dumpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	conn, ok := s.connections[req.Connection]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid connection"})
		return
	}
	dumpName := req.DumpName
	if dumpName == "" {
		dumpName = pg.GenerateDumpName(conn)
	}
	job, err := pg.NewJob(pg.DumpJob, conn, pg.EnsureDumpExt(dumpName))
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	go pg.RunDump(job, conn)
	c.JSON(http.StatusAccepted, gin.H{"job": job.Snapshot()})
}

func (s *Server) StartRestore(c *gin.Context) {
	var req restoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	conn, ok := s.connections[req.Connection]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid connection"})
		return
	}
	if req.Dumpfile == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dump file is required"})
		return
	}
	if _, err := os.Stat(conn.DumpfilePath(req.Dumpfile)); os.IsNotExist(err) {
		notFound := &pg.DumpfileNotFound{Connection: conn.Name, Dumpfile: req.Dumpfile}
		c.JSON(http.StatusBadRequest, gin.H{"error": notFound.Error()})
		return
	}
	job, err := pg.NewJob(pg.RestoreJob, conn, req.Dumpfile)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	go pg.RunRestore(job, conn, req.Clean)
	c.JSON(http.StatusAccepted, gin.H{"job": job.Snapshot()})
}

func (s *Server) ListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": pg.ListJobs()})
}

func (s *Server) GetJob(c *gin.Context) {
	job := pg.GetJob(c.Param("id"))
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

func (s *Server) ListArchive(c *gin.Context) {
	if s.bucket == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "archive bucket is not configured"})
		return
	}
	dumps, err := s.bucket.ListDumps()
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"dumps": dumps})
}

func (s *Server) ArchiveUpload(c *gin.Context) {
	conn, req, ok := s.bindArchiveRequest(c)
	if !ok {
		return
	}
	if err := s.bucket.UploadFile(conn.DumpfilePath(req.Dumpfile), req.Dumpfile); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"uploaded": req.Dumpfile})
}

func (s *Server) ArchiveDownload(c *gin.Context) {
	conn, req, ok := s.bindArchiveRequest(c)
	if !ok {
		return
	}
	if err := s.bucket.DownloadFile(req.Dumpfile, conn.DumpfilePath(req.Dumpfile)); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"downloaded": req.Dumpfile})
}

func (s *Server) ArchiveRemove(c *gin.Context) {
	if s.bucket == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "archive bucket is not configured"})
		return
	}
	var req removeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Dumpfile == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dump file is required"})
		return
	}
	if err := s.bucket.Remove(req.Dumpfile); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": req.Dumpfile})
}

func (s *Server) bindArchiveRequest(c *gin.Context) (*pg.Connection, *archiveRequest, bool) {
	if s.bucket == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "archive bucket is not configured"})
		return nil, nil, false
	}
	var req archiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, nil, false
	}
	conn, ok := s.connections[req.Connection]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid connection"})
		return nil, nil, false
	}
	if req.Dumpfile == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dump file is required"})
		return nil, nil, false
	}
	return conn, &req, true
}
