package apiserver

import (
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"

	"github.com/Jakub-Wilk/postgres-manager/pkg/archive"
	"github.com/Jakub-Wilk/postgres-manager/pkg/pg"
	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// stubBucket records archive calls without talking to a real backend.
type stubBucket struct {
	dumps   []string
	removed []string
}

func (b *stubBucket) Ping() error                                 { return nil }
func (b *stubBucket) BucketId() string                            { return "stub-bucket" }
func (b *stubBucket) BucketType() archive.BucketType              { return archive.MinioBucketType }
func (b *stubBucket) GetDstDir() string                           { return "postgres-manager-dumps" }
func (b *stubBucket) UploadFile(path, objectName string) error    { return nil }
func (b *stubBucket) DownloadFile(objectName, local string) error { return nil }
func (b *stubBucket) ListDumps() ([]string, error)                { return b.dumps, nil }
func (b *stubBucket) Remove(objectName string) error {
	b.removed = append(b.removed, objectName)
	return nil
}

var _ = Describe("Api", func() {

	var router *gin.Engine

	BeforeEach(func() {
		connections := map[string]*pg.Connection{
			"maindb": {Name: "maindb", Host: "localhost", Port: 5432, DbName: "main", User: "postgres", Password: "pw", DumpDir: "/does/not/exist"},
		}
		router = NewServer(connections, nil).Router()
	})

	request := func(method, path, body string) *httptest.ResponseRecorder {
		var req *http.Request
		if body == "" {
			req = httptest.NewRequest(method, path, nil)
		} else {
			req = httptest.NewRequest(method, path, strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	Context("Connections", func() {
		It("lists configured connection names", func() {
			w := request("GET", "/v1/connections", "")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring("maindb"))
		})
		It("rejects dump listing for unknown connections", func() {
			w := request("GET", "/v1/connections/nope/dumps", "")
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(w.Body.String()).To(ContainSubstring("invalid connection"))
		})
		It("lists dumps for a known connection", func() {
			w := request("GET", "/v1/connections/maindb/dumps", "")
			Expect(w.Code).To(Equal(http.StatusOK))
		})
		It("rejects pinging an unknown connection", func() {
			w := request("GET", "/v1/connections/nope/ping", "")
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(w.Body.String()).To(ContainSubstring("invalid connection"))
		})
	})

	Context("Dump requests", func() {
		It("rejects an unknown connection", func() {
			w := request("POST", "/v1/dump", `{"connection":"nope"}`)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
		It("rejects a malformed body", func() {
			w := request("POST", "/v1/dump", `{`)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Context("Restore requests", func() {
		It("rejects an unknown connection", func() {
			w := request("POST", "/v1/restore", `{"connection":"nope","dumpfile":"a.dump"}`)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
		It("requires a dump file", func() {
			w := request("POST", "/v1/restore", `{"connection":"maindb"}`)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(w.Body.String()).To(ContainSubstring("dump file is required"))
		})
		It("rejects a dump file that does not exist", func() {
			w := request("POST", "/v1/restore", `{"connection":"maindb","dumpfile":"missing.dump"}`)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(w.Body.String()).To(ContainSubstring("not found"))
		})
	})

	Context("Jobs", func() {
		It("returns 404 for unknown jobs", func() {
			w := request("GET", "/v1/jobs/does-not-exist", "")
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
		It("lists jobs", func() {
			w := request("GET", "/v1/jobs", "")
			Expect(w.Code).To(Equal(http.StatusOK))
		})
	})

	Context("Archive", func() {
		It("is unavailable when no bucket is configured", func() {
			w := request("GET", "/v1/archive", "")
			Expect(w.Code).To(Equal(http.StatusServiceUnavailable))

			w = request("POST", "/v1/archive/upload", `{"connection":"maindb","dumpfile":"a.dump"}`)
			Expect(w.Code).To(Equal(http.StatusServiceUnavailable))

			w = request("DELETE", "/v1/archive", `{"dumpfile":"a.dump"}`)
			Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
		})
		It("lists archived dumps from the bucket", func() {
			bucket := &stubBucket{dumps: []string{"main_dump_20260101_000000.dump"}}
			archived := NewServer(map[string]*pg.Connection{}, bucket).Router()
			req := httptest.NewRequest("GET", "/v1/archive", nil)
			w := httptest.NewRecorder()
			archived.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring("main_dump_20260101_000000.dump"))
		})
		It("removes an archived dump from the bucket", func() {
			bucket := &stubBucket{}
			archived := NewServer(map[string]*pg.Connection{}, bucket).Router()
			req := httptest.NewRequest("DELETE", "/v1/archive", strings.NewReader(`{"dumpfile":"a.dump"}`))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			archived.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(bucket.removed).To(Equal([]string{"a.dump"}))

			req = httptest.NewRequest("DELETE", "/v1/archive", strings.NewReader(`{}`))
			req.Header.Set("Content-Type", "application/json")
			w = httptest.NewRecorder()
			archived.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
		It("uploads an existing dump through the bucket", func() {
			dir, err := ioutil.TempDir("", "apidumps")
			Expect(err).To(BeNil())
			defer os.RemoveAll(dir)
			Expect(ioutil.WriteFile(filepath.Join(dir, "a.dump"), []byte("x"), 0644)).To(BeNil())

			bucket := &stubBucket{}
			connections := map[string]*pg.Connection{
				"tmp": {Name: "tmp", DbName: "main", DumpDir: dir},
			}
			archived := NewServer(connections, bucket).Router()
			req := httptest.NewRequest("POST", "/v1/archive/upload", strings.NewReader(`{"connection":"tmp","dumpfile":"a.dump"}`))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			archived.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring("a.dump"))
		})
	})

	Context("Console page", func() {
		It("renders the connection options", func() {
			w := request("GET", "/", "")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring("PostgreSQL Database Manager"))
			Expect(w.Body.String()).To(ContainSubstring("maindb"))
		})
	})
})
