package pg

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Pg", func() {

	conn := &Connection{
		Name:     "maindb",
		Host:     "db.example.com",
		Port:     5433,
		DbName:   "main",
		User:     "admin",
		Password: "secret",
		DumpDir:  "/var/dumps",
	}

	Describe("Progress parsing", func() {

		Context("pg_dump diagnostics", func() {
			It("condenses table dump lines", func() {
				msg, ok := ParseProgress(`pg_dump: dumping contents of table "public.users"`)
				Expect(ok).To(BeTrue())
				Expect(msg).To(Equal("dumping table public.users"))
			})
			It("condenses column reading lines", func() {
				msg, ok := ParseProgress(`pg_dump: finding the columns and types of table "public.orders"`)
				Expect(ok).To(BeTrue())
				Expect(msg).To(Equal("reading table public.orders"))
			})
			It("passes through other diagnostics without the tool prefix", func() {
				msg, ok := ParseProgress("pg_dump: saving database definition")
				Expect(ok).To(BeTrue())
				Expect(msg).To(Equal("saving database definition"))
			})
		})

		Context("pg_restore diagnostics", func() {
			It("condenses data restore lines", func() {
				msg, ok := ParseProgress(`pg_restore: restoring data for table "public.users"`)
				Expect(ok).To(BeTrue())
				Expect(msg).To(Equal("restoring table public.users"))
			})
			It("condenses object creation lines", func() {
				msg, ok := ParseProgress(`pg_restore: creating TABLE "public.users"`)
				Expect(ok).To(BeTrue())
				Expect(msg).To(Equal("creating table public.users"))
			})
			It("reports the connect step", func() {
				msg, ok := ParseProgress("pg_restore: connecting to database for restore")
				Expect(ok).To(BeTrue())
				Expect(msg).To(Equal("connecting to database"))
			})
			It("strips the warning prefix", func() {
				msg, ok := ParseProgress("pg_restore: warning: errors ignored on restore: 1")
				Expect(ok).To(BeTrue())
				Expect(msg).To(Equal("errors ignored on restore: 1"))
			})
		})

		Context("non diagnostic output", func() {
			It("is ignored", func() {
				_, ok := ParseProgress("some random line")
				Expect(ok).To(BeFalse())
			})
			It("ignores empty lines", func() {
				_, ok := ParseProgress("   ")
				Expect(ok).To(BeFalse())
			})
		})
	})

	Describe("Dump names", func() {
		It("is built from dbname and timestamp", func() {
			name := GenerateDumpName(conn)
			Expect(name).To(HavePrefix("main_dump_"))
			Expect(name).To(MatchRegexp(`^main_dump_\d{8}_\d{6}$`))
		})
		It("appends the dump extension when missing", func() {
			Expect(EnsureDumpExt("nightly")).To(Equal("nightly.dump"))
		})
		It("keeps the dump extension when present", func() {
			Expect(EnsureDumpExt("nightly.dump")).To(Equal("nightly.dump"))
		})
	})

	Describe("Tool arguments", func() {
		It("builds pg_dump args without the password", func() {
			args := buildDumpArgs(conn, "/var/dumps/main.dump")
			Expect(args).To(ContainElement("--format=custom"))
			Expect(args).To(ContainElement("--file=/var/dumps/main.dump"))
			Expect(args).To(ContainElement("--verbose"))
			Expect(strings.Join(args, " ")).NotTo(ContainSubstring("secret"))
		})
		It("builds pg_restore args without the password", func() {
			args := buildRestoreArgs(conn, "/var/dumps/main.dump")
			Expect(args).To(ContainElement("--no-owner"))
			Expect(args).To(ContainElement("--no-privileges"))
			Expect(args[len(args)-1]).To(Equal("/var/dumps/main.dump"))
			Expect(strings.Join(args, " ")).NotTo(ContainSubstring("secret"))
		})
		It("keeps the password out of the connection env args", func() {
			Expect(conn.URI()).To(ContainSubstring("secret"))
			Expect(conn.Env()).To(ContainElement("PGPASSWORD=secret"))
		})
	})

	Describe("Dump listing", func() {
		It("lists dump files newest name first", func() {
			dir, err := ioutil.TempDir("", "dumps")
			Expect(err).To(BeNil())
			defer os.RemoveAll(dir)
			for _, f := range []string{"main_dump_20260101_000000.dump", "main_dump_20260301_000000.dump", "notes.txt"} {
				Expect(ioutil.WriteFile(filepath.Join(dir, f), []byte("x"), 0644)).To(BeNil())
			}
			c := &Connection{Name: "tmp", DbName: "main", DumpDir: dir}
			Expect(ListDumps(c)).To(Equal([]string{
				"main_dump_20260301_000000.dump",
				"main_dump_20260101_000000.dump",
			}))
		})
		It("returns an empty list for a missing directory", func() {
			c := &Connection{Name: "tmp", DbName: "main", DumpDir: "/does/not/exist"}
			Expect(ListDumps(c)).To(BeEmpty())
		})
	})

	Describe("Jobs", func() {
		It("rejects a second job on a busy connection", func() {
			busy := &Connection{Name: "busy-conn", DbName: "main"}
			job, err := NewJob(DumpJob, busy, "a.dump")
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(Initialized))

			_, err = NewJob(RestoreJob, busy, "b.dump")
			Expect(err).To(HaveOccurred())
			Expect(err).To(BeAssignableToTypeOf(&ConnectionBusyError{}))

			job.release()
			Expect(ConnectionActive("busy-conn")).To(BeFalse())
		})
		It("frees the connection once the job finishes", func() {
			c := &Connection{Name: "free-conn", DbName: "main"}
			job, err := NewJob(DumpJob, c, "a.dump")
			Expect(err).To(BeNil())
			job.finish("Dump completed: a.dump")
			job.release()
			_, err = NewJob(DumpJob, c, "b.dump")
			Expect(err).To(BeNil())
			Expect(ConnectionActive("free-conn")).To(BeTrue())
		})
		It("records failures with the stderr tail", func() {
			c := &Connection{Name: "fail-conn", DbName: "main"}
			job, err := NewJob(RestoreJob, c, "a.dump")
			Expect(err).To(BeNil())
			tail := &stderrTail{}
			job.observeLine("pg_restore: error: could not open input file", tail)
			job.fail(fmt.Sprintf("restore failed: %s", tail))
			job.release()

			got := GetJob(job.JobId)
			Expect(got.Status).To(Equal(Failed))
			Expect(got.Error).To(ContainSubstring("could not open input file"))
		})
		It("prunes the oldest finished jobs past the retention cap", func() {
			var first, last string
			for i := 0; i < maxFinishedJobs+50; i++ {
				c := &Connection{Name: fmt.Sprintf("prune-conn-%d", i), DbName: "main"}
				job, err := NewJob(DumpJob, c, "a.dump")
				Expect(err).To(BeNil())
				job.finish("Dump completed: a.dump")
				job.release()
				if i == 0 {
					first = job.JobId
				}
				last = job.JobId
			}
			Expect(GetJob(first)).To(BeNil())
			Expect(GetJob(last)).NotTo(BeNil())
		})
		It("never prunes a running job", func() {
			c := &Connection{Name: "running-conn", DbName: "main"}
			job, err := NewJob(DumpJob, c, "a.dump")
			Expect(err).To(BeNil())
			for i := 0; i < maxFinishedJobs+50; i++ {
				fc := &Connection{Name: fmt.Sprintf("running-filler-%d", i), DbName: "main"}
				filler, err := NewJob(DumpJob, fc, "a.dump")
				Expect(err).To(BeNil())
				filler.finish("Dump completed: a.dump")
				filler.release()
			}
			Expect(GetJob(job.JobId)).NotTo(BeNil())
			Expect(GetJob(job.JobId).Status).To(Equal(Initialized))
			job.release()
		})
		It("is visible in the job listing", func() {
			c := &Connection{Name: "list-conn", DbName: "main"}
			job, err := NewJob(DumpJob, c, "a.dump")
			Expect(err).To(BeNil())
			job.release()
			var ids []string
			for _, j := range ListJobs() {
				ids = append(ids, j.JobId)
			}
			Expect(ids).To(ContainElement(job.JobId))
		})
	})

	Describe("Clean statement", func() {
		It("quotes and cascades", func() {
			stmt := dropTablesStatement([]string{"users", "order items"})
			Expect(stmt).To(Equal(`DROP TABLE IF EXISTS "users", "order items" CASCADE`))
		})
		It("escapes embedded quotes", func() {
			Expect(quoteIdent(`we"ird`)).To(Equal(`"we""ird"`))
		})
	})

	Describe("Stderr tail", func() {
		It("keeps only the last lines", func() {
			tail := &stderrTail{}
			for i := 0; i < 10; i++ {
				tail.add(fmt.Sprintf("line %d", i))
			}
			Expect(tail.lines).To(HaveLen(tailSize))
			Expect(tail.String()).To(ContainSubstring("line 9"))
			Expect(tail.String()).NotTo(ContainSubstring("line 0"))
		})
		It("reports unknown error when empty", func() {
			tail := &stderrTail{}
			Expect(tail.String()).To(Equal("unknown error"))
		})
	})
})
