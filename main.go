package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Jakub-Wilk/postgres-manager/pkg/apiserver"
	"github.com/Jakub-Wilk/postgres-manager/pkg/archive"
	"github.com/Jakub-Wilk/postgres-manager/pkg/config"
	"github.com/Jakub-Wilk/postgres-manager/pkg/k8s"
	"github.com/Jakub-Wilk/postgres-manager/pkg/pg"
	"github.com/briandowns/spinner"
	"github.com/manifoldco/promptui"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type param struct {
	name      string
	shorthand string
	value     interface{}
	usage     string
}

var (
	BuildVersion string

	rootParams = []param{
		{name: "verbose", shorthand: "v", value: false, usage: "--verbose=true|false"},
		{name: "json-log", shorthand: "", value: false, usage: "log in json format"},
		{name: "config", shorthand: "c", value: "config.toml", usage: "path to the connections config file"},
		{name: "auto-discovery", shorthand: "", value: false, usage: "discover pg connections from labeled K8s secrets"},
		{name: "ns-whitelist", shorthand: "", value: "*", usage: "when auto-discovery is true, namespaces to scan, by default all"},
		{name: "dumpdir", shorthand: "", value: "/tmp", usage: "dump directory for auto-discovered connections"},
		{name: "kubeconfig", shorthand: "", value: k8s.KubeconfigDefaultLocation(), usage: "absolute path to the kubeconfig file"},
	}
	startParams = []param{
		{name: "bind-addr", shorthand: "", value: ":8081", usage: "the address to bind the web console to"},
	}
	dumpParams = []param{
		{name: "name", shorthand: "n", value: "", usage: "dump name, generated from dbname and timestamp when empty"},
	}
	restoreParams = []param{
		{name: "file", shorthand: "f", value: "", usage: "dump file to restore, interactive select when empty"},
		{name: "clean", shorthand: "", value: false, usage: "drop all public schema tables before restoring"},
	}
)

var selectDumpTemplate = &promptui.SelectTemplates{
	Label:    "{{ . }}?",
	Active:   "> {{ . | cyan }}",
	Inactive: "  {{ . | faint }}",
	Selected: "> {{ . | cyan }}",
}

var confirmTemplate = &promptui.SelectTemplates{
	Label:    `{{ . }}?`,
	Active:   `> {{ . | red}}`,
	Inactive: `  {{ . | faint}} `,
	Selected: `> {{ . | red }}`,
}

var rootCmd = &cobra.Command{
	Use:   "postgres-manager",
	Short: "postgres-manager - web console for dumping and restoring PostgreSQL databases",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print postgres-manager version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("version: %s\n", BuildVersion)
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the web console",
	Run: func(cmd *cobra.Command, args []string) {
		connections, bucket := loadConnections()
		if len(connections) == 0 {
			log.Warn("no database connections found in config.toml")
			printConfigHelp()
		}
		log.Infof("loaded %d database connections", len(connections))
		for name := range connections {
			log.Infof("  - %s", name)
		}
		apiserver.RunApi(viper.GetString("bind-addr"), connections, bucket)
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump connection",
	Short: "Dump a configured database from the cli",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		conn := mustConnection(args[0])
		dumpName := viper.GetString("name")
		if dumpName == "" {
			dumpName = pg.GenerateDumpName(conn)
		}
		job, err := pg.NewJob(pg.DumpJob, conn, pg.EnsureDumpExt(dumpName))
		if err != nil {
			log.Fatal(err)
		}
		if runWithSpinner(job, func() error { return pg.RunDump(job, conn) }) != nil {
			os.Exit(1)
		}
		fmt.Printf("dump completed: %s\n", conn.DumpfilePath(job.Dumpfile))
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore connection",
	Short: "Restore a configured database from a dump file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		conn := mustConnection(args[0])
		dumpfile := viper.GetString("file")
		if dumpfile == "" {
			dumps := pg.ListDumps(conn)
			if len(dumps) == 0 {
				log.Fatalf("no dump files found in %s", conn.ExpandedDumpDir())
			}
			dumpSelect := promptui.Select{
				Label:     "Select dump file to restore",
				Items:     dumps,
				Size:      10,
				Templates: selectDumpTemplate,
			}
			idx, _, err := dumpSelect.Run()
			if err != nil {
				log.Fatal(err)
			}
			dumpfile = dumps[idx]
		}
		clean := viper.GetBool("clean")
		if clean && !confirmClean(conn) {
			log.Info("restore cancelled")
			return
		}
		job, err := pg.NewJob(pg.RestoreJob, conn, dumpfile)
		if err != nil {
			log.Fatal(err)
		}
		if runWithSpinner(job, func() error { return pg.RunRestore(job, conn, clean) }) != nil {
			os.Exit(1)
		}
		fmt.Printf("restore completed from %s\n", dumpfile)
	},
}

var listCmd = &cobra.Command{
	Use:   "list connection",
	Short: "List dump files of a configured connection",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		conn := mustConnection(args[0])
		for _, dump := range pg.ListDumps(conn) {
			fmt.Println(dump)
		}
	},
}

func confirmClean(conn *pg.Connection) bool {
	confirm := promptui.Select{
		Label:     fmt.Sprintf("Dropping all public tables in %s, are you sure", conn.DbName),
		Items:     []string{"No", "Yes"},
		Templates: confirmTemplate,
	}
	_, answer, err := confirm.Run()
	if err != nil {
		log.Error(err)
		return false
	}
	return answer == "Yes"
}

// runWithSpinner drives the job in the background while mirroring its
// progress label onto a terminal spinner.
func runWithSpinner(job *pg.Job, run func() error) error {
	done := make(chan error, 1)
	go func() { done <- run() }()

	s := spinner.New(spinner.CharSets[9], 100*time.Millisecond)
	s.Start()
	defer s.Stop()
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			return err
		case <-ticker.C:
			progress := job.Snapshot().Progress
			s.Lock()
			s.Suffix = " " + progress
			s.Unlock()
		}
	}
}

func mustConnection(name string) *pg.Connection {
	connections, _ := loadConnections()
	conn, ok := connections[name]
	if !ok {
		log.Fatalf("unknown connection: %s, configured connections: %s", name, strings.Join(connectionNames(connections), ", "))
	}
	return conn
}

func connectionNames(connections map[string]*pg.Connection) []string {
	var names []string
	for name := range connections {
		names = append(names, name)
	}
	return names
}

func loadConnections() (map[string]*pg.Connection, archive.Bucket) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		log.Warnf("%s", err)
	}
	connections := cfg.Connections
	if viper.GetBool("auto-discovery") {
		for name, conn := range k8s.DiscoverConnections(viper.GetString("ns-whitelist"), viper.GetString("dumpdir")) {
			connections[name] = conn
		}
	}
	var bucket archive.Bucket
	if cfg.Archive != nil {
		if bucket, err = archive.NewBucket(cfg.Archive); err != nil {
			log.Errorf("error building archive bucket, err: %s", err)
		} else if err = bucket.Ping(); err != nil {
			log.Errorf("archive bucket %s is unreachable, disabling archive, err: %s", bucket.BucketId(), err)
			bucket = nil
		}
	}
	return connections, bucket
}

func printConfigHelp() {
	fmt.Println(`add connections to config.toml in the format:

[connections.connection_name]
host = "localhost"
port = 5432
dbname = "database_name"
user = "username"
password = "password"
dump_dir = "/path/to/dump/directory"`)
}

func setParams(params []param, command *cobra.Command) {
	for _, param := range params {
		switch v := param.value.(type) {
		case int:
			command.PersistentFlags().IntP(param.name, param.shorthand, v, param.usage)
		case string:
			command.PersistentFlags().StringP(param.name, param.shorthand, v, param.usage)
		case bool:
			command.PersistentFlags().BoolP(param.name, param.shorthand, v, param.usage)
		}
		if err := viper.BindPFlag(param.name, command.PersistentFlags().Lookup(param.name)); err != nil {
			panic(err)
		}
	}
}

func setupCommands() {
	viper.AutomaticEnv()
	viper.SetEnvPrefix("PGMANAGER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	setParams(rootParams, rootCmd)
	setParams(startParams, startCmd)
	setParams(dumpParams, dumpCmd)
	setParams(restoreParams, restoreCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(versionCmd)
}

func setupLogging() {

	// Set log verbosity
	if viper.GetBool("verbose") {
		log.SetLevel(log.DebugLevel)
		log.SetReportCaller(true)
	} else {
		log.SetLevel(log.InfoLevel)
		log.SetReportCaller(false)
	}
	// Set log format
	if viper.GetBool("json-log") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	// Logs always go to STDOUT
	log.SetOutput(os.Stdout)
}

func main() {
	setupCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
