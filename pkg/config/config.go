package config

import (
	"fmt"

	"github.com/Jakub-Wilk/postgres-manager/pkg/archive"
	"github.com/Jakub-Wilk/postgres-manager/pkg/pg"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var log = logrus.WithField("module", "config")

// Config is the parsed config.toml: the connection set plus an optional
// offsite archive bucket.
type Config struct {
	Connections map[string]*pg.Connection
	Archive     *archive.Settings
}

// Load reads config.toml. A missing file yields an empty connection set and
// an error the caller may downgrade to a warning, the console still runs.
func Load(path string) (*Config, error) {
	cfg := &Config{Connections: map[string]*pg.Connection{}}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("error loading config: %w", err)
	}

	for name := range v.GetStringMap("connections") {
		sub := v.Sub(fmt.Sprintf("connections.%s", name))
		if sub == nil {
			continue
		}
		conn := connectionFromViper(name, sub)
		if err := validateConnection(name, conn); err != nil {
			log.Errorf("skipping connection %s, err: %s", name, err)
			continue
		}
		cfg.Connections[name] = conn
	}

	if v.IsSet("archive") {
		settings, err := archiveFromViper(v.Sub("archive"))
		if err != nil {
			log.Errorf("skipping archive configuration, err: %s", err)
		} else {
			cfg.Archive = settings
		}
	}

	return cfg, nil
}

func connectionFromViper(name string, v *viper.Viper) *pg.Connection {
	v.SetDefault("host", "localhost")
	v.SetDefault("port", 5432)
	v.SetDefault("user", "postgres")
	v.SetDefault("dump_dir", ".")
	return &pg.Connection{
		Name:     name,
		Host:     v.GetString("host"),
		Port:     v.GetInt("port"),
		DbName:   v.GetString("dbname"),
		User:     v.GetString("user"),
		Password: v.GetString("password"),
		DumpDir:  v.GetString("dump_dir"),
	}
}

func archiveFromViper(v *viper.Viper) (*archive.Settings, error) {
	if v == nil {
		return nil, &RequiredKeyIsMissing{ObjectName: "archive", Key: "type"}
	}
	settings := &archive.Settings{
		Type:        archive.BucketType(v.GetString("type")),
		Endpoint:    v.GetString("endpoint"),
		Region:      v.GetString("region"),
		AccessKey:   v.GetString("access_key"),
		SecretKey:   v.GetString("secret_key"),
		Bucket:      v.GetString("bucket"),
		DstDir:      v.GetString("dst_dir"),
		AccountName: v.GetString("account_name"),
		AccountKey:  v.GetString("account_key"),
		KeyJson:     v.GetString("key_json"),
		ProjectId:   v.GetString("project_id"),
	}
	if err := validateArchive(settings); err != nil {
		return nil, err
	}
	return settings, nil
}
