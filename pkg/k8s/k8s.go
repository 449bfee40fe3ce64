package k8s

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Jakub-Wilk/postgres-manager/pkg/pg"
	"github.com/go-logr/zapr"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	v1core "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// ConnectionLabel marks secrets holding PostgreSQL credentials the console
// should pick up when auto-discovery is enabled.
const ConnectionLabel = "postgres-manager/connection"

var (
	log        = logrus.WithField("module", "k8s")
	k8sClient  client.Client
	clientOnce sync.Once
)

func Client() client.Client {
	clientOnce.Do(func() {
		zl, err := zap.NewProduction()
		if err != nil {
			log.Fatal(err)
		}
		ctrl.SetLogger(zapr.NewLogger(zl))

		scheme := runtime.NewScheme()
		if err := v1core.AddToScheme(scheme); err != nil {
			log.Fatal(err)
		}
		controllerClient, err := client.New(restConfig(), client.Options{Scheme: scheme})
		if err != nil {
			log.Fatal(err)
		}
		k8sClient = controllerClient
	})
	return k8sClient
}

// restConfig prefers the configured kubeconfig file, falling back to the
// in-cluster config when the file does not exist.
func restConfig() *rest.Config {
	kubeconfig := viper.GetString("kubeconfig")
	if _, err := os.Stat(kubeconfig); err == nil {
		config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			log.Fatal(err)
		}
		return config
	}
	return ctrl.GetConfigOrDie()
}

func KubeconfigDefaultLocation() string {
	kubeconfigDefaultLocation := ""
	if home := homedir.HomeDir(); home != "" {
		kubeconfigDefaultLocation = filepath.Join(home, ".kube", "config")
	}
	return kubeconfigDefaultLocation
}

// DiscoverConnections scans labeled secrets cluster-wide and builds
// connections out of them. The whitelist is "*" or a namespace list.
func DiscoverConnections(nsWhitelist, dumpDir string) map[string]*pg.Connection {
	connections := map[string]*pg.Connection{}

	l := v1core.SecretList{}
	opts := []client.ListOption{client.MatchingLabels{ConnectionLabel: "true"}}
	if err := Client().List(context.Background(), &l, opts...); err != nil {
		log.Errorf("failed to list connection secrets, err: %v", err)
		return connections
	}

	for i := range l.Items {
		secret := &l.Items[i]
		if !namespaceAllowed(nsWhitelist, secret.Namespace) {
			log.Warnf("skipping secret %s/%s, namespace not whitelisted", secret.Namespace, secret.Name)
			continue
		}
		if err := validateConnectionSecret(secret.Name, secret.Data); err != nil {
			log.Errorf("connection secret invalid, err: %s", err)
			continue
		}
		conn := connectionFromSecret(secret, dumpDir)
		connections[conn.Name] = conn
		log.Infof("discovered connection: %s (%s/%s)", conn.Name, secret.Namespace, secret.Name)
	}
	return connections
}

func namespaceAllowed(nsWhitelist, ns string) bool {
	return nsWhitelist == "*" || strings.Contains(nsWhitelist, ns)
}

func connectionFromSecret(secret *v1core.Secret, dumpDir string) *pg.Connection {
	return &pg.Connection{
		Name:     secret.Namespace + "/" + secret.Name,
		Host:     string(secret.Data["POSTGRES_HOST"]),
		Port:     5432,
		DbName:   string(secret.Data["POSTGRES_DB"]),
		User:     string(secret.Data["POSTGRES_USER"]),
		Password: string(secret.Data["POSTGRES_PASSWORD"]),
		DumpDir:  dumpDir,
	}
}

func validateConnectionSecret(secretName string, data map[string][]byte) error {
	if data == nil {
		return &RequiredKeyIsMissing{Key: "ALL_KEYS_ARE_MISSING", ObjectName: secretName}
	}
	for _, key := range []string{"POSTGRES_HOST", "POSTGRES_DB", "POSTGRES_USER", "POSTGRES_PASSWORD"} {
		if _, ok := data[key]; !ok {
			return &RequiredKeyIsMissing{Key: key, ObjectName: secretName}
		}
	}
	return nil
}
