package archive

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/teris-io/shortid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type GcpBucket struct {
	Id        string `json:"id"`
	KeyJson   string `json:"-"`
	ProjectId string `json:"projectId"`
	Bucket    string `json:"bucket"`
	DstDir    string `json:"dstDir"`
}

func (g *GcpBucket) BucketId() string {
	return g.Id
}

func (g *GcpBucket) BucketType() BucketType {
	return GcpBucketType
}

func (g *GcpBucket) GetDstDir() string {
	return getDestinationDir(g.DstDir)
}

func (g *GcpBucket) client(ctx context.Context) (*storage.Client, error) {
	client, err := storage.NewClient(ctx, option.WithCredentialsJSON([]byte(g.KeyJson)))
	if err != nil {
		log.Errorf("failed to create gcp client: %v", err)
		return nil, err
	}
	return client, nil
}

func (g *GcpBucket) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*50)
	defer cancel()
	client, err := g.client(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	expectedHash, _ := shortid.Generate()
	fullObjectName := fmt.Sprintf("%s/ping", g.GetDstDir())
	f := strings.NewReader(expectedHash)
	wc := client.Bucket(g.Bucket).Object(fullObjectName).NewWriter(ctx)
	if _, err = io.Copy(wc, f); err != nil {
		log.Error(err)
		return err
	}
	if err := wc.Close(); err != nil {
		log.Error(err)
		return err
	}
	rc, err := client.Bucket(g.Bucket).Object(fullObjectName).NewReader(ctx)
	if err != nil {
		log.Error(err)
		return err
	}
	defer rc.Close()
	data, err := ioutil.ReadAll(rc)
	if err != nil {
		log.Error(err)
		return err
	}
	actualHash := string(data)
	if actualHash != expectedHash {
		return &BucketPingFailure{BucketId: g.Id, ActualPingHash: actualHash, ExpectedPingHash: expectedHash}
	}
	return nil
}

func (g *GcpBucket) UploadFile(path, objectName string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*50)
	defer cancel()
	client, err := g.client(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	file, err := os.Open(path)
	if err != nil {
		log.Errorf("can't open dump file: %s, err: %s", path, err)
		return err
	}
	defer file.Close()

	fullObjectName := fmt.Sprintf("%s/%s", g.GetDstDir(), objectName)
	wc := client.Bucket(g.Bucket).Object(fullObjectName).NewWriter(ctx)
	if _, err = io.Copy(wc, file); err != nil {
		log.Error(err)
		return err
	}
	if err := wc.Close(); err != nil {
		log.Error(err)
		return err
	}
	log.Infof("successfully uploaded: %s", path)
	return nil
}

func (g *GcpBucket) DownloadFile(objectName, localFile string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*50)
	defer cancel()
	client, err := g.client(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	fullObjectName := fmt.Sprintf("%s/%s", g.GetDstDir(), objectName)
	rc, err := client.Bucket(g.Bucket).Object(fullObjectName).NewReader(ctx)
	if err != nil {
		log.Error(err)
		return err
	}
	defer rc.Close()
	file, err := os.Create(localFile)
	if err != nil {
		log.Errorf("can't create dump file: %s, err: %s", localFile, err)
		return err
	}
	defer file.Close()
	if _, err := io.Copy(file, rc); err != nil {
		log.Error(err)
		return err
	}
	return nil
}

func (g *GcpBucket) ListDumps() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*50)
	defer cancel()
	client, err := g.client(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	var dumps []string
	q := &storage.Query{Prefix: g.GetDstDir()}
	it := client.Bucket(g.Bucket).Objects(ctx, q)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			log.Error(err)
			return nil, err
		}
		if name, ok := dumpObjectName(attrs.Name, g.GetDstDir()); ok {
			dumps = append(dumps, name)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dumps)))
	return dumps, nil
}

func (g *GcpBucket) Remove(objectName string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*50)
	defer cancel()
	client, err := g.client(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	fullObjectName := fmt.Sprintf("%s/%s", g.GetDstDir(), objectName)
	if err := client.Bucket(g.Bucket).Object(fullObjectName).Delete(ctx); err != nil {
		log.Error(err)
		return err
	}
	log.Infof("removed: %s", fullObjectName)
	return nil
}

func NewGcpBucket(keyJson, projectId, bucket, dstDir string) *GcpBucket {
	return &GcpBucket{
		Id:        getBucketId(GcpBucketType, projectId, bucket),
		KeyJson:   keyJson,
		ProjectId: projectId,
		Bucket:    bucket,
		DstDir:    getDestinationDir(dstDir),
	}
}
