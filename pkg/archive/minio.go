package archive

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/teris-io/shortid"
)

// MinioBucket talks to any S3 compatible endpoint, AWS included.
type MinioBucket struct {
	Id        string `json:"id"`
	Endpoint  string `json:"endpoint"`
	Region    string `json:"region"`
	AccessKey string `json:"accessKey"`
	SecretKey string `json:"secretKey"`
	UseSSL    bool   `json:"useSSL"`
	Bucket    string `json:"bucket"`
	DstDir    string `json:"dstDir"`
}

func (m *MinioBucket) BucketId() string {
	return m.Id
}

func (m *MinioBucket) BucketType() BucketType {
	if m.Endpoint == "s3.amazonaws.com" {
		return AwsBucketType
	}
	return MinioBucketType
}

func (m *MinioBucket) GetDstDir() string {
	return getDestinationDir(m.DstDir)
}

func (m *MinioBucket) UploadFile(path, objectName string) error {
	file, err := os.Open(path)
	if err != nil {
		log.Errorf("can't open dump file: %s, err: %s", path, err)
		return err
	}
	defer file.Close()
	fileStat, err := file.Stat()
	if err != nil {
		log.Errorf("can't stat dump file: %s, err: %s", path, err)
		return err
	}
	mc := getMinioClient(m)
	fullObjectName := fmt.Sprintf("%s/%s", m.GetDstDir(), objectName)
	uploadInfo, err := mc.PutObject(context.Background(), m.Bucket, fullObjectName, file, fileStat.Size(), minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		log.Error(err)
		return err
	}
	log.Infof("successfully uploaded DB dump: %s, size: %d", path, uploadInfo.Size)
	return nil
}

func (m *MinioBucket) DownloadFile(objectName, localFile string) error {
	log.Infof("downloading %s into %s", objectName, localFile)
	mc := getMinioClient(m)
	fullObjectName := fmt.Sprintf("%s/%s", m.GetDstDir(), objectName)
	stream, err := mc.GetObject(context.Background(), m.Bucket, fullObjectName, minio.GetObjectOptions{})
	if err != nil {
		log.Error(err)
		return err
	}
	file, err := os.Create(localFile)
	if err != nil {
		log.Errorf("can't create dump file: %s, err: %s", localFile, err)
		return err
	}
	defer file.Close()
	if _, err := io.Copy(file, stream); err != nil {
		log.Error(err)
		return err
	}
	return nil
}

func (m *MinioBucket) ListDumps() ([]string, error) {
	var dumps []string
	mc := getMinioClient(m)
	lo := minio.ListObjectsOptions{Prefix: m.GetDstDir(), Recursive: true}
	objectCh := mc.ListObjects(context.Background(), m.Bucket, lo)
	for object := range objectCh {
		if object.Err != nil {
			log.Errorf("error listing dumps in: %s, err: %s", m.Id, object.Err)
			return nil, object.Err
		}
		if name, ok := dumpObjectName(object.Key, m.GetDstDir()); ok {
			dumps = append(dumps, name)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dumps)))
	return dumps, nil
}

func (m *MinioBucket) Remove(objectName string) error {
	mc := getMinioClient(m)
	fullObjectName := fmt.Sprintf("%s/%s", m.GetDstDir(), objectName)
	opts := minio.RemoveObjectOptions{GovernanceBypass: false}
	if err := mc.RemoveObject(context.Background(), m.Bucket, fullObjectName, opts); err != nil {
		log.Error(err)
		return err
	}
	log.Infof("removed: %s", fullObjectName)
	return nil
}

func (m *MinioBucket) Ping() error {
	expectedHash, _ := shortid.Generate()
	mc := getMinioClient(m)
	objectName := fmt.Sprintf("%s/ping", m.GetDstDir())
	f := strings.NewReader(expectedHash)
	po := minio.PutObjectOptions{ContentType: "application/octet-stream"}
	if _, err := mc.PutObject(context.Background(), m.Bucket, objectName, f, f.Size(), po); err != nil {
		log.Errorf("ping failed, err: %s", err)
		return err
	}
	stream, err := mc.GetObject(context.Background(), m.Bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		log.Errorf("ping failed, err: %s", err)
		return err
	}
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(stream); err != nil {
		log.Errorf("ping failed, err: %s", err)
		return err
	}
	actualHash := buf.String()
	if actualHash != expectedHash {
		return &BucketPingFailure{BucketId: m.Id, ActualPingHash: actualHash, ExpectedPingHash: expectedHash}
	}
	return nil
}

func getMinioClient(mb *MinioBucket) *minio.Client {
	if mb.Endpoint == "s3.amazonaws.com" && mb.AccessKey == "" && mb.SecretKey == "" {
		iam := credentials.NewIAM("")
		connOptions := &minio.Options{Creds: iam, Secure: mb.UseSSL, Region: mb.Region}
		mc, err := minio.New(mb.Endpoint, connOptions)
		if err != nil {
			log.Fatal(err)
		}
		return mc
	}
	tlsConfig := &tls.Config{InsecureSkipVerify: true}
	var transport http.RoundTripper = &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       tlsConfig,
		DisableCompression:    true,
	}
	connOptions := &minio.Options{Creds: credentials.NewStaticV4(mb.AccessKey, mb.SecretKey, ""), Secure: mb.UseSSL, Transport: transport}
	mc, err := minio.New(mb.Endpoint, connOptions)
	if err != nil {
		log.Fatal(err)
	}
	return mc
}

func NewMinioBucket(endpoint, region, accessKey, secretKey, bucket, dstDir string) *MinioBucket {
	useSSL := strings.HasPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")

	return &MinioBucket{
		Id:        getBucketId(MinioBucketType, endpoint, bucket),
		Endpoint:  endpoint,
		Region:    region,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    useSSL,
		Bucket:    bucket,
		DstDir:    getDestinationDir(dstDir),
	}
}

func NewAwsBucket(region, accessKey, secretKey, bucket, dstDir string) *MinioBucket {
	endpoint := "s3.amazonaws.com"
	return &MinioBucket{
		Id:        getBucketId(AwsBucketType, endpoint, bucket),
		Endpoint:  endpoint,
		Region:    region,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    true,
		Bucket:    bucket,
		DstDir:    getDestinationDir(dstDir),
	}
}

func NewAwsIamBucket(region, bucket, dstDir string) *MinioBucket {
	endpoint := "s3.amazonaws.com"
	return &MinioBucket{
		Id:        getBucketId(AwsBucketType, endpoint, bucket),
		Endpoint:  endpoint,
		Region:    region,
		UseSSL:    true,
		Bucket:    bucket,
		DstDir:    getDestinationDir(dstDir),
	}
}
