package archive

import "fmt"

type UnsupportedBucketError struct {
	Type string `json:"type"`
}

func (e *UnsupportedBucketError) Error() string {
	return fmt.Sprintf("unsupported bucket type: %s, must be one of minio|aws|azure|gcp", e.Type)
}

type BucketPingFailure struct {
	BucketId         string `json:"bucketId"`
	ActualPingHash   string `json:"actualPingHash"`
	ExpectedPingHash string `json:"expectedPingHash"`
}

func (e *BucketPingFailure) Error() string {
	return fmt.Sprintf("ping failure [%s]: hashes are not equal: [ %s != %s ]", e.BucketId, e.ActualPingHash, e.ExpectedPingHash)
}
