package port

import "context"

// ObjectStorage abstracts cloud object storage reads for stored document text.
type ObjectStorage interface {
	Download(ctx context.Context, bucket, key string) ([]byte, error)
}
