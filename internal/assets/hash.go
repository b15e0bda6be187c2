package assets

import (
	"github.com/minio/crc64nvme"
	"github.com/mr-tron/base58"
)

// contentHash returns a short, filename safe digest of data.
func contentHash(data []byte) string {
	h := crc64nvme.New()
	h.Write(data)
	return base58.Encode(h.Sum(nil))
}
