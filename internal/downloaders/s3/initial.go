package s3

import (
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/k1rakishou/chanfetch/internal/engine"
	"github.com/k1rakishou/chanfetch/internal/utils"
	"github.com/rs/zerolog"
)

// S3Downloader serves media mirrored into a bucket by board archivers.
type S3Downloader struct {
	client ObjectAPI
	log    zerolog.Logger
}

func New(client ObjectAPI) *S3Downloader {
	return &S3Downloader{client: client, log: utils.GetLogger("s3")}
}

// Resolve reads object metadata. S3 always honours ranges and reports exact
// sizes.
func (d *S3Downloader) Resolve(ctx context.Context, url string) (engine.SiteInfo, error) {
	info := engine.SiteInfo{Size: engine.UnknownSize}
	bucket, key, err := parseS3URL(url)
	if err != nil {
		return info, err
	}
	headObj, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return info, fmt.Errorf("error getting S3 object info: %v", err)
	}
	info.FileName = path.Base(key)
	info.Capabilities.SupportsByteRanges = true
	if headObj.ContentLength != nil {
		info.Size = *headObj.ContentLength
		info.Capabilities.ReportsAccurateContentLength = true
	}
	d.log.Debug().Str("bucket", bucket).Str("key", key).Int64("size", info.Size).Msg("Resolved S3 object")
	return info, nil
}
