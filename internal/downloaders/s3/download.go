package s3

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/k1rakishou/chanfetch/internal/engine"
)

func (d *S3Downloader) Fetch(ctx context.Context, url string, rng *engine.ByteRange) (*engine.Response, error) {
	bucket, key, err := parseS3URL(url)
	if err != nil {
		return nil, err
	}
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if rng != nil {
		input.Range = aws.String(rng.Header())
	}
	result, err := d.client.GetObject(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("error getting object: %v", err)
	}

	resp := &engine.Response{
		Status:        http.StatusOK,
		ContentLength: engine.UnknownSize,
		TotalSize:     engine.UnknownSize,
		AcceptsRanges: aws.ToString(result.AcceptRanges) == "bytes",
		Body:          result.Body,
	}
	if result.ContentLength != nil {
		resp.ContentLength = *result.ContentLength
	}
	// the SDK hides the status code; a Content-Range means 206
	if result.ContentRange != nil {
		resp.Status = http.StatusPartialContent
		resp.TotalSize = engine.ParseContentRange(*result.ContentRange)
	}
	return resp, nil
}
