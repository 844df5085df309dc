package statuscheck

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type buckets struct{ known string }

func (b buckets) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if aws.ToString(in.Bucket) != b.known {
		return nil, errors.New("forbidden")
	}
	return &s3.HeadBucketOutput{}, nil
}

func TestSummaryAllHealthy(t *testing.T) {
	c := New(Options{
		Redis:    pinger{},
		S3Bucket: "library",
		S3:       buckets{known: "library"},
		Renderer: func(context.Context) error { return nil },
	})
	s := c.Summary(context.Background())
	assert.True(t, s.Healthy())
	assert.Equal(t, "Connected", s.Redis.Message)
	assert.Equal(t, "Available", s.MuPDF.Message)
}

func TestSummaryOptionalDepsDisabled(t *testing.T) {
	c := New(Options{Renderer: func(context.Context) error { return nil }})
	s := c.Summary(context.Background())
	assert.True(t, s.Healthy())
	assert.Equal(t, "Disabled", s.Redis.Message)
	assert.Equal(t, "Bucket not configured", s.S3.Message)
}

func TestSummaryFailures(t *testing.T) {
	c := New(Options{
		Redis:    pinger{err: errors.New("connection refused")},
		S3Bucket: "other",
		S3:       buckets{known: "library"},
		Renderer: func(context.Context) error { return errors.New(strings.Repeat("x", 200)) },
	})
	s := c.Summary(context.Background())
	assert.False(t, s.Healthy())
	assert.False(t, s.Redis.OK)
	assert.Equal(t, "forbidden", s.S3.Message)
	assert.Len(t, s.MuPDF.Message, 120)
}
