package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"

	"github.com/local/flipbook/internal/pdfdoc"
)

// S3API is the subset of the S3 client used for documents.
type S3API interface {
	manager.DownloadAPIClient
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Options configures a Fetcher.
type Options struct {
	DocRoot  string
	MaxBytes int64
	Timeout  time.Duration

	HTTPClient *http.Client

	// S3 is used as is when set; otherwise a client is built on first use
	// from the default AWS chain, with static keys when both are given.
	S3        S3API
	Region    string
	AccessKey string
	SecretKey string

	// AllowedHosts limits http(s) references to these hosts; ".example.com"
	// also admits subdomains. Empty admits any host.
	AllowedHosts []string
	// AllowPrivate lets http(s) fetches reach loopback, private and
	// link-local addresses. It has no effect with a custom HTTPClient.
	AllowPrivate bool
	// Buckets are the only buckets s3 references may name. Empty refuses
	// every s3 reference.
	Buckets []string

	// PageCounter counts pages of a local file during Probe.
	PageCounter func(path string) (int, error)
}

// Document is a fetched document.
type Document struct {
	Ref   Ref
	Bytes []byte
}

// Info is what Probe learned about a reference without fetching it.
type Info struct {
	Ref   Ref
	Size  int64 // -1 when unknown
	Pages int   // 0 when not counted
}

// Fetcher reads documents from every supported transport.
type Fetcher struct {
	opts Options

	s3Once sync.Once
	s3     S3API
	s3Err  error
}

func NewFetcher(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = newHTTPClient(opts)
	}
	if opts.PageCounter == nil {
		opts.PageCounter = pdfdoc.PageCountFile
	}
	return &Fetcher{opts: opts, s3: opts.S3}
}

// Parse resolves ref against the fetcher's document root.
func (f *Fetcher) Parse(ref string) (Ref, error) {
	return Parse(ref, f.opts.DocRoot)
}

// Fetch reads the whole document behind ref.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (*Document, error) {
	r, err := f.Parse(ref)
	if err != nil {
		return nil, err
	}
	if err := f.allowed(r); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	var b []byte
	switch r.Kind {
	case KindFile:
		b, err = f.readFile(r.Path)
	case KindHTTP:
		b, err = f.getHTTP(ctx, r.URL)
	case KindS3:
		b, err = f.getS3(ctx, r.Bucket, r.Key)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", r.Raw, err)
	}
	log.Info().Str("ref", r.Raw).Str("kind", string(r.Kind)).Int("bytes", len(b)).Msg("fetched document")
	return &Document{Ref: r, Bytes: b}, nil
}

// Probe checks that ref exists without downloading it. Local files also get
// their pages counted.
func (f *Fetcher) Probe(ctx context.Context, ref string) (*Info, error) {
	r, err := f.Parse(ref)
	if err != nil {
		return nil, err
	}
	if err := f.allowed(r); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	info := &Info{Ref: r, Size: -1}
	switch r.Kind {
	case KindFile:
		st, err := os.Stat(r.Path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%s: %w", r.Raw, ErrNotFound)
			}
			return nil, err
		}
		info.Size = st.Size()
		if n, err := f.opts.PageCounter(r.Path); err != nil {
			log.Debug().Err(err).Str("path", r.Path).Msg("page count failed")
		} else {
			info.Pages = n
		}
	case KindHTTP:
		info.Size, err = f.headHTTP(ctx, r.URL)
	case KindS3:
		info.Size, err = f.headS3(ctx, r.Bucket, r.Key)
	}
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", r.Raw, err)
	}
	return info, nil
}

func (f *Fetcher) tooLarge(n int64) bool {
	return f.opts.MaxBytes > 0 && n > f.opts.MaxBytes
}

func (f *Fetcher) readFile(p string) ([]byte, error) {
	st, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if f.tooLarge(st.Size()) {
		return nil, ErrTooLarge
	}
	return os.ReadFile(p)
}

func (f *Fetcher) getHTTP(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := statusErr(resp.StatusCode); err != nil {
		return nil, err
	}
	if f.tooLarge(resp.ContentLength) {
		return nil, ErrTooLarge
	}
	body := io.Reader(resp.Body)
	if f.opts.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.opts.MaxBytes+1)
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if f.tooLarge(int64(len(b))) {
		return nil, ErrTooLarge
	}
	return b, nil
}

func (f *Fetcher) headHTTP(ctx context.Context, u string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return 0, err
	}
	resp, err := f.opts.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	// servers that refuse HEAD are given the benefit of the doubt
	if resp.StatusCode == http.StatusMethodNotAllowed {
		return -1, nil
	}
	if err := statusErr(resp.StatusCode); err != nil {
		return 0, err
	}
	return resp.ContentLength, nil
}

func statusErr(code int) error {
	switch {
	case code == http.StatusNotFound || code == http.StatusGone:
		return ErrNotFound
	case code < 200 || code > 299:
		return fmt.Errorf("http %d", code)
	}
	return nil
}

func (f *Fetcher) s3Client(ctx context.Context) (S3API, error) {
	f.s3Once.Do(func() {
		if f.s3 != nil {
			return
		}
		var opts []func(*awscfg.LoadOptions) error
		if f.opts.Region != "" {
			opts = append(opts, awscfg.WithRegion(f.opts.Region))
		}
		if f.opts.AccessKey != "" && f.opts.SecretKey != "" {
			opts = append(opts, awscfg.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(f.opts.AccessKey, f.opts.SecretKey, "")))
		}
		cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			f.s3Err = fmt.Errorf("failed to load AWS config: %w", err)
			return
		}
		f.s3 = s3.NewFromConfig(cfg)
	})
	return f.s3, f.s3Err
}

func (f *Fetcher) headS3(ctx context.Context, bucket, key string) (int64, error) {
	cli, err := f.s3Client(ctx)
	if err != nil {
		return 0, err
	}
	out, err := cli.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return 0, s3Err(err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

func (f *Fetcher) getS3(ctx context.Context, bucket, key string) ([]byte, error) {
	size, err := f.headS3(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	if f.tooLarge(size) {
		return nil, ErrTooLarge
	}
	cli, _ := f.s3Client(ctx)
	buf := manager.NewWriteAtBuffer(make([]byte, 0, size))
	dl := manager.NewDownloader(cli)
	n, err := dl.Download(ctx, buf, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, s3Err(err)
	}
	log.Debug().Str("bucket", bucket).Str("key", key).Int64("bytes", n).Msg("downloaded s3 document")
	return buf.Bytes()[:n], nil
}

func s3Err(err error) error {
	var nf *s3types.NotFound
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
