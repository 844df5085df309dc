package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		ref    string
		kind   Kind
		name   string
		bucket string
		key    string
	}{
		{"myfile.pdf", KindFile, "myfile.pdf", "", ""},
		{"file://books/a.pdf#page=3", KindFile, "a.pdf", "", ""},
		{"https://example.com/docs/guide.pdf", KindHTTP, "guide.pdf", "", ""},
		{"s3://library/shelf/b.pdf", KindS3, "b.pdf", "library", "shelf/b.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			r, err := Parse(tt.ref, root)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, r.Kind)
			assert.Equal(t, tt.name, r.Name())
			assert.Equal(t, tt.bucket, r.Bucket)
			assert.Equal(t, tt.key, r.Key)
		})
	}

	r, err := Parse("file://books/a.pdf", root)
	require.NoError(t, err)
	absRoot, _ := filepath.Abs(root)
	assert.Equal(t, filepath.Join(absRoot, "books", "a.pdf"), r.Path)
}

func TestParseRejects(t *testing.T) {
	root := t.TempDir()
	for _, ref := range []string{"../etc/passwd", "file:///etc/passwd", "books/../../x.pdf"} {
		_, err := Parse(ref, root)
		assert.ErrorIs(t, err, ErrOutsideRoot, ref)
	}
	for _, ref := range []string{"", "s3://bucket", "s3://bucket/", "s3:///key"} {
		_, err := Parse(ref, root)
		assert.Error(t, err, ref)
	}
}

func TestFetchAndProbeFile(t *testing.T) {
	root := t.TempDir()
	content := []byte("%PDF-1.4 local")
	require.NoError(t, os.WriteFile(filepath.Join(root, "myfile.pdf"), content, 0o644))

	f := NewFetcher(Options{
		DocRoot:     root,
		PageCounter: func(string) (int, error) { return 7, nil },
	})
	ctx := context.Background()

	doc, err := f.Fetch(ctx, "myfile.pdf")
	require.NoError(t, err)
	assert.Equal(t, content, doc.Bytes)
	assert.Equal(t, "myfile.pdf", doc.Ref.Name())

	info, err := f.Probe(ctx, "myfile.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), info.Size)
	assert.Equal(t, 7, info.Pages)

	_, err = f.Probe(ctx, "missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.Fetch(ctx, "missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchFileTooLarge(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.pdf"), bytes.Repeat([]byte("x"), 64), 0o644))
	f := NewFetcher(Options{DocRoot: root, MaxBytes: 32})
	_, err := f.Fetch(context.Background(), "big.pdf")
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestFetchHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/doc.pdf":
			body := "%PDF-1.4 remote"
			w.Header().Set("Content-Type", "application/pdf")
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
			_, _ = io.WriteString(w, body)
		case "/big.pdf":
			_, _ = w.Write(bytes.Repeat([]byte("x"), 4096))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	f := NewFetcher(Options{MaxBytes: 1024, AllowPrivate: true})

	doc, err := f.Fetch(ctx, srv.URL+"/doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 remote", string(doc.Bytes))
	assert.Equal(t, "doc.pdf", doc.Ref.Name())

	info, err := f.Probe(ctx, srv.URL+"/doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(len("%PDF-1.4 remote")), info.Size)

	_, err = f.Probe(ctx, srv.URL+"/nope.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.Fetch(ctx, srv.URL+"/big.pdf")
	assert.ErrorIs(t, err, ErrTooLarge)
}

type fakeS3 struct {
	objects map[string][]byte
}

func (s *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	b, ok := s.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(b)))}, nil
}

func (s *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := s.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	start, end := int64(0), int64(len(b)-1)
	if rng := aws.ToString(in.Range); rng != "" {
		_, _ = fmt.Sscanf(strings.TrimPrefix(rng, "bytes="), "%d-%d", &start, &end)
	}
	if end >= int64(len(b)) {
		end = int64(len(b)) - 1
	}
	part := b[start : end+1]
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(part)),
		ContentLength: aws.Int64(int64(len(part))),
		ContentRange:  aws.String(fmt.Sprintf("bytes %d-%d/%d", start, end, len(b))),
	}, nil
}

func TestFetchS3(t *testing.T) {
	ctx := context.Background()
	f := NewFetcher(Options{Buckets: []string{"library"}, S3: &fakeS3{objects: map[string][]byte{
		"library/shelf/b.pdf": []byte("%PDF-1.4 from s3"),
		"private/keys.pdf":    []byte("%PDF-1.4 secret"),
	}}})

	doc, err := f.Fetch(ctx, "s3://library/shelf/b.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 from s3", string(doc.Bytes))

	info, err := f.Probe(ctx, "s3://library/shelf/b.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(16), info.Size)

	_, err = f.Probe(ctx, "s3://library/missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.Fetch(ctx, "s3://private/keys.pdf")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.Probe(ctx, "s3://private/keys.pdf")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestFetchS3WithoutBucketsIsRefused(t *testing.T) {
	f := NewFetcher(Options{S3: &fakeS3{objects: map[string][]byte{
		"library/shelf/b.pdf": []byte("%PDF-1.4 from s3"),
	}}})
	_, err := f.Fetch(context.Background(), "s3://library/shelf/b.pdf")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestFetchHTTPRefusesInternalAddresses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "%PDF-1.4 internal")
	}))
	defer srv.Close()

	ctx := context.Background()
	f := NewFetcher(Options{Timeout: 2 * time.Second})
	for _, ref := range []string{
		srv.URL + "/doc.pdf",
		"http://169.254.169.254/latest/meta-data/",
		"http://10.0.0.1/doc.pdf",
		"http://[::1]:9/doc.pdf",
	} {
		_, err := f.Fetch(ctx, ref)
		assert.ErrorIs(t, err, ErrForbidden, ref)
		_, err = f.Probe(ctx, ref)
		assert.ErrorIs(t, err, ErrForbidden, ref)
	}
}

func TestFetchHTTPHostAllowlist(t *testing.T) {
	var target string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/doc.pdf":
			_, _ = io.WriteString(w, "%PDF-1.4 allowed")
		case "/elsewhere":
			http.Redirect(w, r, target, http.StatusFound)
		}
	}))
	defer srv.Close()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	target = "http://localhost:" + u.Port() + "/doc.pdf"

	ctx := context.Background()
	f := NewFetcher(Options{AllowPrivate: true, AllowedHosts: []string{"127.0.0.1", ".docs.example.com"}})

	doc, err := f.Fetch(ctx, srv.URL+"/doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 allowed", string(doc.Bytes))

	_, err = f.Fetch(ctx, target)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.Fetch(ctx, srv.URL+"/elsewhere")
	assert.ErrorIs(t, err, ErrForbidden, "redirects are held to the allowlist")
}

func TestHostAllowed(t *testing.T) {
	allowed := []string{"files.example.org", ".docs.example.com"}
	tests := []struct {
		raw  string
		want bool
	}{
		{"https://files.example.org/a.pdf", true},
		{"https://FILES.example.org:8443/a.pdf", true},
		{"https://docs.example.com/a.pdf", true},
		{"https://eu.docs.example.com/a.pdf", true},
		{"https://evildocs.example.com/a.pdf", false},
		{"https://example.org/a.pdf", false},
	}
	for _, tt := range tests {
		u, err := url.Parse(tt.raw)
		require.NoError(t, err)
		assert.Equal(t, tt.want, hostAllowed(u, allowed), tt.raw)
	}
	u, _ := url.Parse("https://anything.test/")
	assert.True(t, hostAllowed(u, nil))
}

func TestPublicAddr(t *testing.T) {
	for _, s := range []string{"127.0.0.1", "10.1.2.3", "172.16.0.1", "192.168.1.1", "169.254.169.254", "100.64.0.1", "0.0.0.0", "::1", "fe80::1", "fd00::1", "::ffff:10.0.0.1"} {
		assert.False(t, publicAddr(netip.MustParseAddr(s)), s)
	}
	for _, s := range []string{"93.184.216.34", "8.8.8.8", "2606:4700::1111"} {
		assert.True(t, publicAddr(netip.MustParseAddr(s)), s)
	}
}
