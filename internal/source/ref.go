// Package source resolves document references (local paths, file://,
// http(s):// and s3:// URLs) and fetches their bytes.
package source

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrOutsideRoot = errors.New("path escapes the document root")
	ErrTooLarge    = errors.New("document exceeds the size limit")
)

// Kind is the transport a reference resolves to.
type Kind string

const (
	KindFile Kind = "file"
	KindHTTP Kind = "http"
	KindS3   Kind = "s3"
)

// Ref is a parsed document reference.
type Ref struct {
	Raw    string
	Kind   Kind
	Path   string // KindFile: absolute local path
	URL    string // KindHTTP
	Bucket string // KindS3
	Key    string // KindS3
}

// Name is a display name for the document.
func (r Ref) Name() string {
	switch r.Kind {
	case KindFile:
		return filepath.Base(r.Path)
	case KindS3:
		return path.Base(r.Key)
	case KindHTTP:
		if u, err := url.Parse(r.URL); err == nil && u.Path != "" && u.Path != "/" {
			return path.Base(u.Path)
		}
		return r.URL
	}
	return r.Raw
}

func (r Ref) String() string { return r.Raw }

// Parse classifies ref. Local paths are resolved against root; when root is
// set, paths outside it are rejected. A trailing #fragment is ignored.
func Parse(ref, root string) (Ref, error) {
	raw := strings.TrimSpace(ref)
	if i := strings.Index(raw, "#"); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return Ref{}, fmt.Errorf("empty document reference")
	}
	r := Ref{Raw: raw}

	switch {
	case strings.HasPrefix(raw, "s3://"):
		p := strings.TrimPrefix(raw, "s3://")
		slash := strings.Index(p, "/")
		if slash <= 0 || slash == len(p)-1 {
			return Ref{}, fmt.Errorf("invalid s3 url: %s", raw)
		}
		r.Kind, r.Bucket, r.Key = KindS3, p[:slash], p[slash+1:]
	case strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://"):
		if _, err := url.Parse(raw); err != nil {
			return Ref{}, fmt.Errorf("invalid url %s: %w", raw, err)
		}
		r.Kind, r.URL = KindHTTP, raw
	default:
		p, err := localPath(strings.TrimPrefix(raw, "file://"), root)
		if err != nil {
			return Ref{}, err
		}
		r.Kind, r.Path = KindFile, p
	}
	return r, nil
}

func localPath(p, root string) (string, error) {
	if root == "" {
		return filepath.Abs(p)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("document root: %w", err)
	}
	full := filepath.Clean(p)
	if !filepath.IsAbs(full) {
		full = filepath.Join(absRoot, full)
	}
	rel, err := filepath.Rel(absRoot, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", p, ErrOutsideRoot)
	}
	return full, nil
}
