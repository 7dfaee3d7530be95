package resolver

import (
	"fmt"
	"strings"
)

const (
	SchemeGCS = "gs"
	SchemeS3  = "s3"
)

// SourceURI is a parsed remote model location, e.g.
// gs://bucket/models/cxiu_blip_baseline. Object stores have no real
// folders, so Prefix selects every object beneath it.
type SourceURI struct {
	Scheme   string
	Bucket   string
	Prefix   string
	Original string
}

func ParseSourceURI(uri string) (*SourceURI, error) {
	var scheme string
	switch {
	case strings.HasPrefix(uri, "gs://"):
		scheme = SchemeGCS
	case strings.HasPrefix(uri, "s3://"):
		scheme = SchemeS3
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, uri)
	}

	rest := strings.TrimPrefix(uri, scheme+"://")
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return nil, fmt.Errorf("%w: %q has no bucket", ErrUnsupportedScheme, uri)
	}

	return &SourceURI{
		Scheme:   scheme,
		Bucket:   bucket,
		Prefix:   strings.Trim(prefix, "/"),
		Original: uri,
	}, nil
}

// relativePath strips the prefix from an object name, yielding the path
// of the object below the local model directory.
func (u *SourceURI) relativePath(objectName string) string {
	rel := strings.TrimPrefix(objectName, u.Prefix)
	return strings.TrimLeft(rel, "/")
}
