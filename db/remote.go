// Feed locations: local files, HTTP and S3, with optional xz compression.
package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/LordWolfenstein/databass/op"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	log "github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"
)

var errReadOnlyLocation = errors.New("HTTP feed locations are read-only")

// S3Config overrides the ambient AWS configuration for s3:// locations.
type S3Config struct {
	AccessKey string
	SecretKey string
	Region    string
	Endpoint  string // S3-compatible endpoint, addressed path-style
}

type locationKind int

const (
	localLocation locationKind = iota
	httpLocation
	s3Location
)

// Location is where a feed is read from or written to.
type Location struct {
	kind       locationKind
	raw        string
	path       string // file path, URL or S3 key
	bucket     string
	compressed bool
}

// ParseLocation classifies a local path, file://, http(s):// or s3://bucket/key.
// A .xz suffix marks the feed as compressed.
func ParseLocation(raw string) (Location, error) {
	loc := Location{raw: raw, path: raw, compressed: strings.HasSuffix(strings.ToLower(raw), ".xz")}
	scheme, rest, found := strings.Cut(raw, "://")
	if !found {
		return loc, nil
	}

	switch strings.ToLower(scheme) {
	case "file":
		loc.path = rest
	case "http", "https":
		loc.kind = httpLocation
	case "s3":
		bucket, key, ok := strings.Cut(rest, "/")
		if !ok || bucket == "" || key == "" {
			return Location{}, fmt.Errorf("invalid S3 location %q: expected s3://bucket/key", raw)
		}
		loc.kind, loc.bucket, loc.path = s3Location, bucket, key
	default:
		return Location{}, fmt.Errorf("unsupported feed location scheme %q", scheme)
	}
	return loc, nil
}

func (loc Location) String() string {
	return loc.raw
}

func (loc Location) open(ctx context.Context, cfg *S3Config) (io.ReadCloser, error) {
	switch loc.kind {
	case httpLocation:
		return fetchHTTP(ctx, loc.path)
	case s3Location:
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		object, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(loc.bucket),
			Key:    aws.String(loc.path),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get s3://%s/%s: %w", loc.bucket, loc.path, err)
		}
		return object.Body, nil
	default:
		return os.Open(loc.path)
	}
}

// store writes data to the location in one piece.
func (loc Location) store(ctx context.Context, data []byte, cfg *S3Config) error {
	switch loc.kind {
	case httpLocation:
		return errReadOnlyLocation
	case s3Location:
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return err
		}
		_, err = client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(loc.bucket),
			Key:    aws.String(loc.path),
			Body:   bytes.NewReader(data),
		})
		if err != nil {
			return fmt.Errorf("failed to put s3://%s/%s: %w", loc.bucket, loc.path, err)
		}
		return nil
	default:
		return os.WriteFile(loc.path, data, 0644)
	}
}

var feedClient = &http.Client{Timeout: 5 * time.Minute}

func fetchHTTP(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid feed URL: %w", err)
	}
	resp, err := feedClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to fetch %s: %s", url, resp.Status)
	}
	return resp.Body, nil
}

func newS3Client(ctx context.Context, cfg *S3Config) (*s3.Client, error) {
	if cfg == nil {
		cfg = &S3Config{}
	}

	var loadOptions []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOptions = append(loadOptions, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// ReadFeed returns the wire text stored at location.
func ReadFeed(ctx context.Context, location string, cfg *S3Config) (string, error) {
	loc, err := ParseLocation(location)
	if err != nil {
		return "", err
	}
	body, err := loc.open(ctx, cfg)
	if err != nil {
		return "", err
	}
	defer body.Close()

	var source io.Reader = body
	if loc.compressed {
		if source, err = xz.NewReader(body); err != nil {
			return "", fmt.Errorf("failed to open xz stream in %s: %w", loc, err)
		}
	}
	data, err := io.ReadAll(source)
	if err != nil {
		return "", fmt.Errorf("failed to read feed from %s: %w", loc, err)
	}
	return string(data), nil
}

// WriteFeed stores wire text at location, compressing it for .xz locations.
func WriteFeed(ctx context.Context, location, wire string, cfg *S3Config) error {
	loc, err := ParseLocation(location)
	if err != nil {
		return err
	}
	if loc.kind == httpLocation {
		return errReadOnlyLocation
	}

	data := []byte(wire)
	if loc.compressed {
		var buf bytes.Buffer
		w, err := xz.NewWriter(&buf)
		if err != nil {
			return fmt.Errorf("failed to open xz stream: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("failed to compress feed: %w", err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("failed to finish xz stream: %w", err)
		}
		data = buf.Bytes()
	}

	if err := loc.store(ctx, data, cfg); err != nil {
		return fmt.Errorf("failed to write feed to %s: %w", loc, err)
	}
	return nil
}

// ApplyFeedFrom reads a feed from location and replays it.
func (engine *Engine) ApplyFeedFrom(ctx context.Context, location string, policy Policy) (*Report, error) {
	wire, err := ReadFeed(ctx, location, engine.options.S3)
	if err != nil {
		return nil, err
	}
	engine.log.WithField("location", location).Debug("feed read")
	return engine.ApplyWire(ctx, wire, policy)
}

// PublishFeed encodes feed and writes it to location.
func (engine *Engine) PublishFeed(ctx context.Context, feed op.Feed, location string) error {
	wire, err := op.Encode(feed)
	if err != nil {
		return err
	}
	if err := WriteFeed(ctx, location, wire, engine.options.S3); err != nil {
		return err
	}
	engine.log.WithFields(log.Fields{"location": location, "operations": len(feed)}).Info("feed published")
	return nil
}
