package source

import (
	"context"
	"io"
	"path"
	"sort"
	"strings"

	"imagesearch/feature"
	"imagesearch/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds configuration for the S3-backed source.
type S3Config struct {
	Region         string
	Bucket         string
	Prefix         string
	Endpoint       string
	ForcePathStyle bool
}

// S3Source serves reference images from an S3 (or S3-compatible)
// bucket. Identifiers are object keys. Credentials come from the
// default AWS config chain.
type S3Source struct {
	client *s3.Client
	cfg    S3Config
}

// NewS3 creates an S3-backed source.
func NewS3(ctx context.Context, cfg S3Config) (*S3Source, error) {
	var options []func(*config.LoadOptions) error
	if cfg.Region != "" {
		options = append(options, config.WithRegion(cfg.Region))
	}

	// Custom endpoint support for MinIO, LocalStack and friends.
	if cfg.Endpoint != "" {
		customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.Endpoint,
				HostnameImmutable: true,
				SigningRegion:     region,
			}, nil
		})
		options = append(options, config.WithEndpointResolverWithOptions(customResolver))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, err
	}

	s3Options := []func(*s3.Options){}
	if cfg.ForcePathStyle {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3Source{
		client: s3.NewFromConfig(awsCfg, s3Options...),
		cfg:    cfg,
	}, nil
}

// List pages through the bucket under the configured prefix and returns
// every object with a decodable image extension, sorted by key.
func (s *S3Source) List(ctx context.Context) ([]types.ImageRef, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(s.cfg.Prefix),
	}

	var refs []types.ImageRef
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			key := *obj.Key
			ext := strings.ToLower(path.Ext(key))
			if !feature.IsSupported(ext) {
				continue
			}
			refs = append(refs, types.ImageRef{
				ID:          key,
				Name:        path.Base(key),
				ContentType: contentTypeFor(ext),
			})
		}
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

// Fetch downloads one object's bytes.
func (s *S3Source) Fetch(ctx context.Context, id string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return nil, &FetchError{ID: id, Err: err}
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &FetchError{ID: id, Err: err}
	}
	return raw, nil
}
