package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/photodrop/internal/common"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	folderIndexPrefix = "meta/folders/"
	folderDataPrefix  = "folders/"

	metaFileName  = "file-name"
	metaCreatedAt = "created-at"

	headConcurrency   = 8
	defaultPresignTTL = 15 * time.Minute
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}
)

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Options configures the connection to an S3-compatible service.
type S3Options struct {
	Region       string
	AccessKey    string
	SecretKey    string
	Bucket       string
	BaseEndpoint string
	PresignTTL   time.Duration
}

// S3Backend stores folders as key prefixes of a single bucket.
//
// Layout:
//
//	meta/folders/<escaped name>/<folder id>   empty index object, one per folder
//	folders/<folder id>/<object id>           object content and metadata
//
// Object ids start with an inverted nanosecond timestamp so that the
// lexicographic listing order of S3 is newest first.
type S3Backend struct {
	api        s3API
	presign    presigner
	bucket     string
	presignTTL time.Duration
	now        func() time.Time
}

// NewS3Backend builds a client from static credentials. Path-style
// addressing is used so MinIO works without DNS buckets.
func NewS3Backend(ctx context.Context, opts S3Options) (*S3Backend, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
		}
		o.UsePathStyle = true
	})

	return newS3Backend(client, newS3PresignClient(client), opts.Bucket, opts.PresignTTL, nil), nil
}

func newS3Backend(api s3API, p presigner, bucket string, ttl time.Duration, now func() time.Time) *S3Backend {
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}
	if now == nil {
		now = time.Now
	}
	return &S3Backend{api: api, presign: p, bucket: bucket, presignTTL: ttl, now: now}
}

func (b *S3Backend) FindFolders(ctx context.Context, name string) ([]Folder, error) {
	prefix := folderIndexPrefix + url.PathEscape(name) + "/"

	var (
		result []Folder
		token  *string
	)
	for {
		out, err := b.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, storeError("find folders", err)
		}
		for _, obj := range out.Contents {
			id := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if id == "" || strings.Contains(id, "/") {
				continue
			}
			result = append(result, Folder{ID: id, Name: name})
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			return result, nil
		}
		token = out.NextContinuationToken
	}
}

func (b *S3Backend) CreateFolder(ctx context.Context, name string) (Folder, error) {
	f := Folder{ID: uuid.NewString(), Name: name}
	_, err := b.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(folderIndexPrefix + url.PathEscape(name) + "/" + f.ID),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return Folder{}, storeError("create folder", err)
	}
	return f, nil
}

func (b *S3Backend) Put(ctx context.Context, folderID string, in PutInput) (ObjectInfo, error) {
	if err := validID(folderID); err != nil {
		return ObjectInfo{}, common.NewStoreError("put", 0, err)
	}

	created := b.now().UTC()
	id := fmt.Sprintf("%019d-%s", math.MaxInt64-created.UnixNano(), uuid.NewString())

	meta := make(map[string]string, len(in.Metadata)+2)
	for k, v := range in.Metadata {
		meta[strings.ToLower(k)] = url.PathEscape(v)
	}
	meta[metaFileName] = url.PathEscape(in.Name)
	meta[metaCreatedAt] = created.Format(time.RFC3339Nano)

	_, err := b.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(objectKey(folderID, id)),
		Body:          bytes.NewReader(in.Body),
		ContentLength: aws.Int64(int64(len(in.Body))),
		ContentType:   aws.String(in.ContentType),
		Metadata:      meta,
	})
	if err != nil {
		return ObjectInfo{}, storeError("put", err)
	}

	return ObjectInfo{
		ID:          id,
		Name:        in.Name,
		ContentType: in.ContentType,
		Size:        int64(len(in.Body)),
		CreatedAt:   created,
		Metadata:    in.Metadata,
	}, nil
}

// ListChildren fetches the first limit keys of the folder, then the
// metadata of each in parallel.
func (b *S3Backend) ListChildren(ctx context.Context, folderID string, limit int) ([]ObjectInfo, error) {
	if err := validID(folderID); err != nil {
		return nil, common.NewStoreError("list", 0, err)
	}

	prefix := folderDataPrefix + folderID + "/"
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	}
	if limit > 0 {
		in.MaxKeys = aws.Int32(int32(limit))
	}
	out, err := b.api.ListObjectsV2(ctx, in)
	if err != nil {
		return nil, storeError("list", err)
	}

	ids := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		id := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
		if id == "" || strings.Contains(id, "/") {
			continue
		}
		ids = append(ids, id)
	}

	result := make([]ObjectInfo, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(headConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			info, err := b.head(gctx, folderID, id)
			if err != nil {
				if errors.Is(storeError("head", err), common.ErrorNotFound) {
					return nil
				}
				return err
			}
			result[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, storeError("list", err)
	}

	// Objects deleted between the listing and the head call leave gaps.
	kept := result[:0]
	for _, info := range result {
		if info.ID != "" {
			kept = append(kept, info)
		}
	}
	return kept, nil
}

func (b *S3Backend) Open(ctx context.Context, folderID, id string) (io.ReadCloser, ObjectInfo, error) {
	if err := errors.Join(validID(folderID), validID(id)); err != nil {
		return nil, ObjectInfo{}, common.NewStoreError("open", 0, err)
	}

	out, err := b.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey(folderID, id)),
	})
	if err != nil {
		return nil, ObjectInfo{}, storeError("open", err)
	}

	info := objectInfo(id, out.Metadata, aws.ToString(out.ContentType), aws.ToInt64(out.ContentLength), out.LastModified)
	return out.Body, info, nil
}

func (b *S3Backend) Delete(ctx context.Context, folderID, id string) error {
	if err := errors.Join(validID(folderID), validID(id)); err != nil {
		return common.NewStoreError("delete", 0, err)
	}

	// DeleteObject succeeds on missing keys; probe first to report 404.
	if _, err := b.head(ctx, folderID, id); err != nil {
		return storeError("delete", err)
	}

	_, err := b.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey(folderID, id)),
	})
	if err != nil {
		return storeError("delete", err)
	}
	return nil
}

func (b *S3Backend) PreviewURL(ctx context.Context, folderID, id string) (string, error) {
	if err := errors.Join(validID(folderID), validID(id)); err != nil {
		return "", common.NewStoreError("presign", 0, err)
	}

	req, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey(folderID, id)),
	}, s3.WithPresignExpires(b.presignTTL))
	if err != nil {
		return "", common.NewStoreError("presign", 0, err)
	}
	return req.URL, nil
}

func (b *S3Backend) Ping(ctx context.Context) error {
	_, err := b.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
	if err != nil {
		return storeError("ping", err)
	}
	return nil
}

func (b *S3Backend) head(ctx context.Context, folderID, id string) (ObjectInfo, error) {
	out, err := b.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey(folderID, id)),
	})
	if err != nil {
		return ObjectInfo{}, err
	}
	return objectInfo(id, out.Metadata, aws.ToString(out.ContentType), aws.ToInt64(out.ContentLength), out.LastModified), nil
}

func objectKey(folderID, id string) string {
	return folderDataPrefix + folderID + "/" + id
}

func validID(id string) error {
	if id == "" || strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return fmt.Errorf("invalid id %q: %w", id, common.ErrValidation)
	}
	return nil
}

func objectInfo(id string, raw map[string]string, contentType string, size int64, modified *time.Time) ObjectInfo {
	meta := make(Metadata, len(raw))
	for k, v := range raw {
		if s, err := url.PathUnescape(v); err == nil {
			v = s
		}
		meta[strings.ToLower(k)] = v
	}

	info := ObjectInfo{
		ID:          id,
		Name:        meta.Get(metaFileName),
		ContentType: contentType,
		Size:        size,
		Metadata:    meta,
	}
	if t, err := time.Parse(time.RFC3339Nano, meta.Get(metaCreatedAt)); err == nil {
		info.CreatedAt = t
	} else if modified != nil {
		info.CreatedAt = *modified
	}
	delete(meta, metaFileName)
	delete(meta, metaCreatedAt)
	return info
}

// storeError classifies SDK failures. Every 404 (NoSuchKey, NotFound or a
// bare status) becomes common.ErrorNotFound.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *common.StoreError
	if errors.As(err, &se) {
		return err
	}

	code := 0
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		code = re.HTTPStatusCode()
	}

	var (
		noKey    *types.NoSuchKey
		notFound *types.NotFound
	)
	if errors.As(err, &noKey) || errors.As(err, &notFound) || code == http.StatusNotFound {
		return common.NewStoreError(op, http.StatusNotFound, fmt.Errorf("%w: %v", common.ErrorNotFound, err))
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return common.NewStoreError(op, code, fmt.Errorf("%s: %w", apiErr.ErrorCode(), err))
	}
	return common.NewStoreError(op, code, err)
}
