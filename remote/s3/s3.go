// Package s3 implements the remote.Endpoint interface on top of S3
// multipart uploads and ranged GETs.
//
// Upload sessions map onto S3 multipart uploads: the multipart upload id
// is the durable server-side session, ListParts is the authoritative
// resumption source, and AbortMultipartUpload discards a cancelled
// session. Downloads are stateless ranged GetObject calls; the session
// exists only client-side.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/pithecene-io/ferry/iox"
	"github.com/pithecene-io/ferry/remote"
)

// DefaultChunkSize is the part size handed out on initiate. S3 requires
// parts of at least 5 MiB (except the last), so this cannot go below that.
const DefaultChunkSize int64 = 8 << 20

// Config holds configuration for the S3 endpoint.
type Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing (bucket in path, not
	// subdomain). Required by most S3-compatible providers.
	UsePathStyle bool
	// ChunkSize overrides DefaultChunkSize. Must be >= 5 MiB.
	ChunkSize int64
}

// Validate checks that required S3 configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("s3 bucket is required")
	}
	if c.ChunkSize != 0 && c.ChunkSize < 5<<20 {
		return fmt.Errorf("s3 chunk size %d below the 5 MiB part minimum", c.ChunkSize)
	}
	return nil
}

// Endpoint is an S3-backed remote.Endpoint.
type Endpoint struct {
	client    *awss3.Client
	bucket    string
	prefix    string
	chunkSize int64

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	upload      bool
	key         string
	uploadID    string
	size        int64
	totalChunks int
	etags       map[int]string
	served      map[int]bool
}

// New creates an S3 endpoint using the AWS SDK default credential chain
// (env vars, shared config, IAM role).
func New(ctx context.Context, cfg Config) (*Endpoint, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*awss3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *awss3.Options) { o.BaseEndpoint = &endpoint })
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *awss3.Options) { o.UsePathStyle = true })
	}

	return NewWithClient(awss3.NewFromConfig(awsCfg, s3Opts...), cfg)
}

// NewWithClient creates an S3 endpoint around an existing client.
// Useful for tests and callers that manage their own AWS config.
func NewWithClient(client *awss3.Client, cfg Config) (*Endpoint, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	chunkSize := cfg.ChunkSize
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	return &Endpoint{
		client:    client,
		bucket:    cfg.Bucket,
		prefix:    cfg.Prefix,
		chunkSize: chunkSize,
		sessions:  make(map[string]*session),
	}, nil
}

// InitiateUpload implements remote.Endpoint by opening an S3 multipart upload.
func (e *Endpoint) InitiateUpload(ctx context.Context, name, parentID string, size int64) (*remote.UploadInit, error) {
	key := e.objectKey(parentID, name)
	out, err := e.client.CreateMultipartUpload(ctx, &awss3.CreateMultipartUploadInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, remote.WrapTransport("initiate_upload", err)
	}

	totalChunks := chunkCount(size, e.chunkSize)
	sess := &session{
		upload:      true,
		key:         key,
		uploadID:    aws.ToString(out.UploadId),
		size:        size,
		totalChunks: totalChunks,
		etags:       make(map[int]string),
	}

	id := uuid.New().String()
	e.mu.Lock()
	e.sessions[id] = sess
	e.mu.Unlock()

	return &remote.UploadInit{SessionID: id, ChunkSize: e.chunkSize, TotalChunks: totalChunks}, nil
}

// InitiateDownload implements remote.Endpoint via HeadObject.
func (e *Endpoint) InitiateDownload(ctx context.Context, resourceID string) (*remote.DownloadInit, error) {
	key := e.objectKey("", resourceID)
	head, err := e.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, remote.WrapTransport("initiate_download", err)
	}

	size := aws.ToInt64(head.ContentLength)
	totalChunks := chunkCount(size, e.chunkSize)
	sess := &session{
		key:         key,
		size:        size,
		totalChunks: totalChunks,
		served:      make(map[int]bool),
	}

	id := uuid.New().String()
	e.mu.Lock()
	e.sessions[id] = sess
	e.mu.Unlock()

	return &remote.DownloadInit{
		SessionID:   id,
		FileName:    path.Base(key),
		TotalBytes:  size,
		ChunkSize:   e.chunkSize,
		TotalChunks: totalChunks,
	}, nil
}

// UploadChunk implements remote.Endpoint via UploadPart.
// S3 part numbers are 1-based; chunk indices are 0-based.
func (e *Endpoint) UploadChunk(ctx context.Context, sessionID string, index int, data []byte) error {
	sess, err := e.session(sessionID, true)
	if err != nil {
		return err
	}

	out, err := e.client.UploadPart(ctx, &awss3.UploadPartInput{
		Bucket:     aws.String(e.bucket),
		Key:        aws.String(sess.key),
		UploadId:   aws.String(sess.uploadID),
		PartNumber: aws.Int32(int32(index + 1)),
		Body:       bytes.NewReader(data),
	})
	if err != nil {
		return remote.WrapTransport("upload_chunk", err)
	}

	e.mu.Lock()
	sess.etags[index] = aws.ToString(out.ETag)
	e.mu.Unlock()
	return nil
}

// DownloadChunk implements remote.Endpoint via a ranged GetObject.
func (e *Endpoint) DownloadChunk(ctx context.Context, sessionID string, index int, start, end int64) ([]byte, error) {
	sess, err := e.session(sessionID, false)
	if err != nil {
		return nil, err
	}

	out, err := e.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(sess.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, end-1)),
	})
	if err != nil {
		return nil, remote.WrapTransport("download_chunk", err)
	}
	defer iox.DiscardClose(out.Body)

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, remote.WrapTransport("download_chunk", err)
	}
	if got, want := int64(len(data)), end-start; got != want {
		return nil, fmt.Errorf("download_chunk: short body: got %d bytes, want %d", got, want)
	}

	e.mu.Lock()
	sess.served[index] = true
	e.mu.Unlock()
	return data, nil
}

// CompleteUpload implements remote.Endpoint via CompleteMultipartUpload.
func (e *Endpoint) CompleteUpload(ctx context.Context, sessionID string, manifest remote.Manifest) (*remote.ResourceMeta, error) {
	sess, err := e.session(sessionID, true)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if len(sess.etags) != manifest.TotalChunks {
		have := len(sess.etags)
		e.mu.Unlock()
		return nil, fmt.Errorf("complete_upload: manifest names %d chunks, have %d parts", manifest.TotalChunks, have)
	}
	parts := make([]s3types.CompletedPart, 0, len(sess.etags))
	for index, etag := range sess.etags {
		parts = append(parts, s3types.CompletedPart{
			ETag:       aws.String(etag),
			PartNumber: aws.Int32(int32(index + 1)),
		})
	}
	e.mu.Unlock()

	// S3 requires ascending part order.
	sort.Slice(parts, func(i, j int) bool {
		return aws.ToInt32(parts[i].PartNumber) < aws.ToInt32(parts[j].PartNumber)
	})

	_, err = e.client.CompleteMultipartUpload(ctx, &awss3.CompleteMultipartUploadInput{
		Bucket:          aws.String(e.bucket),
		Key:             aws.String(sess.key),
		UploadId:        aws.String(sess.uploadID),
		MultipartUpload: &s3types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		return nil, remote.WrapTransport("complete_upload", err)
	}

	e.dropSession(sessionID)
	return &remote.ResourceMeta{
		ResourceID: sess.key,
		Name:       path.Base(sess.key),
		Size:       sess.size,
		Checksum:   manifest.Checksum,
	}, nil
}

// SessionStatus implements remote.Endpoint. For uploads the answer comes
// from ListParts, the durable server-side record; download sessions
// report the locally-served set since ranged GETs leave no server state.
func (e *Endpoint) SessionStatus(ctx context.Context, sessionID string) (*remote.SessionStatus, error) {
	sess, err := e.anySession(sessionID)
	if err != nil {
		return nil, err
	}

	if !sess.upload {
		e.mu.Lock()
		defer e.mu.Unlock()
		return &remote.SessionStatus{CompletedChunks: sortedKeys(sess.served)}, nil
	}

	indices, err := e.listUploadedParts(ctx, sess)
	if err != nil {
		return nil, err
	}
	return &remote.SessionStatus{CompletedChunks: indices}, nil
}

// PauseSession implements remote.Endpoint. Multipart uploads persist
// server-side without any explicit pause call, so this only validates
// the session.
func (e *Endpoint) PauseSession(_ context.Context, sessionID string) error {
	_, err := e.anySession(sessionID)
	return err
}

// ResumeSession implements remote.Endpoint.
func (e *Endpoint) ResumeSession(ctx context.Context, sessionID string) (*remote.ResumeInfo, error) {
	sess, err := e.anySession(sessionID)
	if err != nil {
		return nil, err
	}

	var have map[int]bool
	if sess.upload {
		indices, err := e.listUploadedParts(ctx, sess)
		if err != nil {
			return nil, err
		}
		have = make(map[int]bool, len(indices))
		for _, i := range indices {
			have[i] = true
		}
	} else {
		e.mu.Lock()
		have = make(map[int]bool, len(sess.served))
		for i := range sess.served {
			have[i] = true
		}
		e.mu.Unlock()
	}

	var missing []int
	for i := 0; i < sess.totalChunks; i++ {
		if !have[i] {
			missing = append(missing, i)
		}
	}
	return &remote.ResumeInfo{MissingChunks: missing}, nil
}

// CancelSession implements remote.Endpoint. Upload sessions abort the
// multipart upload so S3 frees the stored parts.
func (e *Endpoint) CancelSession(ctx context.Context, sessionID string) error {
	sess, err := e.anySession(sessionID)
	if err != nil {
		return err
	}

	if sess.upload {
		_, err := e.client.AbortMultipartUpload(ctx, &awss3.AbortMultipartUploadInput{
			Bucket:   aws.String(e.bucket),
			Key:      aws.String(sess.key),
			UploadId: aws.String(sess.uploadID),
		})
		if err != nil {
			return remote.WrapTransport("cancel_session", err)
		}
	}

	e.dropSession(sessionID)
	return nil
}

func (e *Endpoint) listUploadedParts(ctx context.Context, sess *session) ([]int, error) {
	var indices []int
	var marker *string
	for {
		out, err := e.client.ListParts(ctx, &awss3.ListPartsInput{
			Bucket:           aws.String(e.bucket),
			Key:              aws.String(sess.key),
			UploadId:         aws.String(sess.uploadID),
			PartNumberMarker: marker,
		})
		if err != nil {
			return nil, remote.WrapTransport("session_status", err)
		}
		for _, part := range out.Parts {
			indices = append(indices, int(aws.ToInt32(part.PartNumber))-1)
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		marker = out.NextPartNumberMarker
	}
	sort.Ints(indices)
	return indices, nil
}

func (e *Endpoint) session(id string, wantUpload bool) (*session, error) {
	sess, err := e.anySession(id)
	if err != nil {
		return nil, err
	}
	if sess.upload != wantUpload {
		return nil, fmt.Errorf("session %s has the wrong direction", id)
	}
	return sess, nil
}

func (e *Endpoint) anySession(id string) (*session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sess, ok := e.sessions[id]
	if !ok {
		return nil, remote.ErrNotFound
	}
	return sess, nil
}

func (e *Endpoint) dropSession(id string) {
	e.mu.Lock()
	delete(e.sessions, id)
	e.mu.Unlock()
}

func (e *Endpoint) objectKey(parentID, name string) string {
	parts := make([]string, 0, 3)
	if e.prefix != "" {
		parts = append(parts, e.prefix)
	}
	if parentID != "" {
		parts = append(parts, parentID)
	}
	parts = append(parts, name)
	return path.Join(parts...)
}

func chunkCount(size, chunkSize int64) int {
	if size == 0 {
		return 0
	}
	return int((size + chunkSize - 1) / chunkSize)
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for i := range m {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

var _ remote.Endpoint = (*Endpoint)(nil)
