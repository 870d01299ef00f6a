package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/minmer/recreatio-sub002/internal/common"
	"github.com/minmer/recreatio-sub002/internal/dbx"
	"github.com/minmer/recreatio-sub002/internal/server/models"
	"github.com/minmer/recreatio-sub002/internal/server/repositories/repomanager"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3Config locates the archive bucket.
type S3Config struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
	Bucket       string
}

// ObjectStore is the part of the S3 client the exporter needs.
type ObjectStore interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Presigner issues download links for exported objects.
type Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// NewS3Client builds a path-style client with static credentials, suitable
// for MinIO as well as AWS.
func NewS3Client(ctx context.Context, c S3Config) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(c.BaseEndpoint)
		}
		o.UsePathStyle = true
	}), nil
}

// Export is the result of archiving one chain.
type Export struct {
	Key         string `json:"key"`
	Entries     int    `json:"entries"`
	DownloadURL string `json:"downloadUrl,omitempty"`
}

type exportLine struct {
	ID           string    `json:"id"`
	TimestampUTC time.Time `json:"timestampUtc"`
	EventType    string    `json:"eventType"`
	Actor        string    `json:"actor"`
	PayloadJSON  string    `json:"payloadJson"`
	PreviousHash string    `json:"previousHash"`
	Hash         string    `json:"hash"`
	SignerRoleID string    `json:"signerRoleId,omitempty"`
	Signature    string    `json:"signature,omitempty"`
	SignatureAlg string    `json:"signatureAlg,omitempty"`
}

// Exporter writes whole chains to object storage as JSON lines.
type Exporter struct {
	repos     repomanager.RepositoryManager
	store     ObjectStore
	presigner Presigner
	bucket    string
	now       func() time.Time
}

// NewExporter returns an exporter. presigner may be nil, in which case no
// download link is produced.
func NewExporter(repos repomanager.RepositoryManager, store ObjectStore, presigner Presigner, bucket string) *Exporter {
	return &Exporter{repos: repos, store: store, presigner: presigner, bucket: bucket, now: time.Now}
}

func objectKey(chain models.LedgerChain, at time.Time) string {
	return fmt.Sprintf("ledgers/%s/%s.jsonl", chain, at.UTC().Format("20060102T150405.000000Z"))
}

func (x *Exporter) Export(ctx context.Context, db dbx.DBTX, chain models.LedgerChain) (*Export, error) {
	if !chain.Valid() {
		return nil, fmt.Errorf("%w: unknown ledger %q", common.ErrInvalidInput, chain)
	}
	entries, err := x.repos.Ledger(db).List(ctx, chain)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	b64 := base64.StdEncoding
	for _, e := range entries {
		line := exportLine{
			ID:           e.ID,
			TimestampUTC: e.TimestampUTC.UTC(),
			EventType:    e.EventType,
			Actor:        e.Actor,
			PayloadJSON:  e.PayloadJSON,
			PreviousHash: b64.EncodeToString(e.PreviousHash),
			Hash:         b64.EncodeToString(e.Hash),
			SignerRoleID: e.SignerRoleID,
			Signature:    b64.EncodeToString(e.Signature),
			SignatureAlg: e.SignatureAlg,
		}
		if err := enc.Encode(line); err != nil {
			return nil, err
		}
	}

	key := objectKey(chain, x.now())
	_, err = x.store.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(x.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload ledger export: %w", err)
	}

	out := &Export{Key: key, Entries: len(entries)}
	if x.presigner != nil {
		req, err := x.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(x.bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(15*time.Minute))
		if err != nil {
			return nil, fmt.Errorf("failed to presign ledger export: %w", err)
		}
		out.DownloadURL = req.URL
	}
	return out, nil
}
