// services/archive.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"ludo-arena/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

// ObjectPutter is the slice of the S3 client the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ArchiveService copies finished game records, audit log included, to object storage.
type ArchiveService struct {
	client ObjectPutter
	bucket string
	logger *zap.Logger
}

func NewArchiveService(client ObjectPutter, bucket string, logger *zap.Logger) *ArchiveService {
	return &ArchiveService{client: client, bucket: bucket, logger: logger}
}

// ArchiveKey is the object key for a game, e.g. "games/classic_2p/2025/01/31/<room>.json".
func ArchiveKey(g *models.Game) string {
	return fmt.Sprintf("games/%s/%s/%s.json",
		slug.Make(string(g.GameType)),
		g.CreatedAt.UTC().Format("2006/01/02"),
		g.RoomID,
	)
}

func (a *ArchiveService) Archive(ctx context.Context, g *models.Game) error {
	body, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode game %s: %w", g.RoomID, err)
	}
	key := ArchiveKey(g)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	a.logger.Info("[Archive] game archived", zap.String("room_id", g.RoomID), zap.String("key", key))
	return nil
}
