package mongodb

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"time"

	"support_server/core/port/out"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionMessageBodies = "message_bodies"

	// Only compress bodies larger than this
	compressionThreshold = 1024 // 1KB
)

// BodyArchiveAdapter implements out.BodyArchive using MongoDB. The
// primary database keeps the truncated text body; the full original,
// including raw MIME, lives here.
type BodyArchiveAdapter struct {
	collection *mongo.Collection
}

// NewBodyArchiveAdapter creates a new MongoDB body archive adapter.
func NewBodyArchiveAdapter(db *mongo.Database) *BodyArchiveAdapter {
	return &BodyArchiveAdapter{
		collection: db.Collection(collectionMessageBodies),
	}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *BodyArchiveAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "message_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "external_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "archived_at", Value: 1}},
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// bodyDocument represents the MongoDB document structure.
type bodyDocument struct {
	MessageID  int64  `bson:"message_id"`
	ExternalID string `bson:"external_id"`

	// Content (potentially compressed)
	Text         []byte `bson:"text"`
	HTML         []byte `bson:"html"`
	Raw          []byte `bson:"raw"`
	IsCompressed bool   `bson:"is_compressed"`

	OriginalSize int64 `bson:"original_size"`
	StoredSize   int64 `bson:"stored_size"`

	ArchivedAt time.Time `bson:"archived_at"`
}

// SaveBody upserts the full body record for a message.
func (a *BodyArchiveAdapter) SaveBody(ctx context.Context, record *out.BodyRecord) error {
	doc, err := toDocument(record)
	if err != nil {
		return fmt.Errorf("failed to convert body to document: %w", err)
	}

	opts := options.Replace().SetUpsert(true)
	filter := bson.M{"message_id": record.MessageID}

	if _, err := a.collection.ReplaceOne(ctx, filter, doc, opts); err != nil {
		return fmt.Errorf("failed to save message body: %w", err)
	}

	return nil
}

// GetBody retrieves the archived body for a message, or nil when absent.
func (a *BodyArchiveAdapter) GetBody(ctx context.Context, messageID int64) (*out.BodyRecord, error) {
	var doc bodyDocument
	filter := bson.M{"message_id": messageID}

	err := a.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get message body: %w", err)
	}

	return toRecord(&doc)
}

// DeleteBody removes the archived body for a message.
func (a *BodyArchiveAdapter) DeleteBody(ctx context.Context, messageID int64) error {
	filter := bson.M{"message_id": messageID}

	if _, err := a.collection.DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("failed to delete message body: %w", err)
	}

	return nil
}

// DeleteOlderThan removes archived bodies past the retention window.
func (a *BodyArchiveAdapter) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	filter := bson.M{"archived_at": bson.M{"$lt": before}}

	result, err := a.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old bodies: %w", err)
	}

	return result.DeletedCount, nil
}

func toDocument(record *out.BodyRecord) (*bodyDocument, error) {
	textBytes := []byte(record.TextBody)
	htmlBytes := []byte(record.HTMLBody)
	rawBytes := []byte(record.Raw)
	originalSize := int64(len(textBytes) + len(htmlBytes) + len(rawBytes))

	isCompressed := false
	if originalSize > compressionThreshold {
		var err error
		if textBytes, err = compress(textBytes); err != nil {
			return nil, fmt.Errorf("failed to compress text: %w", err)
		}
		if htmlBytes, err = compress(htmlBytes); err != nil {
			return nil, fmt.Errorf("failed to compress html: %w", err)
		}
		if rawBytes, err = compress(rawBytes); err != nil {
			return nil, fmt.Errorf("failed to compress raw: %w", err)
		}
		isCompressed = true
	}

	return &bodyDocument{
		MessageID:    record.MessageID,
		ExternalID:   record.ExternalID,
		Text:         textBytes,
		HTML:         htmlBytes,
		Raw:          rawBytes,
		IsCompressed: isCompressed,
		OriginalSize: originalSize,
		StoredSize:   int64(len(textBytes) + len(htmlBytes) + len(rawBytes)),
		ArchivedAt:   time.Now(),
	}, nil
}

func toRecord(doc *bodyDocument) (*out.BodyRecord, error) {
	textBytes := doc.Text
	htmlBytes := doc.HTML
	rawBytes := doc.Raw

	if doc.IsCompressed {
		var err error
		if textBytes, err = decompress(doc.Text); err != nil {
			return nil, fmt.Errorf("failed to decompress text: %w", err)
		}
		if htmlBytes, err = decompress(doc.HTML); err != nil {
			return nil, fmt.Errorf("failed to decompress html: %w", err)
		}
		if rawBytes, err = decompress(doc.Raw); err != nil {
			return nil, fmt.Errorf("failed to decompress raw: %w", err)
		}
	}

	return &out.BodyRecord{
		MessageID:  doc.MessageID,
		ExternalID: doc.ExternalID,
		TextBody:   string(textBytes),
		HTMLBody:   string(htmlBytes),
		Raw:        string(rawBytes),
	}, nil
}

func compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)

	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return io.ReadAll(reader)
}

var _ out.BodyArchive = (*BodyArchiveAdapter)(nil)
