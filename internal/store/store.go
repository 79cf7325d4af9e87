// Package store is the Document Store: it persists document metadata in
// MongoDB and content-addressed blob bytes in MinIO, gzip-compressed on the
// way in. It is grounded on the goa-ai registry's Mongo store (collection
// wrapping, ReplaceOne-with-upsert, ErrNoDocuments translation) generalized
// from a single-collection registry to the platform's document/blob split.
package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/minio/minio-go/v7"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/corpusloop/platform/internal/apierr"
	"github.com/corpusloop/platform/internal/domain"
)

// ErrNotFound is returned when a document lookup misses.
var ErrNotFound = errors.New("store: document not found")

// Store is the Document Store.
type Store struct {
	docs   *mongo.Collection
	blobs  BlobStore
	bucket string
}

// BlobStore abstracts the content-addressed object backend so Store can be
// tested without a live MinIO server.
type BlobStore interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (*minio.Object, error)
	StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// New builds a Store over an existing Mongo collection and blob backend.
func New(collection *mongo.Collection, blobs BlobStore, bucket string) *Store {
	return &Store{docs: collection, blobs: blobs, bucket: bucket}
}

type documentRecord struct {
	ID          string    `bson:"_id"`
	ProjectID   string    `bson:"project_id"`
	ContentHash string    `bson:"content_hash"`
	SourceURL   string    `bson:"source_url,omitempty"`
	MIME        string    `bson:"mime"`
	Title       string    `bson:"title,omitempty"`
	Description string    `bson:"description,omitempty"`
	Priority    float64   `bson:"priority"`
	BlobKey     string    `bson:"blob_key"`
	FetchedAt   time.Time `bson:"fetched_at"`
	IndexedAt   time.Time `bson:"indexed_at"`
	Deleted     bool      `bson:"deleted"`
}

// ContentHash returns the sha256 hex digest used both as the MinIO object
// key and the Mongo dedup key, scoped per project.
func ContentHash(text []byte) string {
	sum := sha256.Sum256(text)
	return hex.EncodeToString(sum[:])
}

func blobKey(projectID, contentHash string) string {
	return fmt.Sprintf("%s/%s.gz", projectID, contentHash)
}

// Put writes a document's text to blob storage (gzip-compressed, skipped if
// a blob with the same content hash already exists) and upserts its
// metadata, enforcing the (project_id, content_hash) de-duplication
// invariant: if an active document with the same hash already exists for
// the project, its existing record is returned unchanged (same ID, text
// stored exactly once) and the second return value is true. Callers that
// only need to act on genuinely new content — e.g. the crawler's
// DocumentChanged notification — should skip that side effect when this
// returns true.
func (s *Store) Put(ctx context.Context, doc domain.Document) (domain.Document, bool, error) {
	hash := ContentHash([]byte(doc.Text))
	doc.ContentHash = hash

	var existing documentRecord
	err := s.docs.FindOne(ctx, bson.M{"project_id": doc.ProjectID, "content_hash": hash, "deleted": false}).Decode(&existing)
	switch {
	case err == nil:
		return recordToDomain(existing, doc.Text), true, nil
	case errors.Is(err, mongo.ErrNoDocuments):
		// no active document with this hash yet; fall through and create one.
	default:
		return domain.Document{}, false, apierr.Wrap(apierr.KindInternal, "look up document by content hash", err)
	}

	key := blobKey(doc.ProjectID, hash)
	if _, err := s.blobs.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		if _, err := gw.Write([]byte(doc.Text)); err != nil {
			return domain.Document{}, false, apierr.Wrap(apierr.KindInternal, "compress document", err)
		}
		if err := gw.Close(); err != nil {
			return domain.Document{}, false, apierr.Wrap(apierr.KindInternal, "compress document", err)
		}
		if _, err := s.blobs.PutObject(ctx, s.bucket, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), minio.PutObjectOptions{ContentType: "application/gzip"}); err != nil {
			return domain.Document{}, false, apierr.Wrap(apierr.KindInternal, "store document blob", err)
		}
	}

	// indexed_at is deliberately left at its zero value here: it marks the
	// moment the Embedding Worker finished chunking this content, not the
	// moment its metadata was written, so the idle-cooldown rescan can tell
	// a freshly fetched document from one that has actually been embedded.
	rec := documentRecord{
		ID:          doc.ID,
		ProjectID:   doc.ProjectID,
		ContentHash: hash,
		SourceURL:   doc.SourceURL,
		MIME:        doc.MIME,
		Title:       doc.Title,
		Description: doc.Description,
		Priority:    doc.Priority,
		BlobKey:     key,
		FetchedAt:   doc.FetchedAt,
		Deleted:     false,
	}
	opts := mongooptions.Replace().SetUpsert(true)
	_, err = s.docs.ReplaceOne(ctx, bson.M{"_id": doc.ID}, rec, opts)
	if err != nil {
		return domain.Document{}, false, apierr.Wrap(apierr.KindInternal, "store document metadata", err)
	}
	return doc, false, nil
}

// MarkIndexed records that a document's chunks are live in both retrieval
// indices as of `at`. The Embedding Worker calls this once chunkstore.Publish
// succeeds; until it does, ListStale keeps surfacing the document.
func (s *Store) MarkIndexed(ctx context.Context, projectID, id string, at time.Time) error {
	_, err := s.docs.UpdateOne(ctx,
		bson.M{"_id": id, "project_id": projectID},
		bson.M{"$set": bson.M{"indexed_at": at}})
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, "mark document indexed", err)
	}
	return nil
}

// Get returns a document's metadata and text, loading the text from blob
// storage and decompressing it.
func (s *Store) Get(ctx context.Context, projectID, id string) (domain.Document, error) {
	var rec documentRecord
	err := s.docs.FindOne(ctx, bson.M{"_id": id, "project_id": projectID, "deleted": false}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Document{}, ErrNotFound
		}
		return domain.Document{}, apierr.Wrap(apierr.KindInternal, "load document metadata", err)
	}

	obj, err := s.blobs.GetObject(ctx, s.bucket, rec.BlobKey, minio.GetObjectOptions{})
	if err != nil {
		return domain.Document{}, apierr.Wrap(apierr.KindInternal, "load document blob", err)
	}
	defer obj.Close()
	gr, err := gzip.NewReader(obj)
	if err != nil {
		return domain.Document{}, apierr.Wrap(apierr.KindInternal, "decompress document blob", err)
	}
	defer gr.Close()
	text, err := io.ReadAll(gr)
	if err != nil {
		return domain.Document{}, apierr.Wrap(apierr.KindInternal, "read document blob", err)
	}

	return recordToDomain(rec, string(text)), nil
}

// GetMeta returns a document's metadata without touching blob storage,
// used by the Retriever to enrich citations with title/source URL without
// paying a decompress-the-whole-document cost per match.
func (s *Store) GetMeta(ctx context.Context, projectID, id string) (domain.Document, error) {
	var rec documentRecord
	err := s.docs.FindOne(ctx, bson.M{"_id": id, "project_id": projectID, "deleted": false}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Document{}, ErrNotFound
		}
		return domain.Document{}, apierr.Wrap(apierr.KindInternal, "load document metadata", err)
	}
	return recordToDomain(rec, ""), nil
}

// ListByProject returns non-deleted document metadata for a project,
// ordered by fetch time, without loading blob text (used by the admin
// document listing).
func (s *Store) ListByProject(ctx context.Context, projectID string) ([]domain.Document, error) {
	cursor, err := s.docs.Find(ctx, bson.M{"project_id": projectID, "deleted": false},
		mongooptions.Find().SetSort(bson.D{{Key: "fetched_at", Value: 1}}))
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "list documents", err)
	}
	defer cursor.Close(ctx)

	var recs []documentRecord
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "decode documents", err)
	}
	out := make([]domain.Document, len(recs))
	for i, r := range recs {
		out[i] = recordToDomain(r, "")
	}
	return out, nil
}

// ListStale returns non-deleted documents whose indexed_at predates their
// fetched_at — the idle-cooldown rescan's backlog: a fetch the embedding
// worker has not yet caught up with, whether because it raced a crawl or
// because a DocumentChanged event was dropped by the broker.
func (s *Store) ListStale(ctx context.Context, projectID string) ([]domain.Document, error) {
	cursor, err := s.docs.Find(ctx, bson.M{
		"project_id": projectID,
		"deleted":    false,
		"$expr":      bson.M{"$lt": bson.A{"$indexed_at", "$fetched_at"}},
	}, mongooptions.Find().SetSort(bson.D{{Key: "fetched_at", Value: 1}}))
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "list stale documents", err)
	}
	defer cursor.Close(ctx)

	var recs []documentRecord
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "decode stale documents", err)
	}
	out := make([]domain.Document, len(recs))
	for i, r := range recs {
		out[i] = recordToDomain(r, "")
	}
	return out, nil
}

// Delete marks a document deleted. Blob bytes are left in place; Delete
// never touches blob storage, which keeps it a fast, idempotent
// metadata-only operation.
func (s *Store) Delete(ctx context.Context, projectID, id string) error {
	_, err := s.docs.UpdateOne(ctx,
		bson.M{"_id": id, "project_id": projectID},
		bson.M{"$set": bson.M{"deleted": true}})
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, "delete document", err)
	}
	return nil
}

func recordToDomain(r documentRecord, text string) domain.Document {
	return domain.Document{
		ID:          r.ID,
		ProjectID:   r.ProjectID,
		ContentHash: r.ContentHash,
		SourceURL:   r.SourceURL,
		MIME:        r.MIME,
		Title:       r.Title,
		Text:        text,
		Description: r.Description,
		Priority:    r.Priority,
		FetchedAt:   r.FetchedAt,
		IndexedAt:   r.IndexedAt,
		Deleted:     r.Deleted,
	}
}
