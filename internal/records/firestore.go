package records

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rhyzero/file-organizer/internal/models"
)

// FirestoreStore keeps records in a Firestore collection. The document id is
// derived from the remote file id, so a second Create for the same file fails
// atomically on the server.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore wraps a client and collection name.
func NewFirestoreStore(client *firestore.Client, collection string) *FirestoreStore {
	return &FirestoreStore{client: client, collection: collection}
}

// DocumentID returns the Firestore document id used for a remote file.
func DocumentID(remoteFileID string) string {
	sum := sha256.Sum256([]byte(remoteFileID))
	return hex.EncodeToString(sum[:])
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) col() *firestore.CollectionRef {
	return s.client.Collection(s.collection)
}

func (s *FirestoreStore) Create(ctx context.Context, rec *models.ExtractionRecord) error {
	if rec.ExtractionTime.IsZero() {
		rec.ExtractionTime = time.Now().UTC()
	}
	id := DocumentID(rec.RemoteFileID)
	stored := *rec
	stored.ID = id

	if _, err := s.col().Doc(id).Create(ctx, stored); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return fmt.Errorf("%w: %s", models.ErrDuplicateRecord, rec.RemoteFileID)
		}
		return fmt.Errorf("%w: failed to create firestore document: %v", models.ErrPersistence, err)
	}
	rec.ID = id
	return nil
}

func (s *FirestoreStore) GetByID(ctx context.Context, id string) (*models.ExtractionRecord, error) {
	snap, err := s.col().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, models.ErrRecordNotFound
		}
		return nil, fmt.Errorf("%w: failed to get document %s: %v", models.ErrPersistence, id, err)
	}
	var rec models.ExtractionRecord
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("%w: failed to decode document %s: %v", models.ErrPersistence, id, err)
	}
	rec.ID = snap.Ref.ID
	return &rec, nil
}

func (s *FirestoreStore) GetByRemoteID(ctx context.Context, remoteFileID string) (*models.ExtractionRecord, error) {
	return s.GetByID(ctx, DocumentID(remoteFileID))
}

func (s *FirestoreStore) UpdateFileName(ctx context.Context, remoteFileID, fileName string) error {
	return s.update(ctx, DocumentID(remoteFileID), []firestore.Update{{Path: "fileName", Value: fileName}})
}

func (s *FirestoreStore) UpdateTags(ctx context.Context, id string, tags, snapshot *string) error {
	var updates []firestore.Update
	if tags != nil {
		updates = append(updates, firestore.Update{Path: "tags", Value: *tags})
	}
	if snapshot != nil {
		updates = append(updates, firestore.Update{Path: "tagClassification", Value: *snapshot})
	}
	if len(updates) == 0 {
		_, err := s.GetByID(ctx, id)
		return err
	}
	return s.update(ctx, id, updates)
}

func (s *FirestoreStore) UpdateExtraction(ctx context.Context, id string, text *string, st string) error {
	return s.update(ctx, id, []firestore.Update{
		{Path: "extractedText", Value: text},
		{Path: "status", Value: st},
		{Path: "extractionTime", Value: time.Now().UTC()},
	})
}

func (s *FirestoreStore) DeleteByRemoteID(ctx context.Context, remoteFileID string) error {
	ref := s.col().Doc(DocumentID(remoteFileID))
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		if status.Code(err) == codes.NotFound {
			return models.ErrRecordNotFound
		}
		return fmt.Errorf("%w: failed to delete document: %v", models.ErrPersistence, err)
	}
	return nil
}

// FindByTag and the other finders filter in process: Firestore has no substring queries.
func (s *FirestoreStore) FindByTag(ctx context.Context, tag string) ([]models.ExtractionRecord, error) {
	return s.FindByTags(ctx, []string{tag})
}

func (s *FirestoreStore) FindByTags(ctx context.Context, tags []string) ([]models.ExtractionRecord, error) {
	tags = nonEmpty(tags)
	return s.filter(ctx, s.col().Query, func(r *models.ExtractionRecord) bool {
		return MatchesTags(r.Tags, tags)
	})
}

func (s *FirestoreStore) FindByKeyword(ctx context.Context, keyword string) ([]models.ExtractionRecord, error) {
	return s.filter(ctx, s.col().Query, func(r *models.ExtractionRecord) bool {
		return MatchesKeyword(r, keyword)
	})
}

func (s *FirestoreStore) All(ctx context.Context) ([]models.ExtractionRecord, error) {
	return s.filter(ctx, s.col().Query, nil)
}

// ListFailed uses a range query on the status prefix.
func (s *FirestoreStore) ListFailed(ctx context.Context) ([]models.ExtractionRecord, error) {
	prefix := models.StatusFailedPrefix
	upper := prefix[:len(prefix)-1] + string(prefix[len(prefix)-1]+1)
	q := s.col().Where("status", ">=", prefix).Where("status", "<", upper)
	return s.filter(ctx, q, nil)
}

func (s *FirestoreStore) update(ctx context.Context, id string, updates []firestore.Update) error {
	if _, err := s.col().Doc(id).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return models.ErrRecordNotFound
		}
		return fmt.Errorf("%w: failed to update document %s: %v", models.ErrPersistence, id, err)
	}
	return nil
}

func (s *FirestoreStore) filter(ctx context.Context, q firestore.Query, keep func(*models.ExtractionRecord) bool) ([]models.ExtractionRecord, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []models.ExtractionRecord
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: failed to iterate documents: %v", models.ErrPersistence, err)
		}
		var rec models.ExtractionRecord
		if err := doc.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("%w: failed to decode document %s: %v", models.ErrPersistence, doc.Ref.ID, err)
		}
		rec.ID = doc.Ref.ID
		if keep == nil || keep(&rec) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExtractionTime.After(out[j].ExtractionTime)
	})
	return out, nil
}
