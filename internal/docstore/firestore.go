package docstore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore adapts a Cloud Firestore database to the Store contract.
// This is the production mediating store: the mobile app writes order and
// catalog documents into the same database, and request envelopes travel
// through a dedicated collection.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore connects to the Firestore database of the given project.
// Credentials come from the ambient environment (ADC).
func NewFirestore(ctx context.Context, projectID string) (*Firestore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("connect firestore project %s: %w", projectID, err)
	}
	return &Firestore{client: client}, nil
}

// Close releases the underlying client.
func (f *Firestore) Close() error {
	return f.client.Close()
}

// Create implements Store. The server assigns created_at via the
// ServerTimestamp sentinel so clocks across client machines don't matter.
func (f *Firestore) Create(ctx context.Context, collection, id string, data map[string]any) error {
	doc := make(map[string]any, len(data)+1)
	for k, v := range data {
		doc[k] = v
	}
	doc["created_at"] = firestore.ServerTimestamp

	_, err := f.client.Collection(collection).Doc(id).Create(ctx, doc)
	if status.Code(err) == codes.AlreadyExists {
		return ErrExists
	}
	if err != nil {
		return fmt.Errorf("create %s/%s: %w", collection, id, err)
	}
	return nil
}

// Get implements Store.
func (f *Firestore) Get(ctx context.Context, collection, id string) (Document, error) {
	snap, err := f.client.Collection(collection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return snapToDocument(snap), nil
}

// Update implements Store. Field updates on a single document are atomic
// in Firestore, which is all the envelope protocol requires.
func (f *Firestore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}

	_, err := f.client.Collection(collection).Doc(id).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete implements Store. Firestore deletes are idempotent already.
func (f *Firestore) Delete(ctx context.Context, collection, id string) error {
	if _, err := f.client.Collection(collection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Watch implements Store using Firestore snapshot listeners. The first
// snapshot reports every existing document as an add, which gives a
// restarting broker its backlog replay.
func (f *Firestore) Watch(ctx context.Context, collection string) (<-chan Event, error) {
	out := make(chan Event, 256)
	snaps := f.client.Collection(collection).Snapshots(ctx)

	go func() {
		defer close(out)
		defer snaps.Stop()
		for {
			snap, err := snaps.Next()
			if err == iterator.Done {
				return
			}
			if err != nil {
				// Stream failure ends the watch; the caller decides
				// whether to resubscribe.
				return
			}
			for _, change := range snap.Changes {
				ev := Event{Doc: snapToDocument(change.Doc)}
				switch change.Kind {
				case firestore.DocumentAdded:
					ev.Kind = EventAdded
				case firestore.DocumentModified:
					ev.Kind = EventModified
				case firestore.DocumentRemoved:
					ev.Kind = EventRemoved
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func snapToDocument(snap *firestore.DocumentSnapshot) Document {
	return Document{
		ID:         snap.Ref.ID,
		Data:       snap.Data(),
		CreateTime: snap.CreateTime,
	}
}
