package storage

import (
	"context"

	log "rinkserver/cloudlog"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// firestoreStore implements Store on top of a Firestore client.
type firestoreStore struct {
	client *firestore.Client
}

// NewFirestore wraps an existing Firestore client as a Store.
func NewFirestore(client *firestore.Client) Store {
	return &firestoreStore{client: client}
}

// OpenFirestore builds a Firebase app for projectID and returns a Store over
// its Firestore database, along with the app for auth use.
func OpenFirestore(ctx context.Context, projectID string) (Store, *firebase.App, error) {
	app, err := firebase.NewApp(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	return NewFirestore(client), app, nil
}

func (fs *firestoreStore) docRef(path string) (*firestore.DocumentRef, error) {
	parts, err := SplitPath(path, true)
	if err != nil {
		return nil, err
	}
	ref := fs.client.Collection(parts[0]).Doc(parts[1])
	for i := 2; i < len(parts); i += 2 {
		ref = ref.Collection(parts[i]).Doc(parts[i+1])
	}
	return ref, nil
}

func (fs *firestoreStore) collRef(path string) (*firestore.CollectionRef, error) {
	parts, err := SplitPath(path, false)
	if err != nil {
		return nil, err
	}
	coll := fs.client.Collection(parts[0])
	for i := 1; i < len(parts); i += 2 {
		coll = coll.Doc(parts[i]).Collection(parts[i+1])
	}
	return coll, nil
}

// Get silences a codes.NotFound error because that info is reflected in the
// bool return.
func (fs *firestoreStore) Get(ctx context.Context, path string) (Doc, bool, error) {
	ref, err := fs.docRef(path)
	if err != nil {
		return nil, false, err
	}
	snapshot, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	if !snapshot.Exists() {
		return nil, false, nil
	}
	return snapshot.Data(), true, nil
}

func (fs *firestoreStore) GetAll(ctx context.Context, path string) (map[string]Doc, error) {
	coll, err := fs.collRef(path)
	if err != nil {
		return nil, err
	}
	snapshots, err := coll.Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	docs := map[string]Doc{}
	for _, snapshot := range snapshots {
		if !snapshot.Exists() {
			continue
		}
		docs[snapshot.Ref.ID] = snapshot.Data()
	}
	return docs, nil
}

func (fs *firestoreStore) Set(ctx context.Context, path string, data Doc) error {
	ref, err := fs.docRef(path)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, translateTombstones(data))
	return err
}

func (fs *firestoreStore) Merge(ctx context.Context, path string, data Doc) error {
	ref, err := fs.docRef(path)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, translateTombstones(data), firestore.MergeAll)
	return err
}

func (fs *firestoreStore) Delete(ctx context.Context, path string) error {
	ref, err := fs.docRef(path)
	if err != nil {
		return err
	}
	_, err = ref.Delete(ctx)
	return err
}

func (fs *firestoreStore) Batch() Batch {
	return &firestoreBatch{store: fs, batch: fs.client.Batch()}
}

// firestoreBatch wraps a WriteBatch. Path errors are deferred to Commit so
// callers can chain writes without checking each one.
type firestoreBatch struct {
	store *firestoreStore
	batch *firestore.WriteBatch
	err   error
}

func (fb *firestoreBatch) Set(path string, data Doc) {
	ref, err := fb.store.docRef(path)
	if err != nil {
		fb.fail(err)
		return
	}
	fb.batch.Set(ref, translateTombstones(data))
}

func (fb *firestoreBatch) Merge(path string, data Doc) {
	ref, err := fb.store.docRef(path)
	if err != nil {
		fb.fail(err)
		return
	}
	fb.batch.Set(ref, translateTombstones(data), firestore.MergeAll)
}

func (fb *firestoreBatch) Delete(path string) {
	ref, err := fb.store.docRef(path)
	if err != nil {
		fb.fail(err)
		return
	}
	fb.batch.Delete(ref)
}

func (fb *firestoreBatch) fail(err error) {
	if fb.err == nil {
		fb.err = err
	}
	log.Printf("batch write dropped: %v", err)
}

func (fb *firestoreBatch) Commit(ctx context.Context) error {
	if fb.err != nil {
		return fb.err
	}
	_, err := fb.batch.Commit(ctx)
	return err
}

// translateTombstones rewrites Tombstone sentinels into firestore.Delete so
// a Merge removes exactly those nested fields. The input is not modified.
func translateTombstones(data Doc) Doc {
	out := make(Doc, len(data))
	for key, value := range data {
		switch v := value.(type) {
		case tombstone:
			out[key] = firestore.Delete
		case Doc:
			out[key] = translateTombstones(v)
		default:
			out[key] = value
		}
	}
	return out
}
