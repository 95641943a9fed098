package chromem

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	chromem "github.com/philippgille/chromem-go"
	"github.com/poiesic/dossier/core"
	"github.com/poiesic/dossier/storage"
)

const (
	collectionName = "entries"
	manifestFile   = "manifest.json"

	// Reserved metadata keys carrying entry fields alongside user metadata.
	// core.ValidateDocument keeps documents from using the prefix.
	metaSeq        = core.ReservedMetaPrefix + "seq"
	metaInsertedAt = core.ReservedMetaPrefix + "inserted_at"
	metaVector     = core.ReservedMetaPrefix + "vector"
)

// Repository implements storage.EntryRepository on a chromem-go collection.
// Entries are stored as chromem documents keyed by zero-padded sequence
// number; the manifest lives in a JSON file next to the collection.
//
// chromem persists each document as it is added, so the manifest is written
// last and acts as the commit point: documents beyond manifest.Count are
// ignored on replay and overwritten by the next append.
type Repository struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	path       string
	manifest   *core.Manifest
	closed     bool
}

var _ storage.EntryRepository = (*Repository)(nil)

// NewRepository opens or creates a persistent repository under path.
func NewRepository(path string) (*Repository, error) {
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("chromem: opening %s: %w", path, err)
	}
	repo, err := newRepository(db, path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(path, manifestFile))
	switch {
	case err == nil:
		manifest, err := decodeManifest(data)
		if err != nil {
			return nil, err
		}
		repo.manifest = manifest
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("chromem: reading manifest: %w", err)
	}
	return repo, nil
}

// NewMemoryRepository creates a repository that keeps everything in memory.
func NewMemoryRepository() (*Repository, error) {
	return newRepository(chromem.NewDB(), "")
}

func newRepository(db *chromem.DB, path string) (*Repository, error) {
	// Vectors always come from the index; chromem must never embed on its own.
	embed := func(context.Context, string) ([]float32, error) {
		return nil, errors.New("chromem: embeddings are supplied by the caller")
	}
	collection, err := db.GetOrCreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("chromem: create collection: %w", err)
	}
	return &Repository{db: db, collection: collection, path: path}, nil
}

func (r *Repository) LoadManifest(ctx context.Context) (*core.Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, storage.ErrStorageClosed
	}
	if r.manifest == nil {
		return nil, storage.ErrNotFound
	}
	m := *r.manifest
	return &m, nil
}

func (r *Repository) AppendEntries(ctx context.Context, manifest *core.Manifest, entries ...*core.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if manifest == nil {
		return errors.New("chromem: manifest is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return storage.ErrStorageClosed
	}

	var stored uint64
	if r.manifest != nil {
		stored = r.manifest.Count
	}
	if manifest.Count != stored+uint64(len(entries)) {
		return fmt.Errorf("%w: manifest count %d, stored %d, appending %d",
			storage.ErrSequenceOrder, manifest.Count, stored, len(entries))
	}

	docs := make([]chromem.Document, len(entries))
	for i, entry := range entries {
		if entry.Seq != stored+uint64(i)+1 {
			return fmt.Errorf("%w: entry %d has seq %d, want %d",
				storage.ErrSequenceOrder, i, entry.Seq, stored+uint64(i)+1)
		}
		docs[i] = toDocument(entry)
	}

	if len(docs) > 0 {
		if err := r.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return fmt.Errorf("chromem: adding entries: %w", err)
		}
	}

	if r.path != "" {
		if err := writeManifest(r.path, manifest); err != nil {
			return err
		}
	}
	m := *manifest
	r.manifest = &m
	return nil
}

func (r *Repository) Entries(ctx context.Context, fn func(*core.Entry) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return storage.ErrStorageClosed
	}
	if r.manifest == nil {
		return nil
	}

	for seq := uint64(1); seq <= r.manifest.Count; seq++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc, err := r.collection.GetByID(ctx, docID(seq))
		if err != nil {
			return fmt.Errorf("%w: entry %d: %w", storage.ErrTruncatedData, seq, err)
		}
		entry, err := fromDocument(doc)
		if err != nil {
			return fmt.Errorf("chromem: reading entry %d: %w", seq, err)
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return 0, storage.ErrStorageClosed
	}
	if r.manifest == nil {
		return 0, nil
	}
	return int(r.manifest.Count), nil
}

// Sync is a no-op: chromem writes each document file synchronously and the
// manifest is renamed into place on every append.
func (r *Repository) Sync() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return storage.ErrStorageClosed
	}
	return nil
}

func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func docID(seq uint64) string {
	return fmt.Sprintf("%020d", seq)
}

func toDocument(entry *core.Entry) chromem.Document {
	meta := make(map[string]string, len(entry.Document.Metadata)+3)
	for k, v := range entry.Document.Metadata {
		meta[k] = v
	}
	meta[metaSeq] = strconv.FormatUint(entry.Seq, 10)
	meta[metaInsertedAt] = entry.InsertedAt.UTC().Format(time.RFC3339Nano)
	// chromem renormalizes stored embeddings, so the exact vector rides in metadata.
	meta[metaVector] = base64.StdEncoding.EncodeToString(storage.EncodeVector(entry.Vector))

	return chromem.Document{
		ID:        docID(entry.Seq),
		Metadata:  meta,
		Embedding: collectionEmbedding(entry.Vector),
		Content:   entry.Document.Content,
	}
}

func fromDocument(doc chromem.Document) (*core.Entry, error) {
	seq, err := strconv.ParseUint(doc.Metadata[metaSeq], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad seq: %w", storage.ErrSerializationFailed, err)
	}
	insertedAt, err := time.Parse(time.RFC3339Nano, doc.Metadata[metaInsertedAt])
	if err != nil {
		return nil, fmt.Errorf("%w: bad timestamp: %w", storage.ErrSerializationFailed, err)
	}
	raw, err := base64.StdEncoding.DecodeString(doc.Metadata[metaVector])
	if err != nil {
		return nil, fmt.Errorf("%w: bad vector: %w", storage.ErrSerializationFailed, err)
	}
	vector, err := storage.DecodeVector(raw)
	if err != nil {
		return nil, err
	}

	var meta map[string]string
	for k, v := range doc.Metadata {
		if strings.HasPrefix(k, core.ReservedMetaPrefix) {
			continue
		}
		if meta == nil {
			meta = make(map[string]string, len(doc.Metadata))
		}
		meta[k] = v
	}

	return &core.Entry{
		Seq:        seq,
		Vector:     vector,
		Document:   core.NewDocument(doc.Content, meta),
		InsertedAt: insertedAt,
	}, nil
}

// collectionEmbedding returns the vector chromem indexes. A zero vector cannot
// be normalized, so it is replaced by a unit placeholder.
func collectionEmbedding(v []float32) []float32 {
	for _, x := range v {
		if x != 0 {
			return v
		}
	}
	placeholder := make([]float32, max(len(v), 1))
	placeholder[0] = 1
	return placeholder
}

func decodeManifest(data []byte) (*core.Manifest, error) {
	var manifest core.Manifest
	if err := sonic.ConfigStd.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("%w: %w: manifest: %w", storage.ErrCorrupt, storage.ErrSerializationFailed, err)
	}
	if manifest.Version == 0 || manifest.Dimension <= 0 {
		return nil, fmt.Errorf("%w: %w: manifest missing version or dimension",
			storage.ErrCorrupt, storage.ErrSerializationFailed)
	}
	return &manifest, nil
}

func writeManifest(dir string, manifest *core.Manifest) error {
	data, err := sonic.ConfigStd.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: manifest: %w", storage.ErrSerializationFailed, err)
	}
	tmp, err := os.CreateTemp(dir, manifestFile+".*")
	if err != nil {
		return fmt.Errorf("chromem: writing manifest: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("chromem: writing manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("chromem: syncing manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("chromem: writing manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, manifestFile)); err != nil {
		return fmt.Errorf("chromem: installing manifest: %w", err)
	}
	return nil
}
