package joborder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-pkgz/syncs"
	log "github.com/go-pkgz/lgr"
	"github.com/google/uuid"

	"github.com/umputun/jobord/app/store"
)

// RecordsPrefix is the store prefix shared by all job order objects
const RecordsPrefix = "job-orders/"

const defaultFetchConcurrency = 8

// SerialTracker receives the serial number of every created record
type SerialTracker interface {
	SetLastSerial(ctx context.Context, n int) error
}

// Repository creates, lists and deletes job orders, one store object per record
type Repository struct {
	store       store.Store
	counter     SerialTracker
	concurrency int
	now         func() time.Time
	newID       func() (string, error)
}

// NewRepository makes a repository on top of the store. Counter gets the serial of each created record.
func NewRepository(st store.Store, counter SerialTracker) *Repository {
	return &Repository{
		store:       st,
		counter:     counter,
		concurrency: defaultFetchConcurrency,
		now:         time.Now,
		newID:       newRecordID,
	}
}

// List returns all records, newest first. Objects failing to load are logged and skipped,
// only a failure to enumerate the store or a canceled context is returned.
func (r *Repository) List(ctx context.Context) ([]Record, error) {
	objs, err := r.store.List(ctx, RecordsPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list job orders: %w", err)
	}

	res := make([]Record, 0, len(objs))
	var mu sync.Mutex
	gr := syncs.NewSizedGroup(r.concurrency, syncs.Context(ctx))
	for _, obj := range objs {
		gr.Go(func(ctx context.Context) {
			rec, err := r.load(ctx, obj.Key)
			if err != nil {
				log.Printf("[WARN] skip job order %s: %v", obj.Key, err)
				return
			}
			mu.Lock()
			res = append(res, rec)
			mu.Unlock()
		})
	}
	gr.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to list job orders: %w", err)
	}

	sortRecords(res)
	return res, nil
}

// Search returns records with serial number matching query, see Record.MatchSerial
func (r *Repository) Search(ctx context.Context, query string) ([]Record, error) {
	recs, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return recs, nil
	}
	res := make([]Record, 0, len(recs))
	for _, rec := range recs {
		if rec.MatchSerial(query) {
			res = append(res, rec)
		}
	}
	return res, nil
}

// Create stores a new record with fresh id and creation time, then moves the serial counter to its
// serial number. Counter failure is logged only, the record is already stored at this point.
func (r *Repository) Create(ctx context.Context, rec Record) (Created, error) {
	if err := rec.validate(); err != nil {
		return Created{}, err
	}

	id, err := r.newID()
	if err != nil {
		return Created{}, fmt.Errorf("failed to make job order id: %w", err)
	}
	rec.ID = id
	rec.CreatedAt = r.now().UTC()

	data, err := json.Marshal(rec)
	if err != nil {
		return Created{}, fmt.Errorf("failed to marshal job order %d: %w", rec.SrNo, err)
	}

	key := recordKey(rec.SrNo, id)
	obj, err := r.store.Put(ctx, key, data, store.PutOpts{ContentType: "application/json"})
	if err != nil {
		return Created{}, fmt.Errorf("failed to save job order %d: %w", rec.SrNo, err)
	}
	log.Printf("[INFO] job order %s saved as %s", rec.Serial(), key)

	if r.counter != nil {
		if err := r.counter.SetLastSerial(ctx, rec.SrNo); err != nil {
			log.Printf("[WARN] job order %s saved, but serial counter not updated: %v", rec.Serial(), err)
		}
	}
	return Created{ID: id, Location: obj.Location}, nil
}

// Get returns the record with the given id
func (r *Repository) Get(ctx context.Context, id string) (Record, error) {
	key, err := r.findKey(ctx, id)
	if err != nil {
		return Record{}, err
	}
	rec, err := r.load(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Record{}, fmt.Errorf("job order %s: %w", id, ErrNotFound)
		}
		return Record{}, err
	}
	return rec, nil
}

// DeleteByID removes the record with the given id, ErrNotFound if there is no such record
func (r *Repository) DeleteByID(ctx context.Context, id string) error {
	key, err := r.findKey(ctx, id)
	if err != nil {
		return err
	}
	if err := r.store.Delete(ctx, key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("job order %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to delete job order %s: %w", id, err)
	}
	log.Printf("[INFO] job order %s deleted, key %s", id, key)
	return nil
}

// findKey scans record keys for the one holding id. Linear, fine for the expected volume;
// a key-by-id index would be needed for large stores.
func (r *Repository) findKey(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("empty id: %w", ErrNotFound)
	}
	objs, err := r.store.List(ctx, RecordsPrefix)
	if err != nil {
		return "", fmt.Errorf("failed to list job orders: %w", err)
	}
	suffix := "-" + id + ".json"
	for _, obj := range objs {
		if strings.HasSuffix(obj.Key, suffix) {
			return obj.Key, nil
		}
	}
	return "", fmt.Errorf("job order %s: %w", id, ErrNotFound)
}

func (r *Repository) load(ctx context.Context, key string) (Record, error) {
	data, err := r.store.Get(ctx, key)
	if err != nil {
		return Record{}, fmt.Errorf("failed to fetch %s: %w", key, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return rec, nil
}

// recordKey makes the store key of a record. Id is part of the key so records sharing
// a serial number never collide.
func recordKey(srNo int, id string) string {
	return fmt.Sprintf("%sjob-order-%d-%s.json", RecordsPrefix, srNo, id)
}

// newRecordID makes time ordered random id (uuid v7)
func newRecordID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
