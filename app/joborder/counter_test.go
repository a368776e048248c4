package joborder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/jobord/app/store"
)

func TestCounter_LastSerial(t *testing.T) {
	ctx := context.Background()

	t.Run("never written", func(t *testing.T) {
		c := Counter{Store: store.NewMemory()}
		assert.Equal(t, 0, c.LastSerial(ctx))
		assert.Equal(t, 1, c.NextSerial(ctx))
	})

	t.Run("set and read back", func(t *testing.T) {
		c := Counter{Store: store.NewMemory()}
		require.NoError(t, c.SetLastSerial(ctx, 42))
		assert.Equal(t, 42, c.LastSerial(ctx))
		assert.Equal(t, 43, c.NextSerial(ctx))
	})

	t.Run("lower value overwrites", func(t *testing.T) {
		c := Counter{Store: store.NewMemory()}
		require.NoError(t, c.SetLastSerial(ctx, 42))
		require.NoError(t, c.SetLastSerial(ctx, 7))
		assert.Equal(t, 7, c.LastSerial(ctx))
	})

	t.Run("legacy document", func(t *testing.T) {
		st := store.NewMemory()
		_, err := st.Put(ctx, CounterKey, []byte(`{"lastSrNo":17}`), store.PutOpts{})
		require.NoError(t, err)
		c := Counter{Store: st}
		assert.Equal(t, 17, c.LastSerial(ctx))

		require.NoError(t, c.SetLastSerial(ctx, 18), "legacy object can be overwritten")
		assert.Equal(t, 18, c.LastSerial(ctx))
	})

	t.Run("broken document", func(t *testing.T) {
		st := store.NewMemory()
		_, err := st.Put(ctx, CounterKey, []byte(`not json`), store.PutOpts{})
		require.NoError(t, err)
		assert.Equal(t, 0, (&Counter{Store: st}).LastSerial(ctx))
	})

	t.Run("empty document", func(t *testing.T) {
		st := store.NewMemory()
		_, err := st.Put(ctx, CounterKey, []byte(`{}`), store.PutOpts{})
		require.NoError(t, err)
		assert.Equal(t, 0, (&Counter{Store: st}).LastSerial(ctx))
	})

	t.Run("store failure", func(t *testing.T) {
		st := &failingStore{Store: store.NewMemory(), getErr: errors.New("connection refused")}
		assert.Equal(t, 0, (&Counter{Store: st}).LastSerial(ctx))
	})
}

func TestCounter_SetLastSerialFailure(t *testing.T) {
	st := &failingStore{Store: store.NewMemory(), putErr: errors.New("read only")}
	err := (&Counter{Store: st}).SetLastSerial(context.Background(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read only")
}

// failingStore wraps a store and injects errors into selected operations
type failingStore struct {
	store.Store
	listErr, getErr, putErr, deleteErr error
	getErrKeys                         map[string]bool // fail Get only for these keys, all if empty
	putErrKey                          string          // fail Put only for this key, all if empty
}

func (f *failingStore) List(ctx context.Context, prefix string) ([]store.Object, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.Store.List(ctx, prefix)
}

func (f *failingStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.getErr != nil && (len(f.getErrKeys) == 0 || f.getErrKeys[key]) {
		return nil, f.getErr
	}
	return f.Store.Get(ctx, key)
}

func (f *failingStore) Put(ctx context.Context, key string, data []byte, opts store.PutOpts) (store.Object, error) {
	if f.putErr != nil && (f.putErrKey == "" || f.putErrKey == key) {
		return store.Object{}, f.putErr
	}
	return f.Store.Put(ctx, key, data, opts)
}

func (f *failingStore) Delete(ctx context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Store.Delete(ctx, key)
}
