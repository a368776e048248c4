package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns every store implementation wired to a throwaway backend
func backends(t *testing.T) map[string]Store {
	t.Helper()
	res := map[string]Store{"memory": NewMemory()}

	local, err := NewLocal(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)
	res["local"] = local

	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "objects.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })
	res["sqlite"] = sqlite

	mr := miniredis.RunT(t)
	rds, err := NewRedis(context.Background(), RedisParams{Addr: mr.Addr(), Namespace: "test:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rds.Close() })
	res["redis"] = rds

	res["remote"] = newTestRemote(t, NewMemory())
	return res
}

func TestStore_PutGetDelete(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			obj, err := st.Put(ctx, "job-orders/one.json", []byte(`{"srNo":1}`), PutOpts{ContentType: "application/json"})
			require.NoError(t, err)
			assert.Equal(t, "job-orders/one.json", obj.Key)
			assert.NotEmpty(t, obj.Location)
			assert.Equal(t, int64(10), obj.Size)

			data, err := st.Get(ctx, "job-orders/one.json")
			require.NoError(t, err)
			assert.JSONEq(t, `{"srNo":1}`, string(data))

			require.NoError(t, st.Delete(ctx, "job-orders/one.json"))

			_, err = st.Get(ctx, "job-orders/one.json")
			assert.ErrorIs(t, err, ErrNotFound)

			err = st.Delete(ctx, "job-orders/one.json")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_Overwrite(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := st.Put(ctx, "config/last-sr-no.json", []byte(`{"lastSerial":1}`), PutOpts{})
			require.NoError(t, err)

			_, err = st.Put(ctx, "config/last-sr-no.json", []byte(`{"lastSerial":2}`), PutOpts{})
			require.ErrorIs(t, err, ErrExists)

			data, err := st.Get(ctx, "config/last-sr-no.json")
			require.NoError(t, err)
			assert.JSONEq(t, `{"lastSerial":1}`, string(data), "rejected put keeps old content")

			_, err = st.Put(ctx, "config/last-sr-no.json", []byte(`{"lastSerial":3}`), PutOpts{AllowOverwrite: true})
			require.NoError(t, err)

			data, err = st.Get(ctx, "config/last-sr-no.json")
			require.NoError(t, err)
			assert.JSONEq(t, `{"lastSerial":3}`, string(data))
		})
	}
}

func TestStore_List(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			empty, err := st.List(ctx, "job-orders/")
			require.NoError(t, err)
			assert.NotNil(t, empty)
			assert.Empty(t, empty)

			for _, k := range []string{"job-orders/b.json", "job-orders/a.json", "config/last-sr-no.json", "job-orders-old/c.json"} {
				_, err := st.Put(ctx, k, []byte("{}"), PutOpts{})
				require.NoError(t, err)
			}

			objs, err := st.List(ctx, "job-orders/")
			require.NoError(t, err)
			require.Len(t, objs, 2)
			assert.Equal(t, "job-orders/a.json", objs[0].Key)
			assert.Equal(t, "job-orders/b.json", objs[1].Key)
			assert.Equal(t, int64(2), objs[0].Size)

			all, err := st.List(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 4)
		})
	}
}

func TestStore_InvalidKey(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"", "/abs.json", "dir/", "a/../b.json", "a//b.json"} {
				_, err := st.Put(context.Background(), key, []byte("{}"), PutOpts{})
				assert.Error(t, err, "key %q", key)
			}
		})
	}
}

func TestStore_ConcurrentPut(t *testing.T) {
	const writers = 50
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var wg sync.WaitGroup
			errs := make(chan error, 2*writers)
			for i := range writers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					key := fmt.Sprintf("job-orders/job-order-100-%03d.json", i)
					if _, err := st.Put(ctx, key, []byte(`{"srNo":100}`), PutOpts{ContentType: "application/json"}); err != nil {
						errs <- fmt.Errorf("put %s: %w", key, err)
					}
					counter := fmt.Sprintf(`{"lastSerial":%d}`, i)
					if _, err := st.Put(ctx, "config/last-sr-no.json", []byte(counter), PutOpts{AllowOverwrite: true}); err != nil {
						errs <- fmt.Errorf("put counter: %w", err)
					}
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				assert.NoError(t, err)
			}

			objs, err := st.List(ctx, "job-orders/")
			require.NoError(t, err)
			assert.Len(t, objs, writers)
		})
	}
}

func TestLocal_Location(t *testing.T) {
	root := filepath.Join(t.TempDir(), "objects")
	st, err := NewLocal(root)
	require.NoError(t, err)

	obj, err := st.Put(context.Background(), "job-orders/one.json", []byte("{}"), PutOpts{})
	require.NoError(t, err)
	assert.Equal(t, "local://job-orders/one.json", obj.Location)

	objs, err := st.List(context.Background(), "job-orders/")
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, "local://job-orders/one.json", objs[0].Location)
	assert.NotContains(t, objs[0].Location, root)
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"job-orders/job-order-1-abc.json", false},
		{"config/last-sr-no.json", false},
		{"single", false},
		{"", true},
		{"/leading", true},
		{"trailing/", true},
		{"a/./b", true},
		{"a/../b", true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := validateKey(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
