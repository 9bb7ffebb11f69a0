package document

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/opweb/storage"
	"github.com/jmcleod/opweb/storage/file"
	"github.com/jmcleod/opweb/storage/memory"
)

var testSecret = []byte("test-data-secret")

func newTestStore(t *testing.T, repo storage.Repository, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	s, err := New(repo, testSecret, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func sampleTree() *Tree {
	return &Tree{
		Users: []Record{
			{"id": "user-1", "nickname": "alice", "role": "admin", "reputation": float64(3), "favorites": []any{"thread-1"}},
			{"id": "user-2", "nickname": "боб", "role": "user", "banned": false},
		},
		Sections: []Record{{"id": "sec-1", "title": "General", "meta": map[string]any{"order": float64(1)}}},
		Threads:  []Record{{"id": "thread-1", "sectionId": "sec-1", "locked": true}},
		Settings: &Settings{Title: "My forum", Logo: "/logo.png"},
	}
}

func TestStore_RoundTrip(t *testing.T) {
	backends := map[string]func(t *testing.T) storage.Repository{
		"memory": func(t *testing.T) storage.Repository { return memory.NewRepository() },
		"file": func(t *testing.T) storage.Repository {
			return file.NewRepository(filepath.Join(t.TempDir(), "database.json"))
		},
	}
	for name, newRepo := range backends {
		t.Run(name, func(t *testing.T) {
			s := newTestStore(t, newRepo(t))
			in := sampleTree()
			require.NoError(t, s.Write(in))

			got, err := s.Read()
			require.NoError(t, err)

			want := sampleTree()
			want.Materialize()
			assert.Equal(t, want, got)
		})
	}
}

func TestStore_WriteDoesNotMutateCaller(t *testing.T) {
	s := newTestStore(t, memory.NewRepository())
	in := &Tree{}
	require.NoError(t, s.Write(in))
	assert.Nil(t, in.Users)
	assert.Nil(t, in.Settings)
}

func TestStore_WriteIsEncrypted(t *testing.T) {
	repo := memory.NewRepository()
	s := newTestStore(t, repo)
	require.NoError(t, s.Write(sampleTree()))

	raw, err := repo.Load()
	require.NoError(t, err)
	assert.True(t, storage.HasMagic(raw))
	assert.NotContains(t, string(raw), "alice")

	// A fresh nonce per write gives different bytes for the same tree.
	require.NoError(t, s.Write(sampleTree()))
	raw2, _ := repo.Load()
	assert.NotEqual(t, raw, raw2)
}

func TestStore_BootstrapsMissingDocument(t *testing.T) {
	repo := memory.NewRepository()
	s := newTestStore(t, repo)

	tree, err := s.Read()
	require.NoError(t, err)
	assert.Empty(t, tree.Users)
	assert.NotNil(t, tree.Users)
	assert.NotNil(t, tree.ArchivedThreads)
	require.NotNil(t, tree.Settings)
	assert.Equal(t, DefaultSettings(), *tree.Settings)

	raw, err := repo.Load()
	require.NoError(t, err, "bootstrap should persist the default tree")
	assert.True(t, storage.HasMagic(raw))
}

func TestStore_MaterializesMissingCollections(t *testing.T) {
	repo := memory.NewRepository()
	require.NoError(t, repo.Save([]byte(`{"users":[{"id":"user-1"}]}`)))
	s := newTestStore(t, repo)

	tree, err := s.Read()
	require.NoError(t, err)
	assert.Len(t, tree.Users, 1)
	for name, n := range tree.Counts() {
		if name != "users" {
			assert.Equal(t, 0, n, name)
		}
	}
	assert.NotNil(t, tree.Messages)
	assert.NotNil(t, tree.Chats)
	assert.Equal(t, DefaultTitle, tree.Settings.Title)
}

func TestStore_LegacyPlaintext(t *testing.T) {
	legacy := []byte(`{
  "users": [{"id": "user-1", "nickname": "tegmore"}],
  "sections": [],
  "settings": {"title": "Legacy", "logo": ""}
}`)

	t.Run("AcceptedAndSealedOnWrite", func(t *testing.T) {
		repo := memory.NewRepository()
		require.NoError(t, repo.Save(legacy))
		s := newTestStore(t, repo)

		tree, err := s.Read()
		require.NoError(t, err)
		assert.Equal(t, "Legacy", tree.Settings.Title)
		assert.Equal(t, "tegmore", tree.Users[0]["nickname"])

		require.NoError(t, s.Write(tree))
		raw, _ := repo.Load()
		assert.True(t, storage.HasMagic(raw))
	})

	t.Run("RejectedWhenDisabled", func(t *testing.T) {
		repo := memory.NewRepository()
		require.NoError(t, repo.Save(legacy))
		s := newTestStore(t, repo, WithPlaintextFallback(false))

		_, err := s.Read()
		assert.ErrorIs(t, err, ErrPlaintextDisabled)
	})

	t.Run("NonObjectJSONIsCorrupt", func(t *testing.T) {
		repo := memory.NewRepository()
		require.NoError(t, repo.Save([]byte(`[1,2,3]`)))
		s := newTestStore(t, repo)

		_, err := s.Read()
		assert.ErrorIs(t, err, storage.ErrCorrupt)
	})
}

func TestStore_TamperDetection(t *testing.T) {
	repo := memory.NewRepository()
	s := newTestStore(t, repo)
	require.NoError(t, s.Write(sampleTree()))
	sealed, err := repo.Load()
	require.NoError(t, err)

	for i := range sealed {
		tampered := append([]byte(nil), sealed...)
		tampered[i] ^= 0x01
		require.NoError(t, repo.Save(tampered))

		tree, err := s.Read()
		require.Nil(t, tree, "offset %d returned a tree", i)
		require.ErrorIs(t, err, storage.ErrCorrupt, "offset %d", i)
	}
}

func TestStore_CorruptInputs(t *testing.T) {
	cases := map[string][]byte{
		"empty":     {},
		"garbage":   []byte("not json and not an envelope"),
		"truncated": append([]byte("OPWEB1"), make([]byte, 10)...),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			repo := memory.NewRepository()
			require.NoError(t, repo.Save(data))
			s := newTestStore(t, repo)
			_, err := s.Read()
			assert.ErrorIs(t, err, storage.ErrCorrupt)
		})
	}
}

func TestStore_WrongSecret(t *testing.T) {
	repo := memory.NewRepository()
	s := newTestStore(t, repo)
	require.NoError(t, s.Write(sampleTree()))

	other, err := New(repo, []byte("another-secret"), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	defer other.Close()

	_, err = other.Read()
	assert.ErrorIs(t, err, storage.ErrCorrupt)
}

func TestStore_Update(t *testing.T) {
	t.Run("AppliesAndPersists", func(t *testing.T) {
		s := newTestStore(t, memory.NewRepository())
		err := s.Update(func(tree *Tree) error {
			tree.Sections = append(tree.Sections, Record{"id": "sec-1"})
			return nil
		})
		require.NoError(t, err)

		tree, err := s.Read()
		require.NoError(t, err)
		require.Len(t, tree.Sections, 1)
		assert.Equal(t, "sec-1", tree.Sections[0]["id"])
	})

	t.Run("AbortsOnError", func(t *testing.T) {
		s := newTestStore(t, memory.NewRepository())
		boom := errors.New("boom")
		err := s.Update(func(tree *Tree) error {
			tree.Sections = append(tree.Sections, Record{"id": "sec-1"})
			return boom
		})
		assert.Same(t, boom, err)

		tree, err := s.Read()
		require.NoError(t, err)
		assert.Empty(t, tree.Sections)
	})

	t.Run("ConcurrentUpdatesAreNotLost", func(t *testing.T) {
		s := newTestStore(t, memory.NewRepository())
		const n = 25
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := s.Update(func(tree *Tree) error {
					tree.Posts = append(tree.Posts, Record{"id": fmt.Sprintf("post-%d", i)})
					return nil
				})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		tree, err := s.Read()
		require.NoError(t, err)
		assert.Len(t, tree.Posts, n)
	})
}

type failingRepo struct {
	storage.Repository
	err error
}

func (r failingRepo) Save([]byte) error { return r.err }

func TestStore_SaveErrorPropagates(t *testing.T) {
	diskFull := errors.New("no space left on device")
	s := newTestStore(t, failingRepo{Repository: memory.NewRepository(), err: diskFull})

	err := s.Write(sampleTree())
	assert.ErrorIs(t, err, diskFull)

	_, err = s.Read()
	assert.ErrorIs(t, err, diskFull, "bootstrap write failure should surface")
}

func TestStore_Close(t *testing.T) {
	s, err := New(memory.NewRepository(), testSecret)
	require.NoError(t, err)
	s.Close()

	_, err = s.Read()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Write(NewTree()), ErrClosed)
}

func TestNewValidation(t *testing.T) {
	_, err := New(memory.NewRepository(), nil)
	assert.Error(t, err)

	_, err = New(nil, testSecret)
	assert.Error(t, err)
}

func TestDeriveKey(t *testing.T) {
	k1, err := DeriveKey(testSecret)
	require.NoError(t, err)
	k2, err := DeriveKey(testSecret)
	require.NoError(t, err)
	assert.Len(t, k1, 32)
	assert.Equal(t, k1, k2)

	k3, _ := DeriveKey([]byte("different"))
	assert.NotEqual(t, k1, k3)
}

func TestStore_Inspect(t *testing.T) {
	repo := memory.NewRepository()
	s := newTestStore(t, repo)

	_, _, err := s.Inspect()
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = repo.Load()
	assert.ErrorIs(t, err, storage.ErrNotFound, "inspect must not bootstrap")

	require.NoError(t, repo.Save([]byte(`{"users":[{"id":"user-1"}]}`)))
	tree, sealed, err := s.Inspect()
	require.NoError(t, err)
	assert.False(t, sealed)
	assert.Equal(t, 1, tree.Counts()["users"])

	require.NoError(t, s.Write(tree))
	tree, sealed, err = s.Inspect()
	require.NoError(t, err)
	assert.True(t, sealed)
	assert.NotNil(t, tree.Posts)
}
