package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/opweb/document"
	"github.com/jmcleod/opweb/internal/config"
	bboltstorage "github.com/jmcleod/opweb/storage/bbolt"
	"github.com/jmcleod/opweb/storage/file"
	"github.com/jmcleod/opweb/storage/memory"
)

var verifySecret = []byte("verify-secret")

func sealedRepo(t *testing.T) *memory.Repository {
	t.Helper()
	repo := memory.NewRepository()
	store, err := document.New(repo, verifySecret)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Write(&document.Tree{
		Users:    []document.Record{{"id": "user-1"}, {"id": "user-2"}},
		Sections: []document.Record{{"id": "sec-1"}},
		Settings: &document.Settings{Title: "Verified"},
	}))
	return repo
}

func TestVerify_EncryptedDocument(t *testing.T) {
	result := verifyDocument(sealedRepo(t), verifySecret, true)

	assert.True(t, result.Valid)
	assert.Equal(t, "encrypted", result.Format)
	assert.Equal(t, "Verified", result.Title)
	assert.Equal(t, 2, result.Counts["users"])
	assert.Equal(t, 1, result.Counts["sections"])
	assert.Equal(t, 0, result.Counts["messages"])
	assert.Empty(t, result.Error)
}

func TestVerify_WrongSecret(t *testing.T) {
	result := verifyDocument(sealedRepo(t), []byte("other"), true)
	assert.False(t, result.Valid)
	assert.Equal(t, "unreadable", result.Format)
	assert.Contains(t, result.Error, "corrupt")
}

func TestVerify_Tampered(t *testing.T) {
	repo := sealedRepo(t)
	data, err := repo.Load()
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, repo.Save(data))

	result := verifyDocument(repo, verifySecret, true)
	assert.False(t, result.Valid)
}

func TestVerify_Plaintext(t *testing.T) {
	repo := memory.NewRepository()
	require.NoError(t, repo.Save([]byte(`{"users":[{"id":"user-1"}]}`)))

	result := verifyDocument(repo, verifySecret, true)
	assert.True(t, result.Valid)
	assert.Equal(t, "plaintext", result.Format)
	assert.Equal(t, 1, result.Counts["users"])

	result = verifyDocument(repo, verifySecret, false)
	assert.False(t, result.Valid)
}

func TestVerify_MissingIsNotCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	repo := file.NewRepository(path)

	result := verifyDocument(repo, verifySecret, true)
	assert.False(t, result.Valid)
	assert.Equal(t, "missing", result.Format)
	assert.NoFileExists(t, path)
}

func verifyConfig(backend, path string) config.Config {
	cfg := config.Defaults()
	cfg.Backend = backend
	cfg.DataFile = path
	cfg.DataSecret = string(verifySecret)
	return cfg
}

func TestVerifySource_MissingFileNotCreated(t *testing.T) {
	for _, backend := range []string{config.BackendFile, config.BackendBbolt} {
		t.Run(backend, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "data", "opweb.db")

			result, err := verifySource(context.Background(), verifyConfig(backend, path))
			require.NoError(t, err)
			assert.False(t, result.Valid)
			assert.Equal(t, "missing", result.Format)
			assert.Equal(t, backend+":"+path, result.Source)
			assert.NoFileExists(t, path)
			assert.NoDirExists(t, filepath.Dir(path))
		})
	}
}

func TestVerifySource_BboltHeldByServer(t *testing.T) {
	prev := readOnlyLockTimeout
	readOnlyLockTimeout = 50 * time.Millisecond
	t.Cleanup(func() { readOnlyLockTimeout = prev })

	path := filepath.Join(t.TempDir(), "opweb.db")
	held, err := bboltstorage.NewRepositoryFromFile(path, nil)
	require.NoError(t, err)
	store, err := document.New(held, verifySecret)
	require.NoError(t, err)
	_, err = store.Read()
	require.NoError(t, err)
	store.Close()

	cfg := verifyConfig(config.BackendBbolt, path)
	done := make(chan error, 1)
	go func() {
		_, err := verifySource(context.Background(), cfg)
		done <- err
	}()
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("verify blocked on the database lock")
	}

	require.NoError(t, held.Close())
	result, err := verifySource(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "encrypted", result.Format)
}

func TestPrintHumanResult(t *testing.T) {
	var buf bytes.Buffer
	printHumanResult(&buf, verifyResult{
		Source: "file:./data/database.json",
		Format: "encrypted",
		Valid:  true,
		Title:  "OP.WEB",
		Counts: map[string]int{"users": 2, "bans": 0},
	})
	out := buf.String()
	assert.Contains(t, out, "file:./data/database.json")
	assert.Contains(t, out, "Result: VALID")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("bans")), bytes.Index(buf.Bytes(), []byte("users")))

	buf.Reset()
	printHumanResult(&buf, verifyResult{Format: "unreadable", Error: "corrupt or foreign data"})
	assert.Contains(t, buf.String(), "INVALID (corrupt or foreign data)")
}

func TestPrintJSONResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSONResult(&buf, verifyResult{Source: "memory", Format: "missing"}))
	assert.JSONEq(t, `{"source":"memory","format":"missing","valid":false}`, buf.String())
}
