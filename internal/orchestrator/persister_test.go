package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"genqueue/internal/domain"
	"genqueue/internal/providers"
	"genqueue/internal/storage"
)

type memStore struct {
	puts map[string][]byte
	err  error
}

func (m *memStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if m.puts == nil {
		m.puts = map[string][]byte{}
	}
	m.puts[key] = data
	return "https://assets.test/" + key, nil
}

var _ storage.Store = (*memStore)(nil)

func TestPersisterFetchesAndSniffsContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(pngBytes)
	}))
	defer srv.Close()
	store := &memStore{}
	p := NewPersister(store, srv.Client(), 1024)

	asset, err := p.Persist(context.Background(), domain.Job{ID: "j1", WorkspaceID: "w1"}, providers.Succeeded(srv.URL))
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if asset.ContentType != "image/png" || asset.StorageKey != "generated/w1/j1.png" || asset.Bytes != int64(len(pngBytes)) {
		t.Fatalf("asset = %+v", asset)
	}
	if asset.URL != "https://assets.test/generated/w1/j1.png" || asset.ID == "" {
		t.Fatalf("asset url/id = %q %q", asset.URL, asset.ID)
	}
}

func TestPersisterFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/big" {
			_, _ = w.Write(make([]byte, 2048))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	job := domain.Job{ID: "j1", WorkspaceID: "w1"}

	cases := []struct {
		name    string
		store   *memStore
		outcome providers.Outcome
	}{
		{"non-2xx", &memStore{}, providers.Succeeded(srv.URL + "/missing")},
		{"too large", &memStore{}, providers.Succeeded(srv.URL + "/big")},
		{"no content", &memStore{}, providers.Outcome{State: providers.StateSucceeded}},
		{"store error", &memStore{err: errors.New("disk full")}, providers.Outcome{State: providers.StateSucceeded, Inline: pngBytes}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPersister(tc.store, srv.Client(), 1024)
			_, err := p.Persist(context.Background(), job, tc.outcome)
			if !errors.Is(err, domain.ErrPersistenceFailed) {
				t.Fatalf("err = %v", err)
			}
		})
	}
}
