package orchestrator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"genqueue/internal/domain"
	"genqueue/internal/providers"
	"genqueue/internal/storage"
)

const defaultFetchMaxBytes = 25 << 20

// Persister copies a provider result into durable storage. Remote result
// URLs expire, so the fetch happens as soon as the result is known and is
// attempted once.
type Persister struct {
	store    storage.Store
	client   *http.Client
	maxBytes int64
}

func NewPersister(store storage.Store, client *http.Client, maxBytes int64) *Persister {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if maxBytes <= 0 {
		maxBytes = defaultFetchMaxBytes
	}
	return &Persister{store: store, client: client, maxBytes: maxBytes}
}

// Persist stores the succeeded outcome for job and returns the asset record
// to settle with. Every failure wraps domain.ErrPersistenceFailed.
func (p *Persister) Persist(ctx context.Context, job domain.Job, outcome providers.Outcome) (*domain.Asset, error) {
	data, contentType := outcome.Inline, outcome.ContentType
	if len(data) == 0 {
		if outcome.ResultURL == "" {
			return nil, fmt.Errorf("%w: result carried neither bytes nor url", domain.ErrPersistenceFailed)
		}
		var err error
		data, contentType, err = p.fetch(ctx, outcome.ResultURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrPersistenceFailed, err)
		}
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	key := storage.AssetKey(job.WorkspaceID, job.ID, contentType)
	url, err := p.store.Put(ctx, key, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistenceFailed, err)
	}
	return &domain.Asset{
		ID:          uuid.NewString(),
		JobID:       job.ID,
		WorkspaceID: job.WorkspaceID,
		StorageKey:  key,
		URL:         url,
		ContentType: contentType,
		Bytes:       int64(len(data)),
	}, nil
}

func (p *Persister) fetch(ctx context.Context, resultURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build fetch request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch result: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("fetch result: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read result: %w", err)
	}
	if int64(len(data)) > p.maxBytes {
		return nil, "", fmt.Errorf("result exceeds %d bytes", p.maxBytes)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("result body is empty")
	}
	contentType := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}
