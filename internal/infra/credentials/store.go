package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"genqueue/internal/infra"
	"genqueue/internal/sqlinline"
)

const (
	ProviderQwen   = "qwen"
	ProviderKie    = "kie"
	ProviderGemini = "gemini"
)

// Providers lists the providers whose keys may be stored.
func Providers() []string {
	return []string{ProviderQwen, ProviderKie, ProviderGemini}
}

// Supported reports whether provider is one of Providers.
func Supported(provider string) bool {
	for _, p := range Providers() {
		if p == provider {
			return true
		}
	}
	return false
}

// Store keeps provider API keys in the integration_tokens table so they can
// be rotated without a redeploy.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Token returns the stored key for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// Resolve prefers fallback, usually the environment value, and consults the
// table only when fallback is blank.
func (s *Store) Resolve(ctx context.Context, provider, fallback string) (string, error) {
	if key := strings.TrimSpace(fallback); key != "" {
		return key, nil
	}
	if s == nil {
		return "", nil
	}
	return s.Token(ctx, provider)
}

// Set stores key for provider, replacing any previous one.
func (s *Store) Set(ctx context.Context, provider, key string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !Supported(provider) {
		return fmt.Errorf("unsupported provider %q", provider)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%s api key is required", provider)
	}
	return s.upsert(ctx, provider, key, nil)
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}
