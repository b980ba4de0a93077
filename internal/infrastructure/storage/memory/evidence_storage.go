// Package memory holds in-process adapters used when no external storage is configured.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dreschagin/quality-gate/internal/domain/entity"
)

// EvidenceStorage keeps packages as serialized JSON so callers never share state.
type EvidenceStorage struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewEvidenceStorage() *EvidenceStorage {
	return &EvidenceStorage{items: make(map[string][]byte)}
}

func (s *EvidenceStorage) Store(_ context.Context, key string, pkg *entity.EvidencePackage) error {
	if key == "" {
		return fmt.Errorf("evidence key is required")
	}
	data, err := json.Marshal(pkg)
	if err != nil {
		return fmt.Errorf("marshal evidence package: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = data
	return nil
}

func (s *EvidenceStorage) Retrieve(_ context.Context, key string) (*entity.EvidencePackage, error) {
	s.mu.RLock()
	data, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var pkg entity.EvidencePackage
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("unmarshal evidence package: %w", err)
	}
	return &pkg, nil
}
