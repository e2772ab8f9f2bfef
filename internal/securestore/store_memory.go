package securestore

import (
	"context"
	"sort"
	"sync"
	"time"

	"custodian/pkg/domain"
	"custodian/pkg/platform/sentinel"
)

// InMemoryRecordStore is a map-backed RecordStore for tests and local
// development.
type InMemoryRecordStore struct {
	mu      sync.RWMutex
	records map[domain.RecordID]*Record
}

// NewInMemoryRecordStore creates an empty in-memory record store.
func NewInMemoryRecordStore() *InMemoryRecordStore {
	return &InMemoryRecordStore{records: make(map[domain.RecordID]*Record)}
}

func (s *InMemoryRecordStore) Insert(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ID]; exists {
		return sentinel.ErrConflict
	}
	s.records[record.ID] = clone(record)
	return nil
}

func (s *InMemoryRecordStore) FindOne(_ context.Context, ownerID domain.OwnerID, id domain.RecordID, now time.Time) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok || record.OwnerID != ownerID || !record.IsActive || !record.ExpiresAt.After(now) {
		return nil, sentinel.ErrNotFound
	}
	return clone(record), nil
}

func (s *InMemoryRecordStore) FindForBackup(_ context.Context, ownerID domain.OwnerID, id domain.RecordID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok || record.OwnerID != ownerID {
		return nil, sentinel.ErrNotFound
	}
	return clone(record), nil
}

func (s *InMemoryRecordStore) Update(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[record.ID]
	if !ok || existing.OwnerID != record.OwnerID || !existing.IsActive {
		return sentinel.ErrNotFound
	}
	existing.Payload = record.Payload
	existing.Checksum = record.Checksum
	existing.Algorithm = record.Algorithm
	existing.KeyID = record.KeyID
	existing.Metadata = record.Metadata
	existing.ExpiresAt = record.ExpiresAt
	existing.UpdatedAt = record.UpdatedAt
	return nil
}

func (s *InMemoryRecordStore) TouchAccess(_ context.Context, id domain.RecordID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	record.AccessCount++
	record.LastAccessedAt = &at
	return nil
}

func (s *InMemoryRecordStore) SoftDelete(_ context.Context, ownerID domain.OwnerID, id domain.RecordID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok || record.OwnerID != ownerID || !record.IsActive {
		return false, nil
	}
	record.IsActive = false
	record.DeletedAt = &at
	record.UpdatedAt = at
	return true, nil
}

func (s *InMemoryRecordStore) HardDeleteOwned(_ context.Context, ownerID domain.OwnerID, id domain.RecordID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok || record.OwnerID != ownerID {
		return false, nil
	}
	delete(s.records, id)
	return true, nil
}

func (s *InMemoryRecordStore) HardDelete(_ context.Context, id domain.RecordID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false, nil
	}
	delete(s.records, id)
	return true, nil
}

func (s *InMemoryRecordStore) MarkArchived(_ context.Context, id domain.RecordID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	record.IsArchived = true
	record.UpdatedAt = at
	return nil
}

func (s *InMemoryRecordStore) ListExpired(_ context.Context, now time.Time, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var expired []*Record
	for _, record := range s.records {
		if record.IsActive && !record.ExpiresAt.After(now) {
			expired = append(expired, clone(record))
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].ExpiresAt.Before(expired[j].ExpiresAt)
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

func (s *InMemoryRecordStore) Summarize(_ context.Context, ownerID domain.OwnerID) (map[domain.DataCategory]CategorySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	levels := make(map[domain.DataCategory]map[string]struct{})
	summaries := make(map[domain.DataCategory]CategorySummary)
	for _, record := range s.records {
		if record.OwnerID != ownerID || !record.IsActive {
			continue
		}
		summary := summaries[record.Category]
		summary.Count++
		summary.TotalBytes += int64(len(record.Payload))
		if summary.Oldest.IsZero() || record.CreatedAt.Before(summary.Oldest) {
			summary.Oldest = record.CreatedAt
		}
		if record.CreatedAt.After(summary.Newest) {
			summary.Newest = record.CreatedAt
		}
		if levels[record.Category] == nil {
			levels[record.Category] = make(map[string]struct{})
		}
		levels[record.Category][record.Sensitivity.String()] = struct{}{}
		summaries[record.Category] = summary
	}
	for category, summary := range summaries {
		for level := range levels[category] {
			summary.SensitivityLevels = append(summary.SensitivityLevels, level)
		}
		sort.Strings(summary.SensitivityLevels)
		summaries[category] = summary
	}
	return summaries, nil
}

func clone(record *Record) *Record {
	copied := *record
	if record.Metadata != nil {
		copied.Metadata = make(map[string]any, len(record.Metadata))
		for k, v := range record.Metadata {
			copied.Metadata[k] = v
		}
	}
	if record.LastAccessedAt != nil {
		at := *record.LastAccessedAt
		copied.LastAccessedAt = &at
	}
	if record.DeletedAt != nil {
		at := *record.DeletedAt
		copied.DeletedAt = &at
	}
	return &copied
}

// InMemoryArchiveStore collects archive copies in memory.
type InMemoryArchiveStore struct {
	mu      sync.Mutex
	records []*ArchiveRecord
}

func NewInMemoryArchiveStore() *InMemoryArchiveStore {
	return &InMemoryArchiveStore{}
}

func (s *InMemoryArchiveStore) Insert(_ context.Context, record *ArchiveRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *record
	s.records = append(s.records, &copied)
	return nil
}

// All returns the archived copies, for assertions in tests.
func (s *InMemoryArchiveStore) All() []*ArchiveRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ArchiveRecord, len(s.records))
	copy(out, s.records)
	return out
}

// InMemoryBackupStore collects pre-deletion snapshots in memory.
type InMemoryBackupStore struct {
	mu      sync.Mutex
	records []*BackupRecord
}

func NewInMemoryBackupStore() *InMemoryBackupStore {
	return &InMemoryBackupStore{}
}

func (s *InMemoryBackupStore) Insert(_ context.Context, record *BackupRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *record
	s.records = append(s.records, &copied)
	return nil
}

func (s *InMemoryBackupStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	removed := 0
	for _, record := range s.records {
		if record.ExpiresAt.After(now) {
			kept = append(kept, record)
		} else {
			removed++
		}
	}
	s.records = kept
	return removed, nil
}

// All returns the snapshots, for assertions in tests.
func (s *InMemoryBackupStore) All() []*BackupRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*BackupRecord, len(s.records))
	copy(out, s.records)
	return out
}
