package resume

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore 是进程内的 Store 实现，用于测试与本地开发。
// 文档以 JSON 保存，每次读取都得到独立副本。
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  uint
	records map[uint]memoryRecord
	now     func() time.Time
}

type memoryRecord struct {
	ownerID   uint
	title     string
	content   []byte
	revision  int64
	createdAt time.Time
	updatedAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[uint]memoryRecord),
		now:     time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) FindOwned(ctx context.Context, resumeID, ownerID uint) (*Resume, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[resumeID]
	if !ok || rec.ownerID != ownerID {
		return nil, NotFoundError()
	}
	return rec.decode(resumeID)
}

func (s *MemoryStore) Exists(ctx context.Context, resumeID uint) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[resumeID]
	return ok, nil
}

func (s *MemoryStore) ListOwned(ctx context.Context, ownerID uint) ([]Resume, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Resume, 0)
	for id, rec := range s.records {
		if rec.ownerID != ownerID {
			continue
		}
		doc, err := rec.decode(id)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt) ||
			(out[i].UpdatedAt.Equal(out[j].UpdatedAt) && out[i].ID > out[j].ID)
	})
	return out, nil
}

func (s *MemoryStore) Save(ctx context.Context, r *Resume) (*Resume, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := json.Marshal(r.Content)
	if err != nil {
		return nil, fmt.Errorf("encode resume content: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if r.ID == 0 {
		s.nextID++
		r.ID = s.nextID
		r.Revision = 1
		r.CreatedAt = now
		r.UpdatedAt = now
		s.records[r.ID] = memoryRecord{
			ownerID:   r.OwnerID,
			title:     r.Title,
			content:   content,
			revision:  r.Revision,
			createdAt: now,
			updatedAt: now,
		}
		return r, nil
	}

	rec, ok := s.records[r.ID]
	if !ok || rec.ownerID != r.OwnerID {
		return nil, NotFoundError()
	}
	if rec.revision != r.Revision {
		return nil, ConflictError()
	}

	rec.title = r.Title
	rec.content = content
	rec.revision++
	rec.updatedAt = now
	s.records[r.ID] = rec

	r.Revision = rec.revision
	r.CreatedAt = rec.createdAt
	r.UpdatedAt = now
	return r, nil
}

func (s *MemoryStore) DeleteOwned(ctx context.Context, resumeID, ownerID uint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[resumeID]
	if !ok || rec.ownerID != ownerID {
		return NotFoundError()
	}
	delete(s.records, resumeID)
	return nil
}

func (rec memoryRecord) decode(id uint) (*Resume, error) {
	doc := &Resume{
		ID:        id,
		OwnerID:   rec.ownerID,
		Title:     rec.title,
		Revision:  rec.revision,
		CreatedAt: rec.createdAt,
		UpdatedAt: rec.updatedAt,
	}
	if err := json.Unmarshal(rec.content, &doc.Content); err != nil {
		return nil, fmt.Errorf("decode resume %d: %w", id, err)
	}
	return doc, nil
}
