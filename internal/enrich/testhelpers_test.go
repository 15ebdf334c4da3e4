package enrich

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-enricher/internal/model"
	"github.com/sells-group/prospect-enricher/internal/store"
)

// memStore is an in-memory store.Store for pipeline tests.
type memStore struct {
	mu        sync.Mutex
	prospects map[string]*model.Prospect
	audits    []model.AuditEntry
	puts      int
}

func newMemStore(ps ...*model.Prospect) *memStore {
	m := &memStore{prospects: map[string]*model.Prospect{}}
	for _, p := range ps {
		cp := *p
		m.prospects[p.ID] = &cp
	}
	return m
}

func (m *memStore) CreateProspect(ctx context.Context, p *model.Prospect) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.prospects[p.ID] = &cp
	return nil
}

func (m *memStore) GetProspect(ctx context.Context, id string) (*model.Prospect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prospects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) PutProspect(ctx context.Context, p *model.Prospect) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.prospects[p.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *p
	m.prospects[p.ID] = &cp
	m.puts++
	return nil
}

func (m *memStore) ListMissingKind(ctx context.Context, kind model.Kind, limit int) ([]string, error) {
	return nil, nil
}

func (m *memStore) ListProspectIDs(ctx context.Context, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.prospects))
	for id := range m.prospects {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memStore) CountProspects(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prospects), nil
}

func (m *memStore) AcquireLock(ctx context.Context, prospectID, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prospects[prospectID]
	if !ok {
		return store.ErrNotFound
	}
	if p.EnhancementStatus == model.LockInProgress && p.EnhancementUserID != ownerID {
		return store.ErrLockConflict
	}
	now := time.Now().UTC()
	p.EnhancementStatus = model.LockInProgress
	p.EnhancementUserID = ownerID
	p.EnhancementStartedAt = &now
	return nil
}

func (m *memStore) ReleaseLock(ctx context.Context, prospectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.prospects[prospectID]; ok {
		p.EnhancementStatus = model.LockIdle
		p.EnhancementUserID = ""
		p.EnhancementStartedAt = nil
	}
	return nil
}

func (m *memStore) ReclaimStaleLocks(ctx context.Context, olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	n := 0
	for _, p := range m.prospects {
		if p.EnhancementStatus == model.LockInProgress && p.EnhancementStartedAt != nil && p.EnhancementStartedAt.Before(cutoff) {
			p.EnhancementStatus = model.LockIdle
			p.EnhancementUserID = ""
			p.EnhancementStartedAt = nil
			n++
		}
	}
	return n, nil
}

func (m *memStore) AppendAudit(ctx context.Context, entry model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, entry)
	return nil
}

func (m *memStore) Migrate(ctx context.Context) error { return nil }
func (m *memStore) Close() error                      { return nil }

// current returns the stored copy of a prospect.
func (m *memStore) current(id string) *model.Prospect {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prospects[id]
}

// fakeLLM routes completions by prompt content. Prompts produced by the
// pipeline each contain a distinctive marker: "procurement title" vs
// "contract value" vs "NAICS" vs "set-aside".
type fakeLLM struct {
	mu        sync.Mutex
	titleResp string
	valueResp string
	naicsResp string
	sideResp  string
	err       error
	calls     []string
}

func (f *fakeLLM) Complete(ctx context.Context, prompt, modelID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	switch {
	case strings.Contains(prompt, "procurement title"):
		f.calls = append(f.calls, "title")
		return f.titleResp, nil
	case strings.Contains(prompt, "contract value"):
		f.calls = append(f.calls, "value")
		return f.valueResp, nil
	case strings.Contains(prompt, "NAICS"):
		f.calls = append(f.calls, "naics")
		return f.naicsResp, nil
	case strings.Contains(prompt, "set-aside"):
		f.calls = append(f.calls, "set_aside")
		return f.sideResp, nil
	default:
		return "", eris.New("fakeLLM: unrecognized prompt")
	}
}

func (f *fakeLLM) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
