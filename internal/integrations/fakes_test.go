package integrations

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gitlab.com/billit/billit-api/internal/models"
	"gitlab.com/billit/billit-api/internal/repository"
	"gitlab.com/billit/billit-api/internal/secrets"
)

type memCredentials struct {
	mu   sync.Mutex
	rows []models.IntegrationCredential
}

func (m *memCredentials) GetActive(_ context.Context, userID uuid.UUID, system models.Integration) (*models.IntegrationCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.rows) - 1; i >= 0; i-- {
		r := m.rows[i]
		if r.UserID == userID && r.System == system && r.IsActive {
			return &r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memCredentials) Deactivate(_ context.Context, userID uuid.UUID, system models.Integration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.rows {
		if m.rows[i].UserID == userID && m.rows[i].System == system && m.rows[i].IsActive {
			m.rows[i].IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *memCredentials) Insert(_ context.Context, cred *models.IntegrationCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred.ID = uuid.New()
	cred.IsActive = true
	cred.CreatedAt = time.Now()
	m.rows = append(m.rows, *cred)
	return nil
}

func (m *memCredentials) ListActive(_ context.Context, userID uuid.UUID) ([]models.IntegrationCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.IntegrationCredential
	for _, r := range m.rows {
		if r.UserID == userID && r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memCredentials) active(userID uuid.UUID) int {
	rows, _ := m.ListActive(context.Background(), userID)
	return len(rows)
}

type memStates struct {
	mu     sync.Mutex
	states map[string]models.OAuthState
}

func newMemStates() *memStates {
	return &memStates{states: map[string]models.OAuthState{}}
}

func (m *memStates) Create(_ context.Context, s *models.OAuthState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[s.State] = *s
	return nil
}

func (m *memStates) Get(_ context.Context, state string) (*models.OAuthState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[state]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (m *memStates) Delete(_ context.Context, state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, state)
	return nil
}

type memReceipts struct {
	mu       sync.Mutex
	receipts map[uuid.UUID]*models.Receipt
}

func newMemReceipts(rs ...*models.Receipt) *memReceipts {
	m := &memReceipts{receipts: map[uuid.UUID]*models.Receipt{}}
	for _, r := range rs {
		m.receipts[r.ID] = r
	}
	return m
}

func (m *memReceipts) Get(_ context.Context, id uuid.UUID) (*models.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.receipts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memReceipts) MergeMetadata(_ context.Context, id uuid.UUID, patch map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.receipts[id]
	if !ok {
		return repository.ErrNotFound
	}
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	for k, v := range patch {
		r.Metadata[k] = v
	}
	return nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	types []string
}

func (n *recordingNotifier) Emit(_ context.Context, _ uuid.UUID, typ, _, _ string, _ map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.types = append(n.types, typ)
}

func newTestStore(t *testing.T) (*CredentialStore, *memCredentials) {
	t.Helper()
	c, err := secrets.New("test-passphrase")
	require.NoError(t, err)
	repo := &memCredentials{}
	return NewCredentialStore(repo, c), repo
}
