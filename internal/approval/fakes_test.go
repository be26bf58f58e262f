package approval

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iridium40/roam-platform-sub004/internal/models"
	"github.com/Iridium40/roam-platform-sub004/internal/notify"
)

// memStore is an in-memory Store. ApproveAndActivate re-checks the status
// under the lock the same way the stored procedure does.
type memStore struct {
	mu sync.Mutex

	businesses map[uuid.UUID][]models.Business
	members    map[uuid.UUID]models.Member
	apps       map[uuid.UUID]*models.Application

	approvals   []models.ApprovalRecord
	progress    []models.SetupProgress
	appUpdates  []models.Application
	activations int

	findErr       error
	activateErr   error
	ownerErr      error
	appLookupErr  error
	appUpdateErr  error
	approvalErr   error
	progressErr   error
	progressBlock bool
	activateDelay time.Duration
}

func newMemStore() *memStore {
	return &memStore{
		businesses: map[uuid.UUID][]models.Business{},
		members:    map[uuid.UUID]models.Member{},
		apps:       map[uuid.UUID]*models.Application{},
	}
}

func (m *memStore) status(id uuid.UUID) models.VerificationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.businesses[id][0].VerificationStatus
}

func (m *memStore) FindBusinesses(_ context.Context, id uuid.UUID) ([]models.Business, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	rows := m.businesses[id]
	out := make([]models.Business, len(rows))
	copy(out, rows)
	return out, nil
}

func (m *memStore) ApproveAndActivate(_ context.Context, businessID, adminID uuid.UUID, notes string) (models.Activation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activateErr != nil {
		return models.Activation{}, m.activateErr
	}
	time.Sleep(m.activateDelay)
	rows, ok := m.businesses[businessID]
	if !ok {
		return models.Activation{}, models.ErrBusinessNotFound
	}
	prev := rows[0].VerificationStatus
	if prev != models.StatusPending && prev != models.StatusSuspended {
		return models.Activation{}, models.ErrStateConflict
	}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows[0].VerificationStatus = models.StatusApproved
	rows[0].ActivatedAt = at
	rows[0].ActivatedBy = adminID
	rows[0].Notes = notes
	m.activations++
	return models.Activation{
		Committed:      true,
		BusinessID:     businessID,
		PreviousStatus: prev,
		Status:         models.StatusApproved,
		ActivatedAt:    at,
		ActivatedBy:    adminID,
	}, nil
}

func (m *memStore) FindMemberByRole(_ context.Context, businessID uuid.UUID, role models.MemberRole) (models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ownerErr != nil {
		return models.Member{}, m.ownerErr
	}
	mem, ok := m.members[businessID]
	if !ok || mem.Role != role {
		return models.Member{}, models.ErrOwnerNotFound
	}
	return mem, nil
}

func (m *memStore) FindApplicationByBusiness(_ context.Context, businessID uuid.UUID) (*models.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appLookupErr != nil {
		return nil, m.appLookupErr
	}
	return m.apps[businessID], nil
}

func (m *memStore) UpdateApplicationStatus(_ context.Context, app models.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appUpdateErr != nil {
		return m.appUpdateErr
	}
	m.appUpdates = append(m.appUpdates, app)
	return nil
}

func (m *memStore) CreateApprovalRecord(_ context.Context, rec models.ApprovalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.approvalErr != nil {
		return m.approvalErr
	}
	m.approvals = append(m.approvals, rec)
	return nil
}

func (m *memStore) UpsertSetupProgress(ctx context.Context, p models.SetupProgress) error {
	if m.progressBlock {
		<-ctx.Done()
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.progressErr != nil {
		return m.progressErr
	}
	m.progress = append(m.progress, p)
	return nil
}

type memIdentity struct {
	mu    sync.Mutex
	users map[uuid.UUID]models.User
	err   error
	calls int
}

func (m *memIdentity) GetUserByID(_ context.Context, id uuid.UUID) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return models.User{}, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return models.User{}, models.ErrUserNotFound
	}
	return u, nil
}

type fakeMailer struct {
	mu    sync.Mutex
	sent  []notify.Message
	err   error
	panic bool
}

func (f *fakeMailer) Send(_ context.Context, msg notify.Message) error {
	if f.panic {
		panic("mailer exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}
