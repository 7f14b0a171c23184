package office

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"estateflow/apperr"
	"estateflow/authz"
)

func ptr(s string) *string { return &s }

func newOfficeService() (*Service, *fakeRepo, *fakePool) {
	repo := newFakeRepo()
	pool := &fakePool{}
	n := 0
	svc := NewService(pool, repo).
		WithIDGenerator(func() string { n++; return fmt.Sprintf("office-%d", n) }).
		WithClock(func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) })
	return svc, repo, pool
}

func TestCreate_Success(t *testing.T) {
	svc, repo, pool := newOfficeService()
	repo.verifiedAgents["agent-1"] = "user-1"
	admin := authz.Actor{AccountID: "admin-1", Role: authz.RoleAdmin}

	office, err := svc.Create(context.Background(), admin, CreateParams{
		FranchiseID:    "RMX-100",
		Name:           "Downtown",
		ManagerAgentID: "agent-1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if office.ManagerAgentID != "agent-1" {
		t.Fatalf("manager not set: %s", office.ManagerAgentID)
	}
	if len(office.AgentIDs) != 1 || office.AgentIDs[0] != "agent-1" {
		t.Fatalf("manager must be the sole member, got %v", office.AgentIDs)
	}
	if office.Statistics.TotalAgents != 1 {
		t.Fatalf("expected totalAgents=1, got %d", office.Statistics.TotalAgents)
	}
	if !pool.lastTx.committed {
		t.Fatal("create must commit its transaction")
	}
	if repo.promotions["user-1"] != office.ID {
		t.Fatal("manager account must be promoted into the new office")
	}
}

func TestCreate_Forbidden(t *testing.T) {
	svc, repo, pool := newOfficeService()
	repo.verifiedAgents["agent-1"] = "user-1"

	actor := authz.Actor{AccountID: "user-9", Role: authz.RoleAgent}
	_, err := svc.Create(context.Background(), actor, CreateParams{FranchiseID: "RMX-1", Name: "X", ManagerAgentID: "agent-1"})
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected Forbidden for agent, got %v", err)
	}
	if pool.lastTx != nil {
		t.Fatal("no transaction should start for forbidden actors")
	}
}

func TestCreate_UnverifiedNomineeRollsBack(t *testing.T) {
	svc, repo, pool := newOfficeService()
	admin := authz.Actor{AccountID: "admin-1", Role: authz.RoleAdmin}

	_, err := svc.Create(context.Background(), admin, CreateParams{
		FranchiseID:    "RMX-100",
		Name:           "Downtown",
		ManagerAgentID: "agent-unverified",
	})
	if !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}

	// All-or-nothing: nothing observable was persisted.
	if pool.lastTx.committed {
		t.Fatal("failed validation must not commit")
	}
	if !pool.lastTx.rolled {
		t.Fatal("failed validation must roll back")
	}
	if len(repo.offices) != 0 {
		t.Fatalf("no office may be persisted, got %d", len(repo.offices))
	}
	if len(repo.promotions) != 0 {
		t.Fatal("no account may be promoted")
	}
}

func TestCreate_DuplicateFranchise(t *testing.T) {
	svc, repo, _ := newOfficeService()
	repo.verifiedAgents["agent-1"] = "user-1"
	repo.verifiedAgents["agent-2"] = "user-2"
	admin := authz.Actor{AccountID: "admin-1", Role: authz.RoleAdmin}

	if _, err := svc.Create(context.Background(), admin, CreateParams{FranchiseID: "RMX-100", Name: "A", ManagerAgentID: "agent-1"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.Create(context.Background(), admin, CreateParams{FranchiseID: "RMX-100", Name: "B", ManagerAgentID: "agent-2"})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected Conflict on franchise collision, got %v", err)
	}
	if len(repo.offices) != 1 {
		t.Fatalf("expected one office, got %d", len(repo.offices))
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, _, _ := newOfficeService()
	admin := authz.Actor{AccountID: "admin-1", Role: authz.RoleAdmin}

	cases := []CreateParams{
		{Name: "X", ManagerAgentID: "agent-1"},
		{FranchiseID: "RMX-1", ManagerAgentID: "agent-1"},
		{FranchiseID: "RMX-1", Name: "X"},
	}
	for i, params := range cases {
		if _, err := svc.Create(context.Background(), admin, params); !errors.Is(err, apperr.ErrInvalidArgument) {
			t.Fatalf("case %d: expected InvalidArgument, got %v", i, err)
		}
	}
}

func TestReassignManager(t *testing.T) {
	svc, repo, pool := newOfficeService()
	repo.verifiedAgents["agent-1"] = "user-1"
	repo.verifiedAgents["agent-2"] = "user-2"
	admin := authz.Actor{AccountID: "admin-1", Role: authz.RoleAdmin}

	office, err := svc.Create(context.Background(), admin, CreateParams{FranchiseID: "RMX-100", Name: "A", ManagerAgentID: "agent-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// A manager of a different office cannot reassign this one.
	stranger := authz.Actor{AccountID: "mgr-9", Role: authz.RoleManager, OfficeID: ptr("office-other")}
	if _, err := svc.ReassignManager(context.Background(), stranger, office.ID, "agent-2"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected Forbidden for foreign manager, got %v", err)
	}

	updated, err := svc.ReassignManager(context.Background(), admin, office.ID, "agent-2")
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if updated.ManagerAgentID != "agent-2" {
		t.Fatalf("manager not reassigned: %s", updated.ManagerAgentID)
	}
	if len(updated.AgentIDs) != 2 {
		t.Fatalf("new manager should join the member set, got %v", updated.AgentIDs)
	}
	if repo.promotions["user-2"] != office.ID {
		t.Fatal("new manager account must be promoted")
	}
	if !pool.lastTx.committed {
		t.Fatal("reassign must commit its transaction")
	}
}

func TestSoftDelete_AdminOnly(t *testing.T) {
	svc, repo, pool := newOfficeService()
	repo.verifiedAgents["agent-1"] = "user-1"
	admin := authz.Actor{AccountID: "admin-1", Role: authz.RoleAdmin}

	office, err := svc.Create(context.Background(), admin, CreateParams{FranchiseID: "RMX-100", Name: "A", ManagerAgentID: "agent-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	mgr := authz.Actor{AccountID: "user-1", Role: authz.RoleManager, OfficeID: &office.ID}
	if err := svc.SoftDelete(context.Background(), mgr, office.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected Forbidden for manager, got %v", err)
	}

	if err := svc.SoftDelete(context.Background(), admin, office.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if !pool.lastTx.committed {
		t.Fatal("soft delete must commit its transaction")
	}
	stored := repo.offices["RMX-100"]
	if stored.IsActive || stored.DeletedAt == nil {
		t.Fatal("office must be deactivated with deleted_at stamped")
	}
}

func TestComputeStatistics(t *testing.T) {
	stats := ComputeStatistics([]string{"a", "b", "c"}, 7)
	if stats.TotalAgents != 3 || stats.ActiveListings != 7 {
		t.Fatalf("unexpected statistics: %+v", stats)
	}
}

// --- fakes ---

// fakeRepo keeps offices keyed by franchise id and records account
// promotions, mimicking the transactional repository's observable effects.
type fakeRepo struct {
	offices        map[string]Office
	verifiedAgents map[string]string // agent id -> owner account id
	promotions     map[string]string // owner account id -> office id
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		offices:        make(map[string]Office),
		verifiedAgents: make(map[string]string),
		promotions:     make(map[string]string),
	}
}

func (f *fakeRepo) CreateTx(ctx context.Context, tx pgx.Tx, params CreateParams) (Office, error) {
	owner, ok := f.verifiedAgents[params.ManagerAgentID]
	if !ok {
		return Office{}, ErrNomineeNotVerified
	}
	if _, exists := f.offices[params.FranchiseID]; exists {
		return Office{}, ErrDuplicateFranchise
	}

	office := Office{
		ID:             params.ID,
		FranchiseID:    params.FranchiseID,
		Name:           params.Name,
		ManagerAgentID: params.ManagerAgentID,
		AgentIDs:       []string{params.ManagerAgentID},
		IsActive:       true,
	}
	office.Statistics = ComputeStatistics(office.AgentIDs, 0)
	f.offices[params.FranchiseID] = office
	f.promotions[owner] = office.ID
	return office, nil
}

func (f *fakeRepo) ReassignManagerTx(ctx context.Context, tx pgx.Tx, officeID, newAgentID string) (Office, error) {
	owner, ok := f.verifiedAgents[newAgentID]
	if !ok {
		return Office{}, ErrNomineeNotVerified
	}
	for key, office := range f.offices {
		if office.ID != officeID {
			continue
		}
		office.ManagerAgentID = newAgentID
		member := false
		for _, id := range office.AgentIDs {
			if id == newAgentID {
				member = true
			}
		}
		if !member {
			office.AgentIDs = append(office.AgentIDs, newAgentID)
		}
		office.Statistics = ComputeStatistics(office.AgentIDs, 0)
		f.offices[key] = office
		f.promotions[owner] = officeID
		return office, nil
	}
	return Office{}, fmt.Errorf("office: %s: %w", officeID, apperr.ErrNotFound)
}

func (f *fakeRepo) SoftDeleteTx(ctx context.Context, tx pgx.Tx, officeID string, deletedAt time.Time) error {
	for key, office := range f.offices {
		if office.ID != officeID {
			continue
		}
		office.IsActive = false
		office.DeletedAt = &deletedAt
		f.offices[key] = office
		return nil
	}
	return fmt.Errorf("office: %s: %w", officeID, apperr.ErrNotFound)
}

func (f *fakeRepo) GetByID(ctx context.Context, id string) (Office, error) {
	for _, office := range f.offices {
		if office.ID == id {
			return office, nil
		}
	}
	return Office{}, fmt.Errorf("office: %s: %w", id, apperr.ErrNotFound)
}

func (f *fakeRepo) List(ctx context.Context, limit int) ([]Office, error) {
	offices := make([]Office, 0, len(f.offices))
	for _, office := range f.offices {
		if office.IsActive {
			offices = append(offices, office)
		}
	}
	return offices, nil
}

type fakePool struct {
	lastTx *fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	f.lastTx = &fakeTx{}
	return f.lastTx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
