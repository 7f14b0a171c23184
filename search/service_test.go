package search

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"estateflow/apperr"
	"estateflow/authz"
)

func newSearchService() (*Service, *fakeRepo, *fakePool) {
	repo := &fakeRepo{searches: make(map[string]SavedSearch)}
	pool := &fakePool{}
	n := 0
	svc := NewService(pool, repo).
		WithIDGenerator(func() string { n++; return fmt.Sprintf("search-%d", n) })
	return svc, repo, pool
}

func TestCreate(t *testing.T) {
	svc, repo, pool := newSearchService()
	owner := authz.Actor{AccountID: "user-1", Role: authz.RoleBuyer}

	saved, err := svc.Create(context.Background(), owner, "user-1", "Downtown condos", Criteria{
		PropertyTypes: []string{"condo"},
		Locations:     []string{"downtown"},
		PriceMin:      100_000,
		PriceMax:      400_000,
	}, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if saved.AccountID != "user-1" || !saved.AlertsEnabled {
		t.Fatalf("unexpected saved search: %+v", saved)
	}
	if len(repo.searches) != 1 {
		t.Fatalf("expected 1 stored search, got %d", len(repo.searches))
	}
	if !pool.lastTx.committed {
		t.Fatal("create must commit its transaction")
	}
	// The cap check and the insert must share the transaction, otherwise the
	// account-row lock cannot serialize concurrent writers.
	if repo.lastCountTx != repo.lastCreateTx || repo.lastCountTx != pool.lastTx {
		t.Fatal("count and insert must run in the same transaction")
	}
}

func TestCreate_Authorization(t *testing.T) {
	svc, _, pool := newSearchService()

	// Other accounts cannot write into someone else's searches, admins can.
	stranger := authz.Actor{AccountID: "user-2", Role: authz.RoleBuyer}
	if _, err := svc.Create(context.Background(), stranger, "user-1", "Snoop", Criteria{}, false); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
	if pool.lastTx != nil {
		t.Fatal("no transaction should start for forbidden actors")
	}

	admin := authz.Actor{AccountID: "admin-1", Role: authz.RoleAdmin}
	if _, err := svc.Create(context.Background(), admin, "user-1", "Curated", Criteria{}, false); err != nil {
		t.Fatalf("admin create: %v", err)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, _, _ := newSearchService()
	owner := authz.Actor{AccountID: "user-1", Role: authz.RoleBuyer}

	if _, err := svc.Create(context.Background(), owner, "user-1", "  ", Criteria{}, false); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("expected InvalidArgument for blank name, got %v", err)
	}
	if _, err := svc.Create(context.Background(), owner, "user-1", "Bad range", Criteria{PriceMin: 500, PriceMax: 100}, false); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("expected InvalidArgument for inverted range, got %v", err)
	}
	// PriceMax of zero means unbounded, so any min is fine.
	if _, err := svc.Create(context.Background(), owner, "user-1", "Open range", Criteria{PriceMin: 500}, false); err != nil {
		t.Fatalf("unbounded max: %v", err)
	}
}

func TestCreate_CapacityConflict(t *testing.T) {
	svc, repo, pool := newSearchService()
	owner := authz.Actor{AccountID: "user-1", Role: authz.RoleBuyer}

	for i := 0; i < MaxPerAccount; i++ {
		if _, err := svc.Create(context.Background(), owner, "user-1", fmt.Sprintf("Search %d", i), Criteria{}, false); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	_, err := svc.Create(context.Background(), owner, "user-1", "One too many", Criteria{}, false)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected Conflict at capacity, got %v", err)
	}
	if len(repo.searches) != MaxPerAccount {
		t.Fatalf("overflow must not be stored, have %d", len(repo.searches))
	}
	if pool.lastTx.committed || !pool.lastTx.rolled {
		t.Fatal("overflow must roll back, not commit")
	}

	// The cap is per account, not global.
	other := authz.Actor{AccountID: "user-2", Role: authz.RoleBuyer}
	if _, err := svc.Create(context.Background(), other, "user-2", "Fresh account", Criteria{}, false); err != nil {
		t.Fatalf("other account blocked by foreign cap: %v", err)
	}
}

func TestList(t *testing.T) {
	svc, _, _ := newSearchService()
	owner := authz.Actor{AccountID: "user-1", Role: authz.RoleBuyer}

	if _, err := svc.Create(context.Background(), owner, "user-1", "A", Criteria{}, false); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(context.Background(), owner, "user-1", "B", Criteria{}, false); err != nil {
		t.Fatalf("create: %v", err)
	}

	searches, err := svc.List(context.Background(), owner, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(searches) != 2 {
		t.Fatalf("expected 2 searches, got %d", len(searches))
	}

	stranger := authz.Actor{AccountID: "user-2", Role: authz.RoleBuyer}
	if _, err := svc.List(context.Background(), stranger, "user-1"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	svc, repo, _ := newSearchService()
	owner := authz.Actor{AccountID: "user-1", Role: authz.RoleBuyer}

	saved, err := svc.Create(context.Background(), owner, "user-1", "Doomed", Criteria{}, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	stranger := authz.Actor{AccountID: "user-2", Role: authz.RoleBuyer}
	if err := svc.Delete(context.Background(), stranger, saved.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}

	if err := svc.Delete(context.Background(), owner, saved.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(repo.searches) != 0 {
		t.Fatalf("search not removed")
	}
	if err := svc.Delete(context.Background(), owner, saved.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected NotFound after delete, got %v", err)
	}
}

func TestSeedDefault(t *testing.T) {
	svc, repo, pool := newSearchService()

	if err := svc.SeedDefault(context.Background(), "user-1", "My first search", []string{"house"}, []string{"suburbs"}, 0, 300_000); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(repo.searches) != 1 {
		t.Fatalf("expected 1 seeded search, got %d", len(repo.searches))
	}
	for _, s := range repo.searches {
		if !s.AlertsEnabled {
			t.Fatal("seeded searches default to alerts on")
		}
		if s.Name != "My first search" {
			t.Fatalf("unexpected name %q", s.Name)
		}
	}
	if !pool.lastTx.committed {
		t.Fatal("seeding must commit its transaction")
	}

	// Seeding respects the cap like any other create.
	for i := 0; i < MaxPerAccount-1; i++ {
		if err := svc.SeedDefault(context.Background(), "user-1", fmt.Sprintf("Seed %d", i), nil, nil, 0, 0); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}
	if err := svc.SeedDefault(context.Background(), "user-1", "Overflow", nil, nil, 0, 0); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected Conflict at capacity, got %v", err)
	}
}

// --- fakes ---

type fakeRepo struct {
	searches     map[string]SavedSearch
	lastCountTx  pgx.Tx
	lastCreateTx pgx.Tx
}

func (f *fakeRepo) CreateTx(ctx context.Context, tx pgx.Tx, s SavedSearch) (SavedSearch, error) {
	f.lastCreateTx = tx
	f.searches[s.ID] = s
	return s, nil
}

func (f *fakeRepo) CountByAccountTx(ctx context.Context, tx pgx.Tx, accountID string) (int, error) {
	f.lastCountTx = tx
	n := 0
	for _, s := range f.searches {
		if s.AccountID == accountID {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) ListByAccount(ctx context.Context, accountID string) ([]SavedSearch, error) {
	out := make([]SavedSearch, 0)
	for _, s := range f.searches {
		if s.AccountID == accountID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id string) (SavedSearch, error) {
	s, ok := f.searches[id]
	if !ok {
		return SavedSearch{}, fmt.Errorf("search: %s: %w", id, apperr.ErrNotFound)
	}
	return s, nil
}

func (f *fakeRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.searches[id]; !ok {
		return fmt.Errorf("search: %s: %w", id, apperr.ErrNotFound)
	}
	delete(f.searches, id)
	return nil
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
