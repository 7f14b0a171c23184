package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"estateflow/account"
	"estateflow/apperr"
	"estateflow/authz"
)

// TestVerificationWorkflow_Integration connects to a real PostgreSQL via
// DATABASE_URL and exercises the full apply/reject/re-apply/approve cycle,
// including the unique-owner guard under concurrent applications.
func TestVerificationWorkflow_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if !tableExists(ctx, t, pool, "accounts") || !tableExists(ctx, t, pool, "agent_profiles") {
		t.Skip("database schema missing; apply migrations/001_schema.sql first")
	}

	accounts := account.NewRepository(pool)
	profiles := NewRepository(pool)
	svc := NewService(pool, profiles, accounts)

	email := fmt.Sprintf("itest-agent-%d@example.com", time.Now().UnixNano())
	acct, err := accounts.Create(ctx, account.CreateParams{
		Email:        email,
		FullName:     "Integration Agent",
		PasswordHash: "x",
		PrimaryRole:  account.RoleAgent,
	})
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM agent_profiles WHERE owner_account_id = $1`, acct.ID)
		pool.Exec(ctx2, `DELETE FROM accounts WHERE id = $1`, acct.ID)
	})

	applicant := authz.Actor{AccountID: acct.ID, Role: authz.RoleAgent}
	admin := authz.Actor{AccountID: "itest-admin", Role: authz.RoleAdmin}

	// Two concurrent applications; exactly one may create the profile.
	var (
		wg      sync.WaitGroup
		results = make([]error, 2)
		applied = make([]Profile, 2)
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			applied[i], results[i] = svc.Apply(ctx, applicant, ApplicationData{
				LicenseNumber: "LIC-1001",
				LicenseState:  "NY",
			})
		}(i)
	}
	wg.Wait()

	var winner Profile
	okCount := 0
	for i := 0; i < 2; i++ {
		if results[i] == nil {
			okCount++
			winner = applied[i]
		} else if !errors.Is(results[i], apperr.ErrConflict) {
			t.Fatalf("loser must fail with Conflict, got %v", results[i])
		}
	}
	if okCount != 1 {
		t.Fatalf("expected exactly one successful application, got %d", okCount)
	}

	var profileCount int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM agent_profiles WHERE owner_account_id = $1`, acct.ID).Scan(&profileCount); err != nil {
		t.Fatalf("count profiles: %v", err)
	}
	if profileCount != 1 {
		t.Fatalf("expected 1 profile row, got %d", profileCount)
	}

	reloaded, err := accounts.GetByID(ctx, acct.ID)
	if err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if reloaded.AgentVerificationStatus != account.VerificationPending {
		t.Fatalf("expected pending after apply, got %s", reloaded.AgentVerificationStatus)
	}

	// Reject, then re-apply: same profile row, refreshed license data.
	if _, err := svc.Verify(ctx, admin, winner.ID, VerifyReject); err != nil {
		t.Fatalf("reject: %v", err)
	}
	reapplied, err := svc.Apply(ctx, applicant, ApplicationData{
		LicenseNumber: "LIC-2002",
		LicenseState:  "NJ",
	})
	if err != nil {
		t.Fatalf("re-apply after rejection: %v", err)
	}
	if reapplied.ID != winner.ID {
		t.Fatalf("re-application must reuse the profile, got %s want %s", reapplied.ID, winner.ID)
	}
	if reapplied.LicenseNumber != "LIC-2002" || reapplied.LicenseState != "NJ" {
		t.Fatalf("license not refreshed: %+v", reapplied)
	}

	// Approve and check both rows landed together.
	approved, err := svc.Verify(ctx, admin, winner.ID, VerifyApprove)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !approved.IsActive {
		t.Fatal("approved profile must be active")
	}
	reloaded, err = accounts.GetByID(ctx, acct.ID)
	if err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if reloaded.AgentVerificationStatus != account.VerificationVerified {
		t.Fatalf("expected verified, got %s", reloaded.AgentVerificationStatus)
	}
	if !reloaded.Onboarding.Agent || !reloaded.IsProfileComplete {
		t.Fatalf("approval should complete agent onboarding: %+v", reloaded.Onboarding)
	}

	// Verified is terminal for applications.
	if _, err := svc.Apply(ctx, applicant, ApplicationData{LicenseNumber: "LIC-3003", LicenseState: "CT"}); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected Conflict applying while verified, got %v", err)
	}
}

func tableExists(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) bool {
	t.Helper()
	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`, name).Scan(&exists)
	if err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return exists
}
