package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Applicant hammers the agent application path for one account: profile insert
// plus account status flip in a single transaction. Only one profile may ever
// exist per owner; the unique index resolves concurrent attempts.
func Applicant(ctx context.Context, pool *pgxpool.Pool, accountID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `INSERT INTO agent_profiles (owner_account_id, license_number, license_state, is_active)
                               VALUES ($1, $2, 'NY', false)`, accountID, fmt.Sprintf("LIC-%d", rand.Int63()))
		if err == nil {
			_, err = tx.Exec(ctx, `UPDATE accounts
                                   SET agent_verification_status = 'pending',
                                       agent_id = (SELECT id FROM agent_profiles WHERE owner_account_id = $1)
                                   WHERE id = $1`, accountID)
		}
		if err != nil {
			var pgErr *pgconn.PgError
			if !errors.As(err, &pgErr) || pgErr.Code != "23505" { // duplicate owner is expected under contention
				_ = tx.Rollback(ctx)
				return fmt.Errorf("applicant: %w", err)
			}
			_ = tx.Rollback(ctx)
		} else {
			_ = tx.Commit(ctx)
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Verifier approves or rejects pending applications the way the admin workflow
// does: profile activation and account status land in the same transaction.
func Verifier(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var profileID, ownerID string
		err = tx.QueryRow(ctx, `SELECT p.id, p.owner_account_id FROM agent_profiles p
                                JOIN accounts a ON a.id = p.owner_account_id
                                WHERE a.agent_verification_status = 'pending'
                                LIMIT 1 FOR UPDATE OF p`).Scan(&profileID, &ownerID)
		if err == nil {
			if rand.Intn(3) == 0 {
				_, err = tx.Exec(ctx, `UPDATE accounts SET agent_verification_status = 'rejected' WHERE id = $1`, ownerID)
			} else {
				_, err = tx.Exec(ctx, `UPDATE agent_profiles SET is_active = true, updated_at = now() WHERE id = $1`, profileID)
				if err == nil {
					_, err = tx.Exec(ctx, `UPDATE accounts
                                           SET agent_verification_status = 'verified', onboarded_agent = true
                                           WHERE id = $1`, ownerID)
				}
			}
		}
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			_ = tx.Commit(ctx)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Founder races to create offices for the same franchise id. The unique index
// on franchise_id picks one winner; the office and the manager promotion must
// land atomically.
func Founder(ctx context.Context, pool *pgxpool.Pool, franchiseID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var profileID, ownerID string
		err = tx.QueryRow(ctx, `SELECT p.id, p.owner_account_id FROM agent_profiles p
                                JOIN accounts a ON a.id = p.owner_account_id
                                WHERE p.is_active AND a.agent_verification_status = 'verified'
                                ORDER BY random() LIMIT 1 FOR UPDATE OF p`).Scan(&profileID, &ownerID)
		if err == nil {
			var officeID string
			err = tx.QueryRow(ctx, `INSERT INTO offices (franchise_id, name, manager_agent_id, agent_ids)
                                    VALUES ($1, 'Stress Office', $2, ARRAY[$2::uuid])
                                    RETURNING id`, franchiseID, profileID).Scan(&officeID)
			if err == nil {
				_, err = tx.Exec(ctx, `UPDATE agent_profiles SET office_id = $1 WHERE id = $2`, officeID, profileID)
				if err == nil {
					_, err = tx.Exec(ctx, `UPDATE accounts SET primary_role = 'manager', office_id = $1 WHERE id = $2`, officeID, ownerID)
				}
			}
		}
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code != "23505" {
				_ = tx.Rollback(ctx)
				return fmt.Errorf("founder: %w", err)
			}
			_ = tx.Rollback(ctx)
		} else {
			_ = tx.Commit(ctx)
		}
		time.Sleep(time.Duration(50+rand.Intn(100)) * time.Millisecond)
	}
}

// Lister submits seller properties and assigns pending ones to active agents,
// activating them with agent and office in the same statement.
func Lister(ctx context.Context, pool *pgxpool.Pool, sellerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, `INSERT INTO properties (title, price, status, seller_account_id)
                                  VALUES ($1, $2, 'pending', $3)`,
			fmt.Sprintf("Listing %d", rand.Int63()), int64(100_000+rand.Intn(900_000)), sellerID)
		if err != nil {
			return fmt.Errorf("lister insert: %w", err)
		}

		// Assignment mirrors the staff path: one UPDATE sets agent, office and
		// active status together so no observer sees a half-assigned listing.
		_, err = pool.Exec(ctx, `UPDATE properties
                                 SET listing_agent_id = p.id, listing_office_id = o.id, status = 'active', updated_at = now()
                                 FROM agent_profiles p
                                 JOIN offices o ON o.id = p.office_id AND o.deleted_at IS NULL
                                 WHERE properties.id = (SELECT id FROM properties WHERE status = 'pending' LIMIT 1)
                                   AND p.is_active`)
		if err != nil {
			return fmt.Errorf("lister assign: %w", err)
		}
		time.Sleep(time.Duration(30+rand.Intn(60)) * time.Millisecond)
	}
}

// Closer moves active listings to sold or off-market.
func Closer(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		next := "sold"
		if rand.Intn(4) == 0 {
			next = "off-market"
		}
		_, _ = pool.Exec(ctx, `UPDATE properties SET status = $1, updated_at = now()
                               WHERE id = (SELECT id FROM properties WHERE status = 'active' LIMIT 1)`, next)
		time.Sleep(time.Duration(60+rand.Intn(120)) * time.Millisecond)
	}
}

// SearchSaver stores saved searches and enforces the per-account cap the way
// the service does: count inside the transaction before inserting.
func SearchSaver(ctx context.Context, pool *pgxpool.Pool, accountID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		// Serialize cap checks per account by locking the owner row first.
		var count int
		_, err = tx.Exec(ctx, `SELECT 1 FROM accounts WHERE id = $1 FOR UPDATE`, accountID)
		if err == nil {
			err = tx.QueryRow(ctx, `SELECT COUNT(*) FROM saved_searches WHERE account_id = $1`, accountID).Scan(&count)
		}
		if err == nil && count < 10 {
			_, err = tx.Exec(ctx, `INSERT INTO saved_searches (account_id, name) VALUES ($1, $2)`,
				accountID, fmt.Sprintf("Search %d", rand.Int63()))
		}
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			_ = tx.Commit(ctx)
		}

		// Occasionally free a slot so the cap stays contended.
		if rand.Intn(5) == 0 {
			_, _ = pool.Exec(ctx, `DELETE FROM saved_searches
                                   WHERE id = (SELECT id FROM saved_searches WHERE account_id = $1 LIMIT 1)`, accountID)
		}
		time.Sleep(time.Duration(15+rand.Intn(30)) * time.Millisecond)
	}
}
