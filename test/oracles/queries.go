package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the cross-table invariants the stress run checks continuously.
// Each query must return zero rows on a healthy database.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_one_profile_per_owner",
			SQL: `SELECT owner_account_id, COUNT(*) FROM agent_profiles
                  GROUP BY owner_account_id HAVING COUNT(*) > 1`,
		},
		{
			// Office deletion may deactivate a verified owner's profile, so
			// only the converse holds: activation never outruns verification.
			Name: "O2_active_profile_owner_verified",
			SQL: `SELECT p.id FROM agent_profiles p
                  JOIN accounts a ON a.id = p.owner_account_id
                  WHERE p.is_active AND a.agent_verification_status <> 'verified'`,
		},
		{
			Name: "O3_application_implies_profile",
			SQL: `SELECT a.id FROM accounts a
                  WHERE a.agent_verification_status IN ('pending','verified','rejected')
                    AND NOT EXISTS (SELECT 1 FROM agent_profiles p WHERE p.owner_account_id = a.id)`,
		},
		{
			Name: "O4_manager_in_member_set",
			SQL: `SELECT id FROM offices
                  WHERE deleted_at IS NULL
                    AND NOT (manager_agent_id = ANY(agent_ids))`,
		},
		{
			Name: "O5_no_links_to_deleted_office",
			SQL: `SELECT a.id FROM accounts a
                  JOIN offices o ON o.id = a.office_id
                  WHERE o.deleted_at IS NOT NULL
                  UNION ALL
                  SELECT p.id FROM agent_profiles p
                  JOIN offices o ON o.id = p.office_id
                  WHERE o.deleted_at IS NOT NULL`,
		},
		{
			Name: "O6_listed_property_fully_assigned",
			SQL: `SELECT id FROM properties
                  WHERE status IN ('active','sold')
                    AND (listing_agent_id IS NULL OR listing_office_id IS NULL)`,
		},
		{
			Name: "O7_saved_search_cap",
			SQL: `SELECT account_id, COUNT(*) FROM saved_searches
                  GROUP BY account_id HAVING COUNT(*) > 10`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row
// text) or an empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
