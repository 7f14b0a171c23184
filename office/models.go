package office

import "time"

// Office is a franchise branch. The manager's profile is always a member of
// AgentIDs, and the manager's owning account carries the manager role for as
// long as it holds the office.
type Office struct {
	ID             string
	FranchiseID    string
	Name           string
	Address        *string
	City           *string
	State          *string
	ManagerAgentID string
	AgentIDs       []string
	Statistics     Statistics
	IsActive       bool
	DeletedAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Statistics is a derived aggregate. It is recomputed from stored rows on
// read and never hand-edited.
type Statistics struct {
	TotalAgents    int
	ActiveListings int
}

// ComputeStatistics derives the aggregate from its inputs.
func ComputeStatistics(agentIDs []string, activeListings int) Statistics {
	return Statistics{
		TotalAgents:    len(agentIDs),
		ActiveListings: activeListings,
	}
}
