package cqrs

// ListProfilesQuery lists every profile joined with its role. Admin only.
type ListProfilesQuery struct {
	ActorID string
}

// GetProfileQuery fetches one profile; allowed for the owner or an admin.
type GetProfileQuery struct {
	ActorID   string
	AccountID string
}

// ListLedgerEntriesQuery fetches the balance history of an account, newest first.
type ListLedgerEntriesQuery struct {
	ActorID   string
	AccountID string
}

// GetLimitUsageQuery reports spend against each configured limit window.
type GetLimitUsageQuery struct {
	ActorID   string
	AccountID string
}
