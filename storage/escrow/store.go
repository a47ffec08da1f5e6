// Package escrow provides persistence for bounty tasks, consumed
// funding transactions, and wallet roles.
package escrow

import (
	core "gigbounty-backend/core/escrow"
)

// Store is the full persistence surface of the bounty service. It
// satisfies the narrower interfaces the lifecycle controller consumes.
type Store interface {
	core.TaskStore
	core.UsedTxSet
	core.RoleStore
	Close()
}
