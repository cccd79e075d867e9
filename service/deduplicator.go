package service

import (
	"fmt"
	"strings"
	"sync"
)

// MemoryDeduplicator is an in-process EventDeduplicator. Claims live for the
// lifetime of the process; cross-restart dedup is the history store's
// recorded-bet set.
type MemoryDeduplicator struct {
	mu      sync.Mutex
	claimed map[string]struct{}
}

// NewMemoryDeduplicator creates an empty claim registry
func NewMemoryDeduplicator() *MemoryDeduplicator {
	return &MemoryDeduplicator{claimed: make(map[string]struct{})}
}

// TryClaim returns true for the first caller of each id
func (d *MemoryDeduplicator) TryClaim(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.claimed[id]; ok {
		return false
	}
	d.claimed[id] = struct{}{}
	return true
}

// EventID identifies one log occurrence on chain
func EventID(txHash string, logIndex uint) string {
	return fmt.Sprintf("%s:%d", strings.ToLower(txHash), logIndex)
}

// SettlementID identifies one settled bet of an account
func SettlementID(account string, placedAt uint64) string {
	return fmt.Sprintf("%s:%d", strings.ToLower(account), placedAt)
}
