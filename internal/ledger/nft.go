package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotTokenOwner is returned when an NFT is moved by someone other than its owner.
var ErrNotTokenOwner = errors.New("not the owner of the token")

// NFTRegistry tracks ownership of non-fungible tokens by collection and id.
type NFTRegistry struct {
	mu     sync.RWMutex
	owners map[string]map[string]string
}

// NewNFTRegistry returns an empty registry.
func NewNFTRegistry() *NFTRegistry {
	return &NFTRegistry{owners: make(map[string]map[string]string)}
}

// Mint assigns a fresh token id in collection to owner.
func (r *NFTRegistry) Mint(collection, id, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids, ok := r.owners[collection]
	if !ok {
		ids = make(map[string]string)
		r.owners[collection] = ids
	}
	if _, taken := ids[id]; taken {
		return fmt.Errorf("token %s/%s already minted", collection, id)
	}
	ids[id] = owner
	return nil
}

// OwnerOf returns the current owner, or "" when the token does not exist.
func (r *NFTRegistry) OwnerOf(collection, id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owners[collection][id]
}

// Transfer moves a token between owners.
func (r *NFTRegistry) Transfer(collection, id, from, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owners[collection][id] != from {
		return fmt.Errorf("%w: %s/%s", ErrNotTokenOwner, collection, id)
	}
	r.owners[collection][id] = to
	return nil
}

// OwnedBy lists the ids of collection owned by owner, sorted.
func (r *NFTRegistry) OwnedBy(collection, owner string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, o := range r.owners[collection] {
		if o == owner {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
