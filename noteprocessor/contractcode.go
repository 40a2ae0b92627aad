package noteprocessor

import (
	"context"

	"github.com/aztecprotocol/aztec-go-client/common"
	lru "github.com/hashicorp/golang-lru"
)

// ContractCodeProvider answers whether a contract's code is known
// locally. It is an external collaborator (the contract/bytecode
// registry is out of this module's scope per spec.md §1); NoteProcessor
// only depends on the interface.
type ContractCodeProvider interface {
	HasCode(ctx context.Context, contract common.Address) (bool, error)
}

// CachedContractCodeProvider wraps a ContractCodeProvider with an LRU of
// recent lookups, using hashicorp/golang-lru the same way the teacher
// caches hot lookups in front of slower backing stores (e.g.
// core/tx_noncer's lru.Cache). A positive result ("code is known") is
// cached for the lifetime of the process, since contract code is
// immutable once registered; a negative result is not cached, since the
// contract may register at any time and the next deferred-note
// reprocessing pass needs to observe that promptly.
type CachedContractCodeProvider struct {
	inner ContractCodeProvider
	cache *lru.Cache
}

// NewCachedContractCodeProvider wraps inner with an LRU of the given
// size.
func NewCachedContractCodeProvider(inner ContractCodeProvider, size int) (*CachedContractCodeProvider, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &CachedContractCodeProvider{inner: inner, cache: cache}, nil
}

func (c *CachedContractCodeProvider) HasCode(ctx context.Context, contract common.Address) (bool, error) {
	if v, ok := c.cache.Get(contract); ok {
		return v.(bool), nil
	}
	has, err := c.inner.HasCode(ctx, contract)
	if err != nil {
		return false, err
	}
	if has {
		c.cache.Add(contract, true)
	}
	return has, nil
}
