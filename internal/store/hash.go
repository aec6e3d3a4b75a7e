package store

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"sort"

	"github.com/google/uuid"
)

const genesisHashSeed = "perpcore:genesis:v1"

// HashChain computes the running state-hash chain
// hash[N] = SHA-256(prev_hash || sequence || state_digest), letting two
// replicas compare a single 32-byte value to confirm they settled the
// same operations over the same records.
type HashChain struct {
	prev [32]byte
}

func NewHashChain() *HashChain {
	return &HashChain{prev: sha256.Sum256([]byte(genesisHashSeed))}
}

// Extend folds the next digest into the chain and returns the new tip.
func (h *HashChain) Extend(sequence int64, stateDigest []byte) [32]byte {
	hasher := sha256.New()
	hasher.Write(h.prev[:])

	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], uint64(sequence))
	hasher.Write(seqBuf[:])
	hasher.Write(stateDigest)

	copy(h.prev[:], hasher.Sum(nil))
	return h.prev
}

// Tip returns the current chain head.
func (h *HashChain) Tip() [32]byte {
	return h.prev
}

// Digest renders a deterministic fingerprint of every record in the
// store. Records are serialized in sorted key order, so two stores with
// equal contents produce equal digests regardless of map iteration.
func (s *MemoryStore) Digest() ([]byte, error) {
	hasher := sha256.New()

	userKeys := make([]uuid.UUID, 0, len(s.users))
	for id := range s.users {
		userKeys = append(userKeys, id)
	}
	sort.Slice(userKeys, func(i, j int) bool {
		return userKeys[i].String() < userKeys[j].String()
	})
	for _, k := range userKeys {
		if err := writeRecord(hasher, s.users[k]); err != nil {
			return nil, err
		}
	}

	poolKeys := make([]string, 0, len(s.pools))
	for id := range s.pools {
		poolKeys = append(poolKeys, id)
	}
	sort.Strings(poolKeys)
	for _, k := range poolKeys {
		if err := writeRecord(hasher, s.pools[k]); err != nil {
			return nil, err
		}
	}

	marketKeys := make([]string, 0, len(s.markets))
	for sym := range s.markets {
		marketKeys = append(marketKeys, sym)
	}
	sort.Strings(marketKeys)
	for _, k := range marketKeys {
		if err := writeRecord(hasher, s.markets[k]); err != nil {
			return nil, err
		}
	}

	tokenKeys := make([]string, 0, len(s.tokens))
	for mint := range s.tokens {
		tokenKeys = append(tokenKeys, mint)
	}
	sort.Strings(tokenKeys)
	for _, k := range tokenKeys {
		if err := writeRecord(hasher, s.tokens[k]); err != nil {
			return nil, err
		}
	}

	return hasher.Sum(nil), nil
}

func writeRecord(w interface{ Write([]byte) (int, error) }, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
