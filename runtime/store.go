package runtime

import (
	"encoding/binary"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"tokenlending/crypto"
	"tokenlending/storage"
)

var (
	accountPrefix = []byte("account:")
	slotKey       = ethcrypto.Keccak256([]byte("bank-slot"))
)

func accountKey(key crypto.Pubkey) []byte {
	buf := make([]byte, len(accountPrefix)+len(key))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], key[:])
	return ethcrypto.Keccak256(buf)
}

// AccountStore persists accounts as RLP records keyed by keccak256 of the
// account address.
type AccountStore struct {
	db storage.Database
}

func NewAccountStore(db storage.Database) *AccountStore {
	return &AccountStore{db: db}
}

// Get loads the account stored at key.
func (s *AccountStore) Get(key crypto.Pubkey) (*Account, error) {
	data, err := s.db.Get(accountKey(key))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	acc := new(Account)
	if err := rlp.DecodeBytes(data, acc); err != nil {
		return nil, fmt.Errorf("decode account %s: %w", key, err)
	}
	return acc, nil
}

func (s *AccountStore) Put(key crypto.Pubkey, acc *Account) error {
	encoded, err := rlp.EncodeToBytes(acc)
	if err != nil {
		return err
	}
	return s.db.Put(accountKey(key), encoded)
}

func (s *AccountStore) stage(batch storage.Batch, key crypto.Pubkey, acc *Account) error {
	encoded, err := rlp.EncodeToBytes(acc)
	if err != nil {
		return fmt.Errorf("encode account %s: %w", key, err)
	}
	batch.Put(accountKey(key), encoded)
	return nil
}

func (s *AccountStore) Slot() (uint64, error) {
	data, err := s.db.Get(slotKey)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt slot record: %d bytes", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

func (s *AccountStore) PutSlot(slot uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], slot)
	return s.db.Put(slotKey, buf[:])
}
