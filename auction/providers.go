package auction

import (
	"github.com/casperlabs/casper-node/types"
)

// RuntimeProvider exposes the host context of the executing call.
type RuntimeProvider interface {
	// GetCaller returns the account that initiated the current call.
	GetCaller() types.AccountHash
}

// StorageProvider is the auction contract's view of its own storage: its
// named keys and the cells they point at.
type StorageProvider interface {
	// GetKey resolves one of the contract's named keys.
	GetKey(name string) (types.Key, bool)
	// Read returns the value stored under a uref, absent as (zero, false).
	Read(uref types.URef) (types.CLValue, bool, error)
	// Write replaces the value stored under a uref.
	Write(uref types.URef, value types.CLValue) error
}

// SystemProvider exposes the mint functionality the auction needs: purse
// creation, balances and transfers.
type SystemProvider interface {
	// CreatePurse mints a new empty purse.
	CreatePurse() (types.URef, error)
	// GetBalance returns a purse's balance, absent as (zero, false).
	GetBalance(purse types.URef) (types.Motes, bool, error)
	// Transfer moves amount between two purses.
	Transfer(source, target types.URef, amount types.Motes) error
	// TransferToAccount moves amount from a purse to an account's main
	// purse.
	TransferToAccount(source types.URef, target types.AccountHash, amount types.Motes) error
	// MintIntoPurse creates new supply directly in a purse. System use
	// only; backs seigniorage.
	MintIntoPurse(target types.URef, amount types.Motes) error
	// ReadBaseRoundReward computes the current per-round seigniorage.
	ReadBaseRoundReward() (types.Motes, error)
	// RecordEraInfo appends the era's seigniorage audit log under its
	// EraInfo key.
	RecordEraInfo(era types.EraID, info types.EraInfo) error
}

// Providers bundles the host capabilities of one auction call.
type Providers struct {
	Runtime RuntimeProvider
	Storage StorageProvider
	System  SystemProvider
}
