package state

import (
	"errors"

	"github.com/casperlabs/casper-node/types"
)

// Purse balance plumbing shared by genesis and the system contracts.
// Balances live under Balance keys as U512 CLValues; the URef itself is
// only the capability to touch them.

var (
	ErrMissingBalance      = errors.New("purse balance record missing")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// WriteBalance creates or overwrites the balance record of a purse.
func WriteBalance(tc *TrackingCopy, purse types.URef, amount types.Motes) {
	tc.Write(types.BalanceKey(purse), types.StoredCLValue(types.CLValueU512(amount)))
}

// ReadBalance returns the purse's balance, reporting absence explicitly.
func ReadBalance(tc *TrackingCopy, purse types.URef) (types.Motes, bool, error) {
	value, err := tc.Read(types.BalanceKey(purse))
	if err != nil {
		return types.Motes{}, false, err
	}
	if value == nil {
		return types.Motes{}, false, nil
	}
	clv, ok := value.AsCLValue()
	if !ok {
		return types.Motes{}, false, &TypeMismatchError{Expected: "CLValue", Found: value.TypeName()}
	}
	balance, err := clv.ToU512()
	if err != nil {
		return types.Motes{}, false, err
	}
	return balance, true, nil
}

// AddToBalance journals a commutative balance increase.
func AddToBalance(tc *TrackingCopy, purse types.URef, amount types.Motes) error {
	return tc.Add(types.BalanceKey(purse), AddU512Transform(amount))
}

// TransferBalance moves amount from one purse to another, failing without
// effect when the source cannot cover it.
func TransferBalance(tc *TrackingCopy, source, target types.URef, amount types.Motes) error {
	sourceBalance, ok, err := ReadBalance(tc, source)
	if err != nil {
		return err
	}
	if !ok {
		return ErrMissingBalance
	}
	if sourceBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	targetBalance, ok, err := ReadBalance(tc, target)
	if err != nil {
		return err
	}
	if !ok {
		return ErrMissingBalance
	}
	newSource, err := sourceBalance.Sub(amount)
	if err != nil {
		return err
	}
	newTarget, err := targetBalance.Add(amount)
	if err != nil {
		return err
	}
	WriteBalance(tc, source, newSource)
	WriteBalance(tc, target, newTarget)
	return nil
}
