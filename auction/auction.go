// Copyright 2021 Casper Association
// SPDX-License-Identifier: LGPL-3.0-only

// Package auction is the staking state machine: bids, delegations,
// unbonding with delay, slashing, era rotation and seigniorage
// distribution. Every public operation either commits its full effect or
// fails leaving state untouched; the caller discards the tracking copy's
// journal on the error path.
package auction

import (
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/casperlabs/casper-node/types"
)

// Auction executes staking operations against the providers of one call
// context.
type Auction struct {
	providers Providers
}

func New(providers Providers) *Auction {
	return &Auction{providers: providers}
}

// AddBid moves amount from sourcePurse into the validator's bonding
// purse, creating the bid if absent. The delegation rate is only set on
// creation. Returns the new staked amount.
func (a *Auction) AddBid(
	pk types.PublicKey,
	sourcePurse types.URef,
	delegationRate uint8,
	amount types.Motes,
) (types.Motes, error) {
	if a.providers.Runtime.GetCaller() != pk.AccountHash() {
		return types.Motes{}, ErrInvalidPublicKey
	}
	if delegationRate > types.DelegationRateDenominator {
		return types.Motes{}, ErrDelegationRateTooLarge
	}
	if amount.IsZero() {
		return types.Motes{}, ErrInvalidAmount
	}

	bids, err := a.getBids()
	if err != nil {
		return types.Motes{}, err
	}

	bid, exists := bids[pk]
	if !exists {
		bondingPurse, err := a.providers.System.CreatePurse()
		if err != nil {
			return types.Motes{}, ErrStorage
		}
		bid = types.NewBid(bondingPurse, types.Motes{}, delegationRate)
		bids[pk] = bid
	}

	if err := a.providers.System.Transfer(sourcePurse, bid.BondingPurse, amount); err != nil {
		return types.Motes{}, ErrTransferToBidPurse
	}
	if err := bid.IncreaseStake(amount); err != nil {
		return types.Motes{}, ErrArithmeticOverflow
	}
	bid.Inactive = false

	if err := a.setBids(bids); err != nil {
		return types.Motes{}, err
	}
	return bid.StakedAmount, nil
}

// WithdrawBid reduces the validator's stake and escrows the difference in
// a fresh unbonding purse maturing after the unbonding delay. A bid that
// reaches zero stake is marked inactive but stays in the table.
func (a *Auction) WithdrawBid(pk types.PublicKey, amount types.Motes) (types.Motes, error) {
	if a.providers.Runtime.GetCaller() != pk.AccountHash() {
		return types.Motes{}, ErrInvalidPublicKey
	}
	if amount.IsZero() {
		return types.Motes{}, ErrInvalidAmount
	}

	bids, err := a.getBids()
	if err != nil {
		return types.Motes{}, err
	}
	bid, exists := bids[pk]
	if !exists {
		return types.Motes{}, ErrValidatorNotFound
	}

	currentEra, err := a.getEraID()
	if err != nil {
		return types.Motes{}, err
	}
	if bid.IsLocked(currentEra) {
		return types.Motes{}, ErrValidatorFundsLocked
	}
	if bid.StakedAmount.Cmp(amount) < 0 {
		return types.Motes{}, ErrUnbondTooLarge
	}

	if err := a.createUnbondingPurse(pk, pk, bid.BondingPurse, amount); err != nil {
		return types.Motes{}, err
	}
	if err := bid.DecreaseStake(amount); err != nil {
		return types.Motes{}, ErrArithmeticOverflow
	}
	if bid.StakedAmount.IsZero() {
		bid.Inactive = true
	}

	if err := a.setBids(bids); err != nil {
		return types.Motes{}, err
	}
	return bid.StakedAmount, nil
}

// Delegate puts amount under a validator's bid for the calling delegator,
// creating the delegator entry on first use.
func (a *Auction) Delegate(
	delegatorKey, validatorKey types.PublicKey,
	sourcePurse types.URef,
	amount types.Motes,
) (types.Motes, error) {
	if a.providers.Runtime.GetCaller() != delegatorKey.AccountHash() {
		return types.Motes{}, ErrInvalidPublicKey
	}
	if amount.IsZero() {
		return types.Motes{}, ErrInvalidAmount
	}

	bids, err := a.getBids()
	if err != nil {
		return types.Motes{}, err
	}
	bid, exists := bids[validatorKey]
	if !exists {
		return types.Motes{}, ErrValidatorNotFound
	}

	delegator, exists := bid.Delegators[delegatorKey]
	if !exists {
		bondingPurse, err := a.providers.System.CreatePurse()
		if err != nil {
			return types.Motes{}, ErrStorage
		}
		delegator = &types.Delegator{
			BondingPurse: bondingPurse,
			ValidatorKey: validatorKey,
		}
		bid.Delegators[delegatorKey] = delegator
	}

	if err := a.providers.System.Transfer(sourcePurse, delegator.BondingPurse, amount); err != nil {
		return types.Motes{}, ErrTransferToBidPurse
	}
	if err := delegator.IncreaseStake(amount); err != nil {
		return types.Motes{}, ErrArithmeticOverflow
	}

	if err := a.setBids(bids); err != nil {
		return types.Motes{}, err
	}
	return delegator.StakedAmount, nil
}

// Undelegate reduces a delegation and escrows the difference in an
// unbonding purse attributed to the delegator.
func (a *Auction) Undelegate(
	delegatorKey, validatorKey types.PublicKey,
	amount types.Motes,
) (types.Motes, error) {
	if a.providers.Runtime.GetCaller() != delegatorKey.AccountHash() {
		return types.Motes{}, ErrInvalidPublicKey
	}
	if amount.IsZero() {
		return types.Motes{}, ErrInvalidAmount
	}

	bids, err := a.getBids()
	if err != nil {
		return types.Motes{}, err
	}
	bid, exists := bids[validatorKey]
	if !exists {
		return types.Motes{}, ErrValidatorNotFound
	}
	delegator, exists := bid.Delegators[delegatorKey]
	if !exists {
		return types.Motes{}, ErrDelegatorNotFound
	}
	if delegator.StakedAmount.Cmp(amount) < 0 {
		return types.Motes{}, ErrUnbondTooLarge
	}

	if err := a.createUnbondingPurse(validatorKey, delegatorKey, delegator.BondingPurse, amount); err != nil {
		return types.Motes{}, err
	}
	if err := delegator.DecreaseStake(amount); err != nil {
		return types.Motes{}, ErrArithmeticOverflow
	}

	if err := a.setBids(bids); err != nil {
		return types.Motes{}, err
	}
	return delegator.StakedAmount, nil
}

// Slash removes the bids of the given validators outright and drops every
// unbonding entry touching them, either side. Delegations those
// validators hold under other validators are untouched. System only.
func (a *Auction) Slash(validatorKeys []types.PublicKey) error {
	if a.providers.Runtime.GetCaller() != types.SystemAccountAddr {
		return ErrInvalidCaller
	}

	slashed := make(map[types.PublicKey]struct{}, len(validatorKeys))
	for _, pk := range validatorKeys {
		slashed[pk] = struct{}{}
	}

	bids, err := a.getBids()
	if err != nil {
		return err
	}
	for pk := range slashed {
		delete(bids, pk)
	}
	if err := a.setBids(bids); err != nil {
		return err
	}

	unbondingPurses, err := a.getUnbondingPurses()
	if err != nil {
		return err
	}
	remaining := types.UnbondingPurses{}
	for _, validatorKey := range types.SortedKeys(unbondingPurses) {
		if _, hit := slashed[validatorKey]; hit {
			continue
		}
		var kept []types.UnbondingPurse
		for _, entry := range unbondingPurses[validatorKey] {
			if _, hit := slashed[entry.UnbonderKey]; hit {
				continue
			}
			kept = append(kept, entry)
		}
		if len(kept) > 0 {
			remaining[validatorKey] = kept
		}
	}
	if err := a.setUnbondingPurses(remaining); err != nil {
		return err
	}

	log.WithField("count", len(validatorKeys)).Info("slashed validators")
	return nil
}

// candidate pairs a bid with its total stake for ranking.
type candidate struct {
	pk    types.PublicKey
	total types.Motes
}

// RunAuction ends the current era: pays out matured unbonds, elects the
// next validator set, advances the era counter and rotates the
// seigniorage snapshot window. System only.
func (a *Auction) RunAuction(eraEndTimestampMillis uint64) error {
	if a.providers.Runtime.GetCaller() != types.SystemAccountAddr {
		return ErrInvalidCaller
	}

	// Matured unbonds are paid out first so they do not count as stake in
	// the election below.
	if err := a.processUnbondRequests(); err != nil {
		return err
	}

	bids, err := a.getBids()
	if err != nil {
		return err
	}
	validatorSlots, err := a.getValidatorSlots()
	if err != nil {
		return err
	}
	auctionDelay, err := a.getAuctionDelay()
	if err != nil {
		return err
	}
	currentEra, err := a.getEraID()
	if err != nil {
		return err
	}

	candidates := make([]candidate, 0, len(bids))
	for _, pk := range types.SortedKeys(bids) {
		bid := bids[pk]
		if bid.Inactive {
			continue
		}
		total, err := bid.TotalStake()
		if err != nil {
			return ErrArithmeticOverflow
		}
		if total.IsZero() {
			continue
		}
		candidates = append(candidates, candidate{pk: pk, total: total})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		switch candidates[i].total.Cmp(candidates[j].total) {
		case 1:
			return true
		case -1:
			return false
		default:
			return candidates[i].pk.Compare(candidates[j].pk) < 0
		}
	})
	if len(candidates) > validatorSlots {
		candidates = candidates[:validatorSlots]
	}

	newEra := currentEra.Successor()
	recipients := make(types.SeigniorageRecipients, len(candidates))
	for _, c := range candidates {
		recipients[c.pk] = types.RecipientFromBid(bids[c.pk])
	}

	snapshot, err := a.getSnapshot()
	if err != nil {
		return err
	}
	snapshot.PruneBelow(newEra)
	snapshot.Put(newEra+types.EraID(auctionDelay), recipients)

	if err := a.setEraID(newEra); err != nil {
		return err
	}
	if err := a.setSnapshot(snapshot); err != nil {
		return err
	}
	if err := a.setBids(bids); err != nil {
		return err
	}
	if err := a.setU64(types.EraEndTimestampMillisKey, eraEndTimestampMillis); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"era":     newEra,
		"winners": len(candidates),
	}).Info("ran auction")
	return nil
}

// ReadEraID returns the current era counter. Read-only, any caller.
func (a *Auction) ReadEraID() (types.EraID, error) {
	return a.getEraID()
}

// ReadSeigniorageRecipients returns the recipients frozen for the current
// era. Read-only, any caller.
func (a *Auction) ReadSeigniorageRecipients() (types.SeigniorageRecipients, error) {
	era, err := a.getEraID()
	if err != nil {
		return nil, err
	}
	snapshot, err := a.getSnapshot()
	if err != nil {
		return nil, err
	}
	recipients, ok := snapshot.Get(era)
	if !ok {
		return nil, ErrMissingValue
	}
	return recipients, nil
}

// GetEraValidators returns the current era's validator weights: each
// recipient's total stake. Read-only, any caller.
func (a *Auction) GetEraValidators() (map[types.PublicKey]types.Motes, error) {
	recipients, err := a.ReadSeigniorageRecipients()
	if err != nil {
		return nil, err
	}
	weights := make(map[types.PublicKey]types.Motes, len(recipients))
	for pk, recipient := range recipients {
		total, err := recipient.TotalStake()
		if err != nil {
			return nil, ErrArithmeticOverflow
		}
		weights[pk] = total
	}
	return weights, nil
}

// WithdrawValidatorReward pays out a validator's accumulated
// non-reinvested reward from the validator reward purse.
func (a *Auction) WithdrawValidatorReward(
	pk types.PublicKey,
	targetPurse types.URef,
) (types.Motes, error) {
	if a.providers.Runtime.GetCaller() != pk.AccountHash() {
		return types.Motes{}, ErrInvalidPublicKey
	}

	rewards, err := a.getValidatorRewardMap()
	if err != nil {
		return types.Motes{}, err
	}
	amount, ok := rewards[pk]
	if !ok {
		return types.Motes{}, ErrMissingReward
	}

	rewardPurse, err := a.namedPurse(types.ValidatorRewardPurseKey)
	if err != nil {
		return types.Motes{}, ErrMissingValidatorRewardPurse
	}
	if err := a.providers.System.Transfer(rewardPurse, targetPurse, amount); err != nil {
		return types.Motes{}, ErrTransferToBidPurse
	}

	delete(rewards, pk)
	if err := a.setValidatorRewardMap(rewards); err != nil {
		return types.Motes{}, err
	}
	return amount, nil
}

// WithdrawDelegatorReward pays out a delegator's accumulated
// non-reinvested reward for one validator from the delegator reward
// purse.
func (a *Auction) WithdrawDelegatorReward(
	delegatorKey, validatorKey types.PublicKey,
	targetPurse types.URef,
) (types.Motes, error) {
	if a.providers.Runtime.GetCaller() != delegatorKey.AccountHash() {
		return types.Motes{}, ErrInvalidPublicKey
	}

	rewards, err := a.getDelegatorRewardMap()
	if err != nil {
		return types.Motes{}, err
	}
	perValidator, ok := rewards[delegatorKey]
	if !ok {
		return types.Motes{}, ErrMissingReward
	}
	amount, ok := perValidator[validatorKey]
	if !ok {
		return types.Motes{}, ErrMissingReward
	}

	rewardPurse, err := a.namedPurse(types.DelegatorRewardPurseKey)
	if err != nil {
		return types.Motes{}, ErrMissingDelegatorRewardPurse
	}
	if err := a.providers.System.Transfer(rewardPurse, targetPurse, amount); err != nil {
		return types.Motes{}, ErrTransferToBidPurse
	}

	delete(perValidator, validatorKey)
	if len(perValidator) == 0 {
		delete(rewards, delegatorKey)
	}
	if err := a.setDelegatorRewardMap(rewards); err != nil {
		return types.Motes{}, err
	}
	return amount, nil
}
