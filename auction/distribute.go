package auction

import (
	"math/big"

	log "github.com/sirupsen/logrus"

	"github.com/casperlabs/casper-node/types"
)

// Distribute splits the era's inflation across the era's seigniorage
// recipients proportionally to the given reward factors. Shares are
// reinvested: they increase the staked amounts and flow from the reward
// purses into the bonding purses. A share whose bid or delegation no
// longer exists is credited to the reward maps instead, withdrawable
// later; truncation dust stays in the reward purses. System only.
func (a *Auction) Distribute(rewardFactors map[types.PublicKey]uint64) error {
	if a.providers.Runtime.GetCaller() != types.SystemAccountAddr {
		return ErrInvalidCaller
	}

	var totalFactors uint64
	for _, factor := range rewardFactors {
		totalFactors += factor
	}
	if totalFactors == 0 {
		return ErrInvalidAmount
	}

	totalReward, err := a.providers.System.ReadBaseRoundReward()
	if err != nil {
		return err
	}

	era, err := a.getEraID()
	if err != nil {
		return err
	}
	snapshot, err := a.getSnapshot()
	if err != nil {
		return err
	}
	recipients, ok := snapshot.Get(era)
	if !ok {
		return ErrMissingValue
	}

	bids, err := a.getBids()
	if err != nil {
		return err
	}
	validatorRewardMap, err := a.getValidatorRewardMap()
	if err != nil {
		return err
	}
	delegatorRewardMap, err := a.getDelegatorRewardMap()
	if err != nil {
		return err
	}
	validatorRewardPurse, err := a.namedPurse(types.ValidatorRewardPurseKey)
	if err != nil {
		return ErrMissingValidatorRewardPurse
	}
	delegatorRewardPurse, err := a.namedPurse(types.DelegatorRewardPurseKey)
	if err != nil {
		return ErrMissingDelegatorRewardPurse
	}

	var allocations []types.SeigniorageAllocation

	for _, pk := range types.SortedKeys(rewardFactors) {
		factor := rewardFactors[pk]
		recipient, ok := recipients[pk]
		if !ok {
			continue
		}

		share, err := totalReward.MulDiv(
			new(big.Int).SetUint64(factor),
			new(big.Int).SetUint64(totalFactors),
		)
		if err != nil {
			return ErrArithmeticOverflow
		}
		if share.IsZero() {
			continue
		}

		totalStake, err := recipient.TotalStake()
		if err != nil {
			return ErrArithmeticOverflow
		}
		if totalStake.IsZero() {
			continue
		}
		delegatorTotal, err := sumDelegatorStake(recipient)
		if err != nil {
			return ErrArithmeticOverflow
		}

		// Delegators earn their pro-rata part of the share, minus the
		// validator's commission.
		delegatorsPart, err := share.MulDiv(delegatorTotal.Big(), totalStake.Big())
		if err != nil {
			return ErrArithmeticOverflow
		}
		commission, err := delegatorsPart.MulDiv(
			new(big.Int).SetUint64(uint64(recipient.DelegationRate)),
			new(big.Int).SetUint64(types.DelegationRateDenominator),
		)
		if err != nil {
			return ErrArithmeticOverflow
		}
		delegatorsPayout, err := delegatorsPart.Sub(commission)
		if err != nil {
			return ErrArithmeticOverflow
		}
		validatorPart, err := share.Sub(delegatorsPayout)
		if err != nil {
			return ErrArithmeticOverflow
		}

		if err := a.distributeValidatorShare(
			pk, validatorPart, bids, validatorRewardMap, validatorRewardPurse, &allocations,
		); err != nil {
			return err
		}
		if err := a.distributeDelegatorShares(
			pk, recipient, delegatorsPayout, delegatorTotal,
			bids, delegatorRewardMap, delegatorRewardPurse, &allocations,
		); err != nil {
			return err
		}
	}

	if err := a.providers.System.RecordEraInfo(era, types.EraInfo{SeigniorageAllocations: allocations}); err != nil {
		return ErrStorage
	}
	if err := a.setBids(bids); err != nil {
		return err
	}
	if err := a.setValidatorRewardMap(validatorRewardMap); err != nil {
		return err
	}
	if err := a.setDelegatorRewardMap(delegatorRewardMap); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"era":         era,
		"totalReward": totalReward,
		"allocations": len(allocations),
	}).Debug("distributed seigniorage")
	return nil
}

func (a *Auction) distributeValidatorShare(
	pk types.PublicKey,
	amount types.Motes,
	bids types.Bids,
	rewardMap types.ValidatorRewards,
	rewardPurse types.URef,
	allocations *[]types.SeigniorageAllocation,
) error {
	if amount.IsZero() {
		return nil
	}
	if err := a.providers.System.MintIntoPurse(rewardPurse, amount); err != nil {
		return ErrStorage
	}

	bid, exists := bids[pk]
	if !exists {
		// Slashed since election; the share stays withdrawable.
		credited, err := rewardMap[pk].Add(amount)
		if err != nil {
			return ErrArithmeticOverflow
		}
		rewardMap[pk] = credited
		return nil
	}

	if err := a.providers.System.Transfer(rewardPurse, bid.BondingPurse, amount); err != nil {
		return ErrTransferToBidPurse
	}
	if err := bid.IncreaseStake(amount); err != nil {
		return ErrArithmeticOverflow
	}
	*allocations = append(*allocations, types.ValidatorAllocation(pk, amount))
	return nil
}

func (a *Auction) distributeDelegatorShares(
	validatorKey types.PublicKey,
	recipient types.SeigniorageRecipient,
	payout, delegatorTotal types.Motes,
	bids types.Bids,
	rewardMap types.DelegatorRewards,
	rewardPurse types.URef,
	allocations *[]types.SeigniorageAllocation,
) error {
	if payout.IsZero() || delegatorTotal.IsZero() {
		return nil
	}

	bid := bids[validatorKey]

	for _, delegatorKey := range types.SortedKeys(recipient.DelegatorStake) {
		stake := recipient.DelegatorStake[delegatorKey]
		amount, err := payout.MulDiv(stake.Big(), delegatorTotal.Big())
		if err != nil {
			return ErrArithmeticOverflow
		}
		if amount.IsZero() {
			continue
		}
		if err := a.providers.System.MintIntoPurse(rewardPurse, amount); err != nil {
			return ErrStorage
		}

		var delegator *types.Delegator
		if bid != nil {
			delegator = bid.Delegators[delegatorKey]
		}
		if delegator == nil {
			// The delegation is gone; the share stays withdrawable.
			perValidator := rewardMap[delegatorKey]
			if perValidator == nil {
				perValidator = types.ValidatorRewards{}
				rewardMap[delegatorKey] = perValidator
			}
			credited, err := perValidator[validatorKey].Add(amount)
			if err != nil {
				return ErrArithmeticOverflow
			}
			perValidator[validatorKey] = credited
			continue
		}

		if err := a.providers.System.Transfer(rewardPurse, delegator.BondingPurse, amount); err != nil {
			return ErrTransferToBidPurse
		}
		if err := delegator.IncreaseStake(amount); err != nil {
			return ErrArithmeticOverflow
		}
		*allocations = append(*allocations, types.DelegatorAllocation(delegatorKey, validatorKey, amount))
	}
	return nil
}

func sumDelegatorStake(recipient types.SeigniorageRecipient) (types.Motes, error) {
	var total types.Motes
	for _, pk := range types.SortedKeys(recipient.DelegatorStake) {
		var err error
		total, err = total.Add(recipient.DelegatorStake[pk])
		if err != nil {
			return types.Motes{}, err
		}
	}
	return total, nil
}
