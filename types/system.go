package types

// Names of the four system contracts, as registered in the system
// account's named keys.
const (
	MintContractName            = "mint"
	ProofOfStakeContractName    = "proof of stake"
	AuctionContractName         = "auction"
	StandardPaymentContractName = "standard payment"
)

// Named keys of the mint contract.
const (
	RoundSeigniorageRateKey = "round_seigniorage_rate"
	TotalSupplyKey          = "total_supply"
)

// Named key of the proof-of-stake contract.
const PosPaymentPurseKey = "pos_payment_purse"

// Named keys of the auction contract.
const (
	ValidatorRewardPurseKey          = "validator_reward_purse"
	DelegatorRewardPurseKey          = "delegator_reward_purse"
	EraIDKey                         = "era_id"
	EraEndTimestampMillisKey         = "era_end_timestamp_millis"
	BidsKey                          = "bids"
	UnbondingPursesKey               = "unbonding_purses"
	ValidatorSlotsKey                = "validator_slots"
	AuctionDelayKey                  = "auction_delay"
	LockedFundsPeriodKey             = "locked_funds_period"
	UnbondingDelayKey                = "unbonding_delay"
	SeigniorageRecipientsSnapshotKey = "seigniorage_recipients_snapshot"
	ValidatorRewardMapKey            = "validator_reward_map"
	DelegatorRewardMapKey            = "delegator_reward_map"
)

// Entry points of the mint contract.
const (
	MethodMint                = "mint"
	MethodReduceTotalSupply   = "reduce_total_supply"
	MethodCreate              = "create"
	MethodBalance             = "balance"
	MethodTransfer            = "transfer"
	MethodReadBaseRoundReward = "read_base_round_reward"
)

// Entry points of the proof-of-stake contract.
const (
	MethodGetPaymentPurse = "get_payment_purse"
	MethodSetRefundPurse  = "set_refund_purse"
	MethodGetRefundPurse  = "get_refund_purse"
	MethodFinalizePayment = "finalize_payment"
)

// Entry points of the auction contract.
const (
	MethodGetEraValidators          = "get_era_validators"
	MethodReadSeigniorageRecipients = "read_seigniorage_recipients"
	MethodAddBid                    = "add_bid"
	MethodWithdrawBid               = "withdraw_bid"
	MethodDelegate                  = "delegate"
	MethodUndelegate                = "undelegate"
	MethodRunAuction                = "run_auction"
	MethodSlash                     = "slash"
	MethodDistribute                = "distribute"
	MethodWithdrawDelegatorReward   = "withdraw_delegator_reward"
	MethodWithdrawValidatorReward   = "withdraw_validator_reward"
	MethodReadEraID                 = "read_era_id"
)

// Entry point of the standard-payment contract.
const MethodCall = "call"

// InitialEraID is the era in which the chain starts.
const InitialEraID EraID = 0
