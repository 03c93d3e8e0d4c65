package genesis

import (
	"github.com/casperlabs/casper-node/types"
)

// Entry-point tables of the four system contracts. The sets are closed:
// the mint exposes six methods, proof-of-stake four, the auction twelve
// and standard payment one.

func contractEP(name string, ret types.CLType, args ...types.Parameter) types.EntryPoint {
	return types.EntryPoint{Name: name, Args: args, Ret: ret, Kind: types.EntryPointContract}
}

func resultU8(ok types.CLType) types.CLType {
	return types.ResultType(ok, types.SimpleType(types.CLTypeU8))
}

func mintEntryPoints() types.EntryPoints {
	u512 := types.SimpleType(types.CLTypeU512)
	uref := types.SimpleType(types.CLTypeURef)

	eps := types.EntryPoints{}
	add := func(ep types.EntryPoint) { eps[ep.Name] = ep }

	add(contractEP(types.MethodMint, resultU8(uref),
		types.NewParameter("amount", u512)))
	add(contractEP(types.MethodReduceTotalSupply, resultU8(types.SimpleType(types.CLTypeUnit)),
		types.NewParameter("amount", u512)))
	add(contractEP(types.MethodCreate, uref))
	add(contractEP(types.MethodBalance, types.OptionType(u512),
		types.NewParameter("purse", uref)))
	add(contractEP(types.MethodTransfer, resultU8(types.SimpleType(types.CLTypeUnit)),
		types.NewParameter("source", uref),
		types.NewParameter("target", uref),
		types.NewParameter("amount", u512),
		types.NewParameter("id", types.OptionType(types.SimpleType(types.CLTypeU64)))))
	add(contractEP(types.MethodReadBaseRoundReward, u512))
	return eps
}

func proofOfStakeEntryPoints() types.EntryPoints {
	u512 := types.SimpleType(types.CLTypeU512)
	uref := types.SimpleType(types.CLTypeURef)
	unit := types.SimpleType(types.CLTypeUnit)

	eps := types.EntryPoints{}
	add := func(ep types.EntryPoint) { eps[ep.Name] = ep }

	add(contractEP(types.MethodGetPaymentPurse, uref))
	add(contractEP(types.MethodSetRefundPurse, unit,
		types.NewParameter("purse", uref)))
	add(contractEP(types.MethodGetRefundPurse, types.OptionType(uref)))
	add(contractEP(types.MethodFinalizePayment, unit,
		types.NewParameter("amount", u512),
		types.NewParameter("account", types.SimpleType(types.CLTypeKey))))
	return eps
}

func auctionEntryPoints() types.EntryPoints {
	u512 := types.SimpleType(types.CLTypeU512)
	u8 := types.SimpleType(types.CLTypeU8)
	u64 := types.SimpleType(types.CLTypeU64)
	uref := types.SimpleType(types.CLTypeURef)
	unit := types.SimpleType(types.CLTypeUnit)
	publicKey := types.SimpleType(types.CLTypePublicKey)
	weights := types.MapType(publicKey, u512)

	eps := types.EntryPoints{}
	add := func(ep types.EntryPoint) { eps[ep.Name] = ep }

	add(contractEP(types.MethodGetEraValidators, types.OptionType(weights)))
	add(contractEP(types.MethodReadSeigniorageRecipients, types.SimpleType(types.CLTypeAny)))
	add(contractEP(types.MethodAddBid, u512,
		types.NewParameter("public_key", publicKey),
		types.NewParameter("source_purse", uref),
		types.NewParameter("delegation_rate", u8),
		types.NewParameter("amount", u512)))
	add(contractEP(types.MethodWithdrawBid, u512,
		types.NewParameter("public_key", publicKey),
		types.NewParameter("amount", u512)))
	add(contractEP(types.MethodDelegate, u512,
		types.NewParameter("delegator", publicKey),
		types.NewParameter("source_purse", uref),
		types.NewParameter("validator", publicKey),
		types.NewParameter("amount", u512)))
	add(contractEP(types.MethodUndelegate, u512,
		types.NewParameter("delegator", publicKey),
		types.NewParameter("validator", publicKey),
		types.NewParameter("amount", u512)))
	add(contractEP(types.MethodRunAuction, unit,
		types.NewParameter("era_end_timestamp_millis", u64)))
	add(contractEP(types.MethodSlash, unit,
		types.NewParameter("validator_public_keys", types.ListType(publicKey))))
	add(contractEP(types.MethodDistribute, unit,
		types.NewParameter("reward_factors", types.MapType(publicKey, u64))))
	add(contractEP(types.MethodWithdrawDelegatorReward, u512,
		types.NewParameter("delegator", publicKey),
		types.NewParameter("validator", publicKey),
		types.NewParameter("target_purse", uref)))
	add(contractEP(types.MethodWithdrawValidatorReward, u512,
		types.NewParameter("validator", publicKey),
		types.NewParameter("target_purse", uref)))
	add(contractEP(types.MethodReadEraID, u64))
	return eps
}

func standardPaymentEntryPoints() types.EntryPoints {
	eps := types.EntryPoints{}
	eps[types.MethodCall] = types.EntryPoint{
		Name: types.MethodCall,
		Args: []types.Parameter{
			types.NewParameter("amount", types.SimpleType(types.CLTypeU512)),
		},
		Ret:  types.SimpleType(types.CLTypeUnit),
		Kind: types.EntryPointSession,
	}
	return eps
}
