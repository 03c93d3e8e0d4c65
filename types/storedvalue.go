package types

import "fmt"

// StoredValueTag discriminates the polymorphic stored-value union.
type StoredValueTag uint8

const (
	StoredValueTagCLValue         StoredValueTag = 0
	StoredValueTagAccount         StoredValueTag = 1
	StoredValueTagContractWasm    StoredValueTag = 2
	StoredValueTagContract        StoredValueTag = 3
	StoredValueTagContractPackage StoredValueTag = 4
	StoredValueTagTransfer        StoredValueTag = 5
	StoredValueTagDeployInfo      StoredValueTag = 6
	StoredValueTagEraInfo         StoredValueTag = 7
)

// StoredValue is the polymorphic value stored under a global-state Key.
// Exactly one field is set, matching Tag.
type StoredValue struct {
	Tag             StoredValueTag
	CLValue         *CLValue
	Account         *Account
	ContractWasm    *ContractWasm
	Contract        *Contract
	ContractPackage *ContractPackage
	Transfer        *Transfer
	DeployInfo      *DeployInfo
	EraInfo         *EraInfo
}

func StoredCLValue(v CLValue) StoredValue {
	return StoredValue{Tag: StoredValueTagCLValue, CLValue: &v}
}

func StoredAccount(a Account) StoredValue {
	return StoredValue{Tag: StoredValueTagAccount, Account: &a}
}

func StoredContractWasm(w ContractWasm) StoredValue {
	return StoredValue{Tag: StoredValueTagContractWasm, ContractWasm: &w}
}

func StoredContract(c Contract) StoredValue {
	return StoredValue{Tag: StoredValueTagContract, Contract: &c}
}

func StoredContractPackage(p ContractPackage) StoredValue {
	return StoredValue{Tag: StoredValueTagContractPackage, ContractPackage: &p}
}

func StoredTransfer(t Transfer) StoredValue {
	return StoredValue{Tag: StoredValueTagTransfer, Transfer: &t}
}

func StoredDeployInfo(info DeployInfo) StoredValue {
	return StoredValue{Tag: StoredValueTagDeployInfo, DeployInfo: &info}
}

func StoredEraInfo(info EraInfo) StoredValue {
	return StoredValue{Tag: StoredValueTagEraInfo, EraInfo: &info}
}

func (sv StoredValue) TypeName() string {
	switch sv.Tag {
	case StoredValueTagCLValue:
		return "CLValue"
	case StoredValueTagAccount:
		return "Account"
	case StoredValueTagContractWasm:
		return "ContractWasm"
	case StoredValueTagContract:
		return "Contract"
	case StoredValueTagContractPackage:
		return "ContractPackage"
	case StoredValueTagTransfer:
		return "Transfer"
	case StoredValueTagDeployInfo:
		return "DeployInfo"
	case StoredValueTagEraInfo:
		return "EraInfo"
	default:
		return fmt.Sprintf("StoredValue(%d)", uint8(sv.Tag))
	}
}

// AsCLValue returns the wrapped CLValue, if that is what is stored.
func (sv StoredValue) AsCLValue() (CLValue, bool) {
	if sv.Tag != StoredValueTagCLValue || sv.CLValue == nil {
		return CLValue{}, false
	}
	return *sv.CLValue, true
}

func (sv StoredValue) MarshalBytes(e *Encoder) {
	e.WriteU8(uint8(sv.Tag))
	switch sv.Tag {
	case StoredValueTagCLValue:
		sv.CLValue.MarshalBytes(e)
	case StoredValueTagAccount:
		sv.Account.MarshalBytes(e)
	case StoredValueTagContractWasm:
		sv.ContractWasm.MarshalBytes(e)
	case StoredValueTagContract:
		sv.Contract.MarshalBytes(e)
	case StoredValueTagContractPackage:
		sv.ContractPackage.MarshalBytes(e)
	case StoredValueTagTransfer:
		sv.Transfer.MarshalBytes(e)
	case StoredValueTagDeployInfo:
		sv.DeployInfo.MarshalBytes(e)
	case StoredValueTagEraInfo:
		sv.EraInfo.MarshalBytes(e)
	}
}

func (sv *StoredValue) UnmarshalBytes(d *Decoder) error {
	tag, err := d.ReadU8()
	if err != nil {
		return err
	}
	*sv = StoredValue{Tag: StoredValueTag(tag)}
	switch sv.Tag {
	case StoredValueTagCLValue:
		sv.CLValue = new(CLValue)
		return sv.CLValue.UnmarshalBytes(d)
	case StoredValueTagAccount:
		sv.Account = new(Account)
		return sv.Account.UnmarshalBytes(d)
	case StoredValueTagContractWasm:
		sv.ContractWasm = new(ContractWasm)
		return sv.ContractWasm.UnmarshalBytes(d)
	case StoredValueTagContract:
		sv.Contract = new(Contract)
		return sv.Contract.UnmarshalBytes(d)
	case StoredValueTagContractPackage:
		sv.ContractPackage = new(ContractPackage)
		return sv.ContractPackage.UnmarshalBytes(d)
	case StoredValueTagTransfer:
		sv.Transfer = new(Transfer)
		return sv.Transfer.UnmarshalBytes(d)
	case StoredValueTagDeployInfo:
		sv.DeployInfo = new(DeployInfo)
		return sv.DeployInfo.UnmarshalBytes(d)
	case StoredValueTagEraInfo:
		sv.EraInfo = new(EraInfo)
		return sv.EraInfo.UnmarshalBytes(d)
	default:
		return ErrFormatting
	}
}
