package types

import "sort"

// EntryPointType distinguishes code running in the caller's context from
// code running in the contract's own context.
type EntryPointType uint8

const (
	EntryPointSession  EntryPointType = 0
	EntryPointContract EntryPointType = 1
)

// Parameter is a single named, typed argument of an entry point.
type Parameter struct {
	Name string
	Type CLType
}

func NewParameter(name string, t CLType) Parameter {
	return Parameter{Name: name, Type: t}
}

func (p Parameter) MarshalBytes(e *Encoder) {
	e.WriteString(p.Name)
	p.Type.MarshalBytes(e)
}

func (p *Parameter) UnmarshalBytes(d *Decoder) error {
	name, err := d.ReadString()
	if err != nil {
		return err
	}
	p.Name = name
	return p.Type.UnmarshalBytes(d)
}

// EntryPoint declares one callable method of a contract.
type EntryPoint struct {
	Name string
	Args []Parameter
	Ret  CLType
	Kind EntryPointType
}

func (ep EntryPoint) MarshalBytes(e *Encoder) {
	e.WriteString(ep.Name)
	e.WriteU32(uint32(len(ep.Args)))
	for _, arg := range ep.Args {
		arg.MarshalBytes(e)
	}
	ep.Ret.MarshalBytes(e)
	e.WriteU8(uint8(ep.Kind))
}

func (ep *EntryPoint) UnmarshalBytes(d *Decoder) error {
	name, err := d.ReadString()
	if err != nil {
		return err
	}
	ep.Name = name
	count, err := d.ReadLength()
	if err != nil {
		return err
	}
	ep.Args = make([]Parameter, count)
	for i := range ep.Args {
		if err := ep.Args[i].UnmarshalBytes(d); err != nil {
			return err
		}
	}
	if err := ep.Ret.UnmarshalBytes(d); err != nil {
		return err
	}
	kind, err := d.ReadU8()
	if err != nil {
		return err
	}
	if kind > uint8(EntryPointContract) {
		return ErrFormatting
	}
	ep.Kind = EntryPointType(kind)
	return nil
}

// EntryPoints is the method table of a contract, serialized in name order.
type EntryPoints map[string]EntryPoint

func (eps EntryPoints) MarshalBytes(e *Encoder) {
	names := make([]string, 0, len(eps))
	for name := range eps {
		names = append(names, name)
	}
	sort.Strings(names)
	e.WriteU32(uint32(len(names)))
	for _, name := range names {
		ep := eps[name]
		ep.MarshalBytes(e)
	}
}

func (eps *EntryPoints) UnmarshalBytes(d *Decoder) error {
	count, err := d.ReadLength()
	if err != nil {
		return err
	}
	out := make(EntryPoints, count)
	for i := 0; i < count; i++ {
		var ep EntryPoint
		if err := ep.UnmarshalBytes(d); err != nil {
			return err
		}
		out[ep.Name] = ep
	}
	*eps = out
	return nil
}

// Contract is a stored, versioned piece of chain logic.
type Contract struct {
	ContractPackageHash Hash
	ContractWasmHash    Hash
	NamedKeys           NamedKeys
	EntryPoints         EntryPoints
	ProtocolVersion     ProtocolVersion
}

func (c Contract) MarshalBytes(e *Encoder) {
	c.ContractPackageHash.MarshalBytes(e)
	c.ContractWasmHash.MarshalBytes(e)
	c.NamedKeys.MarshalBytes(e)
	c.EntryPoints.MarshalBytes(e)
	c.ProtocolVersion.MarshalBytes(e)
}

func (c *Contract) UnmarshalBytes(d *Decoder) error {
	if err := c.ContractPackageHash.UnmarshalBytes(d); err != nil {
		return err
	}
	if err := c.ContractWasmHash.UnmarshalBytes(d); err != nil {
		return err
	}
	if err := c.NamedKeys.UnmarshalBytes(d); err != nil {
		return err
	}
	if err := c.EntryPoints.UnmarshalBytes(d); err != nil {
		return err
	}
	return c.ProtocolVersion.UnmarshalBytes(d)
}

// ContractPackage groups all versions of a contract behind one address.
// Versions are keyed by protocol major version.
type ContractPackage struct {
	AccessKey        URef
	Versions         map[uint32]Hash
	DisabledVersions []Hash
}

func NewContractPackage(accessKey URef) ContractPackage {
	return ContractPackage{
		AccessKey: accessKey,
		Versions:  map[uint32]Hash{},
	}
}

// CurrentVersion returns the contract hash registered under the highest
// major version.
func (p ContractPackage) CurrentVersion() (Hash, bool) {
	var best uint32
	var out Hash
	found := false
	for major, hash := range p.Versions {
		if !found || major > best {
			best, out, found = major, hash, true
		}
	}
	return out, found
}

// Insert registers a contract hash under a protocol major version.
func (p *ContractPackage) Insert(major uint32, contractHash Hash) {
	if p.Versions == nil {
		p.Versions = map[uint32]Hash{}
	}
	p.Versions[major] = contractHash
}

// Disable marks a contract version unusable while keeping it addressable.
func (p *ContractPackage) Disable(contractHash Hash) {
	for _, h := range p.DisabledVersions {
		if h == contractHash {
			return
		}
	}
	p.DisabledVersions = append(p.DisabledVersions, contractHash)
}

// IsDisabled reports whether a contract version has been disabled.
func (p ContractPackage) IsDisabled(contractHash Hash) bool {
	for _, h := range p.DisabledVersions {
		if h == contractHash {
			return true
		}
	}
	return false
}

func (p ContractPackage) MarshalBytes(e *Encoder) {
	p.AccessKey.MarshalBytes(e)
	majors := make([]uint32, 0, len(p.Versions))
	for major := range p.Versions {
		majors = append(majors, major)
	}
	sort.Slice(majors, func(i, j int) bool { return majors[i] < majors[j] })
	e.WriteU32(uint32(len(majors)))
	for _, major := range majors {
		e.WriteU32(major)
		hash := p.Versions[major]
		hash.MarshalBytes(e)
	}
	disabled := make([]Hash, len(p.DisabledVersions))
	copy(disabled, p.DisabledVersions)
	sort.Slice(disabled, func(i, j int) bool { return disabled[i].Compare(disabled[j]) < 0 })
	e.WriteU32(uint32(len(disabled)))
	for _, hash := range disabled {
		hash.MarshalBytes(e)
	}
}

func (p *ContractPackage) UnmarshalBytes(d *Decoder) error {
	if err := p.AccessKey.UnmarshalBytes(d); err != nil {
		return err
	}
	count, err := d.ReadLength()
	if err != nil {
		return err
	}
	p.Versions = make(map[uint32]Hash, count)
	for i := 0; i < count; i++ {
		major, err := d.ReadU32()
		if err != nil {
			return err
		}
		var hash Hash
		if err := hash.UnmarshalBytes(d); err != nil {
			return err
		}
		p.Versions[major] = hash
	}
	count, err = d.ReadLength()
	if err != nil {
		return err
	}
	p.DisabledVersions = make([]Hash, count)
	for i := range p.DisabledVersions {
		if err := p.DisabledVersions[i].UnmarshalBytes(d); err != nil {
			return err
		}
	}
	return nil
}

// ContractWasm is the stored module bytes of a contract. System contracts
// store an empty module; their behavior is native.
type ContractWasm struct {
	Bytes []byte
}

func (w ContractWasm) MarshalBytes(e *Encoder) {
	e.WriteBytes(w.Bytes)
}

func (w *ContractWasm) UnmarshalBytes(d *Decoder) error {
	raw, err := d.ReadBytes()
	if err != nil {
		return err
	}
	w.Bytes = raw
	return nil
}
