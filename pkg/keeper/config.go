package keeper

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ContractConfig is the immutable address book of one deployment: the store
// contracts, the payment token, every condition contract and every agreement
// template. It is built once at startup and passed by reference into each
// component constructor; nothing mutates it afterwards.
type ContractConfig struct {
	AgreementStore Address
	ConditionStore Address
	TemplateStore  Address
	Token          Address

	Conditions map[ConditionType]Address
	Templates  map[ServiceType]Address
}

// Validate checks the slots every flow needs. Per-service condition and
// template addresses are checked lazily by ConditionAddress/TemplateAddress
// so a deployment may omit templates it does not serve.
func (c ContractConfig) Validate() error {
	for _, slot := range []struct {
		name string
		addr Address
	}{
		{"agreement store", c.AgreementStore},
		{"condition store", c.ConditionStore},
		{"template store", c.TemplateStore},
		{"token", c.Token},
	} {
		if slot.addr == "" {
			return fmt.Errorf("%w: %s", ErrMissingAddress, slot.name)
		}
	}
	if len(c.Conditions) == 0 {
		return fmt.Errorf("%w: no condition contracts", ErrMissingAddress)
	}
	return nil
}

// ConditionAddress resolves the deployed address of a condition contract.
func (c ContractConfig) ConditionAddress(t ConditionType) (Address, error) {
	addr, ok := c.Conditions[t]
	if !ok || addr == "" {
		return "", fmt.Errorf("%w: condition %s", ErrMissingAddress, t)
	}
	return addr, nil
}

// TemplateAddress resolves the deployed address of a service template.
func (c ContractConfig) TemplateAddress(s ServiceType) (Address, error) {
	addr, ok := c.Templates[s]
	if !ok || addr == "" {
		return "", fmt.Errorf("%w: template %s", ErrMissingAddress, s)
	}
	return addr, nil
}

// TypeTable builds the static address-to-type lookup used to map conditions
// read back from the ledger to human-readable type names.
func (c ContractConfig) TypeTable() map[Address]ConditionType {
	table := make(map[Address]ConditionType, len(c.Conditions))
	for t, addr := range c.Conditions {
		table[addr] = t
	}
	return table
}

// artifactsFile is the YAML layout of a deployment artifacts file.
type artifactsFile struct {
	AgreementStore string            `yaml:"agreement_store"`
	ConditionStore string            `yaml:"condition_store"`
	TemplateStore  string            `yaml:"template_store"`
	Token          string            `yaml:"token"`
	Conditions     map[string]string `yaml:"conditions"`
	Templates      map[string]string `yaml:"templates"`
}

// LoadContractConfig reads a deployment artifacts file and validates every
// address in it.
func LoadContractConfig(path string) (ContractConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ContractConfig{}, fmt.Errorf("keeper: read artifacts: %w", err)
	}
	var f artifactsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return ContractConfig{}, fmt.Errorf("keeper: parse artifacts: %w", err)
	}

	cfg := ContractConfig{
		Conditions: make(map[ConditionType]Address, len(f.Conditions)),
		Templates:  make(map[ServiceType]Address, len(f.Templates)),
	}
	for _, slot := range []struct {
		name string
		raw  string
		dst  *Address
	}{
		{"agreement_store", f.AgreementStore, &cfg.AgreementStore},
		{"condition_store", f.ConditionStore, &cfg.ConditionStore},
		{"template_store", f.TemplateStore, &cfg.TemplateStore},
		{"token", f.Token, &cfg.Token},
	} {
		addr, err := ParseAddress(slot.raw)
		if err != nil {
			return ContractConfig{}, fmt.Errorf("keeper: artifacts %s: %w", slot.name, err)
		}
		*slot.dst = addr
	}
	for name, rawAddr := range f.Conditions {
		addr, err := ParseAddress(rawAddr)
		if err != nil {
			return ContractConfig{}, fmt.Errorf("keeper: artifacts condition %s: %w", name, err)
		}
		cfg.Conditions[ConditionType(name)] = addr
	}
	for name, rawAddr := range f.Templates {
		addr, err := ParseAddress(rawAddr)
		if err != nil {
			return ContractConfig{}, fmt.Errorf("keeper: artifacts template %s: %w", name, err)
		}
		cfg.Templates[ServiceType(name)] = addr
	}
	if err := cfg.Validate(); err != nil {
		return ContractConfig{}, err
	}
	return cfg, nil
}
