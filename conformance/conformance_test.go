// Package conformance pins the condition id derivation against shared
// cross-implementation vectors. A failure here means agreements created by
// this SDK would not interoperate with the other SDKs of the deployment.
package conformance

import (
	"math/big"
	"os"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/nevermined-io/sdk-go/pkg/conditions"
	"github.com/nevermined-io/sdk-go/pkg/keeper"
)

type vectorFile struct {
	Contracts contractSet    `yaml:"contracts"`
	Creator   keeper.Address `yaml:"creator"`
	Consumer  keeper.Address `yaml:"consumer"`
	Vectors   []vector       `yaml:"vectors"`
}

type contractSet struct {
	AgreementStore keeper.Address                          `yaml:"agreement_store"`
	ConditionStore keeper.Address                          `yaml:"condition_store"`
	TemplateStore  keeper.Address                          `yaml:"template_store"`
	Token          keeper.Address                          `yaml:"token"`
	Conditions     map[keeper.ConditionType]keeper.Address `yaml:"conditions"`
	Templates      map[keeper.ServiceType]keeper.Address   `yaml:"templates"`
}

func (c contractSet) config() keeper.ContractConfig {
	return keeper.ContractConfig{
		AgreementStore: c.AgreementStore,
		ConditionStore: c.ConditionStore,
		TemplateStore:  c.TemplateStore,
		Token:          c.Token,
		Conditions:     c.Conditions,
		Templates:      c.Templates,
	}
}

type vector struct {
	Name            string             `yaml:"name"`
	AgreementID     string             `yaml:"agreement_id"`
	ServiceType     keeper.ServiceType `yaml:"service_type"`
	Price           string             `yaml:"price"`
	Lock            string             `yaml:"lock"`
	Release         string             `yaml:"release"`
	Escrow          string             `yaml:"escrow"`
	SubmissionOrder []string           `yaml:"submission_order"`
}

func loadVectors(t *testing.T) vectorFile {
	t.Helper()
	raw, err := os.ReadFile("vectors.yaml")
	if err != nil {
		t.Fatalf("read vectors: %v", err)
	}
	var vf vectorFile
	if err := yaml.Unmarshal(raw, &vf); err != nil {
		t.Fatalf("decode vectors: %v", err)
	}
	if len(vf.Vectors) == 0 {
		t.Fatalf("vector file is empty")
	}
	return vf
}

func TestDerivationVectors(t *testing.T) {
	vf := loadVectors(t)
	deriver := conditions.NewDeriver(vf.Contracts.config())

	for _, vec := range vf.Vectors {
		t.Run(vec.Name, func(t *testing.T) {
			agreementID, err := keeper.ParseBytes32(vec.AgreementID)
			if err != nil {
				t.Fatalf("agreement id: %v", err)
			}
			price, ok := new(big.Int).SetString(vec.Price, 10)
			if !ok {
				t.Fatalf("price %q", vec.Price)
			}

			set, err := deriver.Derive(agreementID, vec.ServiceType, price, vf.Creator, vf.Consumer)
			if err != nil {
				t.Fatalf("derive: %v", err)
			}
			if got := set.Lock.Hex(); got != vec.Lock {
				t.Errorf("lock = %s, want %s", got, vec.Lock)
			}
			if got := set.Release.Hex(); got != vec.Release {
				t.Errorf("release = %s, want %s", got, vec.Release)
			}
			if got := set.Escrow.Hex(); got != vec.Escrow {
				t.Errorf("escrow = %s, want %s", got, vec.Escrow)
			}

			byRole := map[string]keeper.Bytes32{
				"lock":    set.Lock,
				"release": set.Release,
				"escrow":  set.Escrow,
			}
			submitted, err := set.SubmissionOrder()
			if err != nil {
				t.Fatalf("submission order: %v", err)
			}
			if len(vec.SubmissionOrder) != len(submitted) {
				t.Fatalf("vector submission order has %d roles", len(vec.SubmissionOrder))
			}
			for i, role := range vec.SubmissionOrder {
				want, ok := byRole[role]
				if !ok {
					t.Fatalf("unknown role %q", role)
				}
				if submitted[i] != want {
					t.Errorf("submission[%d] = %s, want %s id %s", i, submitted[i].Hex(), role, want.Hex())
				}
			}
		})
	}
}
