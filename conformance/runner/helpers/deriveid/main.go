package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/nevermined-io/sdk-go/pkg/conditions"
	"github.com/nevermined-io/sdk-go/pkg/keeper"
)

// deriveid computes the condition ids for one agreement so other SDKs can
// diff their derivation against this one.
func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: deriveid '<input-json>'")
		os.Exit(2)
	}

	var in struct {
		Contracts struct {
			Token      keeper.Address                          `json:"token"`
			Conditions map[keeper.ConditionType]keeper.Address `json:"conditions"`
		} `json:"contracts"`
		AgreementID string             `json:"agreement_id"`
		ServiceType keeper.ServiceType `json:"service_type"`
		Price       string             `json:"price"`
		Creator     keeper.Address     `json:"creator"`
		Consumer    keeper.Address     `json:"consumer"`
	}
	if err := json.Unmarshal([]byte(os.Args[1]), &in); err != nil {
		fmt.Fprintln(os.Stderr, "invalid input json:", err)
		os.Exit(2)
	}
	cfg := keeper.ContractConfig{Token: in.Contracts.Token, Conditions: in.Contracts.Conditions}

	agreementID, err := keeper.ParseBytes32(in.AgreementID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "agreement id:", err)
		os.Exit(2)
	}
	price, ok := new(big.Int).SetString(in.Price, 10)
	if !ok {
		fmt.Fprintln(os.Stderr, "invalid price:", in.Price)
		os.Exit(2)
	}

	set, err := conditions.NewDeriver(cfg).Derive(agreementID, in.ServiceType, price, in.Creator, in.Consumer)
	if err != nil {
		fmt.Fprintln(os.Stderr, "derive:", err)
		os.Exit(2)
	}
	submitted, err := set.SubmissionOrder()
	if err != nil {
		fmt.Fprintln(os.Stderr, "submission order:", err)
		os.Exit(2)
	}

	submittedHex := make([]string, len(submitted))
	for i, id := range submitted {
		submittedHex[i] = id.Hex()
	}
	out, err := json.Marshal(map[string]any{
		"lock":             set.Lock.Hex(),
		"release":          set.Release.Hex(),
		"escrow":           set.Escrow.Hex(),
		"submission_order": submittedHex,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "marshal output:", err)
		os.Exit(2)
	}
	fmt.Print(string(out))
}
