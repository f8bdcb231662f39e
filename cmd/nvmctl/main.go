package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/nevermined-io/sdk-go/pkg/agreements"
	"github.com/nevermined-io/sdk-go/pkg/keeper"
)

const usage = "usage: nvmctl status --artifacts <path> --rpc <url> --agreement <0x..id>"

func main() {
	if len(os.Args) < 2 {
		fail(usage)
	}
	switch os.Args[1] {
	case "status":
		runStatus(os.Args[2:])
	default:
		fail("unknown command\n" + usage)
	}
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	fs.SetOutput(os.Stderr)
	artifactsPath := fs.String("artifacts", "artifacts.yaml", "path to deployment artifacts yaml")
	rpcURL := fs.String("rpc", "http://localhost:8545", "ledger rpc endpoint")
	agreementHex := fs.String("agreement", "", "agreement id (0x-prefixed 32 bytes)")
	_ = fs.Parse(args)

	if *agreementHex == "" {
		fail(usage)
	}
	agreementID, err := keeper.ParseBytes32(*agreementHex)
	if err != nil {
		fail(err.Error())
	}
	cfg, err := keeper.LoadContractConfig(*artifactsPath)
	if err != nil {
		fail(err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reader := agreements.NewStatusReader(keeper.NewRPCClient(*rpcURL), cfg)
	snap, err := reader.GetStatus(ctx, agreementID)
	if err != nil {
		fail(err.Error())
	}

	out, _ := json.MarshalIndent(map[string]any{
		"agreement_id":  snap.AgreementID.Hex(),
		"conditions":    snap.ConditionStates(),
		"all_fulfilled": snap.AllFulfilled,
	}, "", "  ")
	fmt.Println(string(out))
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
