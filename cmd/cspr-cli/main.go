// cspr-cli builds Casper deploys and has them signed by a signing provider.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Klingon-tech/cspr-signer-kit/config"
	"github.com/Klingon-tech/cspr-signer-kit/internal/gateway"
	klog "github.com/Klingon-tech/cspr-signer-kit/internal/log"
	"github.com/Klingon-tech/cspr-signer-kit/internal/rpcclient"
	"github.com/Klingon-tech/cspr-signer-kit/internal/session"
	"github.com/Klingon-tech/cspr-signer-kit/internal/storage"
	"github.com/Klingon-tech/cspr-signer-kit/pkg/deploy"
	"github.com/Klingon-tech/cspr-signer-kit/pkg/types"
	"github.com/moznion/go-optional"
)

const defaultSite = "cspr-cli"

// env carries what every command needs.
type env struct {
	cfg    *config.Config
	client *rpcclient.Client
	gw     *gateway.Gateway
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// Parse global flags that appear before the subcommand.
	dataDir := config.DefaultDataDir()
	network := string(config.Mainnet)
	provider := ""
	site := defaultSite

	args := os.Args[1:]
	for len(args) > 0 {
		name, value, n, ok := globalFlag(args)
		if !ok {
			break
		}
		switch name {
		case "provider":
			provider = value
		case "datadir":
			dataDir = value
		case "network":
			network = value
		case "site":
			site = value
		}
		args = args[n:]
	}
	if len(args) > 0 && args[0] == "--testnet" {
		network = string(config.Testnet)
		args = args[1:]
	}

	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.LoadFromFile(dataDir, config.NetworkType(network))
	if err != nil {
		fatal("%v", err)
	}
	if provider != "" {
		cfg.Provider.Endpoint = provider
	}
	klog.Init("warn", false, "")

	client := rpcclient.New(cfg.Provider.Endpoint)
	client.SetSite(site)
	gw, err := gateway.New(rpcclient.NewProvider(client, 0))
	if err != nil {
		fatal("%v", err)
	}
	e := &env{cfg: cfg, client: client, gw: gw}

	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "status":
		cmdStatus(e)
	case "connect":
		cmdConnect(e)
	case "disconnect":
		cmdDisconnect(e)
	case "switch":
		cmdSwitch(e)
	case "transfer":
		cmdTransfer(e, cmdArgs)
	case "delegate", "undelegate", "redelegate":
		cmdAuction(e, cmd, cmdArgs)
	case "token-transfer":
		cmdTokenTransfer(e, cmdArgs)
	case "sign-message":
		cmdSignMessage(e, cmdArgs)
	case "inspect":
		cmdInspect(cmdArgs)
	case "watch":
		cmdWatch(e)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: cspr-cli [global flags] <command> [flags]

Global flags:
  --provider <url>    Signing provider endpoint (default: from signer.conf)
  --datadir <path>    Data directory (default: ~/.cspr-signer)
  --network <net>     casper (default) or casper-test
  --testnet           Shorthand for --network casper-test
  --site <name>       Site name presented to the provider (default: cspr-cli)

Commands:
  status                          Show provider version and connection
  connect                         Ask the provider to connect this site
  disconnect                      Disconnect this site
  switch                          Ask the provider to switch accounts

  transfer --to <key> --amount <motes> [--id <n>] [--out <file>]
                                  Build and sign a native transfer
  delegate --validator <key> --amount <motes> [--out <file>]
  undelegate --validator <key> --amount <motes> [--out <file>]
  redelegate --validator <key> --new-validator <key> --amount <motes> [--out <file>]
                                  Build and sign an auction call
  token-transfer --token <package hash> --to <key> --amount <n> --payment <motes> [--out <file>]
                                  Build and sign a CEP-18 transfer

  sign-message --message <text>   Sign an off-chain message
  inspect <deploy.json>           Check hashes and approvals of a deploy
  watch                           Follow session changes until interrupted

All signing commands use the active key unless --from <key> is given.
`)
}

// globalFlag recognizes --name value and --name=value for global flags.
func globalFlag(args []string) (name, value string, consumed int, ok bool) {
	for _, n := range []string{"provider", "datadir", "network", "site"} {
		switch {
		case args[0] == "--"+n && len(args) > 1:
			return n, args[1], 2, true
		case strings.HasPrefix(args[0], "--"+n+"="):
			return n, args[0][len("--"+n+"="):], 1, true
		}
	}
	return "", "", 0, false
}

// ── session ─────────────────────────────────────────────────────────────

func cmdStatus(e *env) {
	ctx := context.Background()
	version, err := e.gw.Version(ctx)
	if err != nil {
		fatal("provider unreachable at %s: %v", e.cfg.Provider.Endpoint, err)
	}
	connected, err := e.gw.IsConnected(ctx)
	if err != nil {
		fatal("%v", err)
	}

	fmt.Printf("Provider:   %s\n", e.cfg.Provider.Endpoint)
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Network:    %s\n", e.cfg.Network)
	fmt.Printf("Connected:  %v\n", connected)
	if key, err := e.gw.ActivePublicKey(ctx); err == nil && key.IsSome() {
		fmt.Printf("Active key: %s\n", key.Unwrap())
		fmt.Printf("Account:    %s\n", key.Unwrap().AccountHash())
	}
}

func cmdConnect(e *env) {
	ok, err := e.gw.Connect(context.Background())
	if err != nil {
		fatal("%v", err)
	}
	if !ok {
		fatal("connection declined")
	}
	cmdStatus(e)
}

func cmdDisconnect(e *env) {
	ok, err := e.gw.Disconnect(context.Background())
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Disconnected: %v\n", ok)
}

func cmdSwitch(e *env) {
	ok, err := e.gw.SwitchAccount(context.Background())
	if err != nil {
		fatal("%v", err)
	}
	if !ok {
		fatal("account switch cancelled")
	}
	cmdStatus(e)
}

// cmdWatch mirrors the provider session into the local session store and
// prints every change.
func cmdWatch(e *env) {
	db, err := storage.NewBadger(e.cfg.SessionDir())
	if err != nil {
		fatal("open session store: %v", err)
	}
	defer db.Close()

	provider := e.gw.Provider()
	m, err := session.NewMachine(session.NewStore(storage.NewPrefixDB(db, []byte(string(e.cfg.Network)+"/"))), provider)
	if err != nil {
		fatal("restore session: %v", err)
	}
	printState(m.Snapshot())

	states, cancelStates := m.Subscribe()
	defer cancelStates()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, provider) }()

	for {
		select {
		case st := <-states:
			printState(st)
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				fatal("%v", err)
			}
			return
		}
	}
}

func printState(st session.State) {
	line := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), st.Status)
	if st.ActiveKey.IsSome() {
		line += " " + st.ActiveKey.Unwrap().String()
	}
	fmt.Println(line)
}

// ── deploys ─────────────────────────────────────────────────────────────

func cmdTransfer(e *env, args []string) {
	fs := flag.NewFlagSet("transfer", flag.ExitOnError)
	from := fs.String("from", "", "Sender public key (default: active key)")
	to := fs.String("to", "", "Recipient public key")
	amount := fs.String("amount", "", "Amount in motes")
	id := fs.Uint64("id", 0, "Transfer id")
	out := fs.String("out", "", "Write the signed deploy to a file")
	fs.Parse(args)

	if *to == "" || *amount == "" {
		fatal("Usage: cspr-cli transfer --to <key> --amount <motes> [--id <n>]")
	}
	transferID := optional.None[uint64]()
	if isFlagSet(fs, "id") {
		transferID = optional.Some(*id)
	}

	sender := e.signingKey(*from)
	d, err := e.builder().NativeTransfer(string(e.cfg.Network), sender.String(), *to, *amount, transferID)
	if err != nil {
		fatal("build transfer: %v", err)
	}
	e.signAndPrint(d, sender, *out)
}

func cmdAuction(e *env, entryPoint string, args []string) {
	kind, err := deploy.ParseAuctionKind(entryPoint)
	if err != nil {
		fatal("%v", err)
	}
	fs := flag.NewFlagSet(entryPoint, flag.ExitOnError)
	from := fs.String("from", "", "Delegator public key (default: active key)")
	validator := fs.String("validator", "", "Validator public key")
	newValidator := fs.String("new-validator", "", "New validator public key (redelegate)")
	amount := fs.String("amount", "", "Amount in motes")
	out := fs.String("out", "", "Write the signed deploy to a file")
	fs.Parse(args)

	if *validator == "" || *amount == "" {
		fatal("Usage: cspr-cli %s --validator <key> --amount <motes>", entryPoint)
	}
	target := optional.None[string]()
	if *newValidator != "" {
		target = optional.Some(*newValidator)
	}

	delegator := e.signingKey(*from)
	d, err := e.builder().AuctionEntry(kind, string(e.cfg.Network), delegator.String(), *validator, *amount, target)
	if err != nil {
		fatal("build %s: %v", entryPoint, err)
	}
	e.signAndPrint(d, delegator, *out)
}

func cmdTokenTransfer(e *env, args []string) {
	fs := flag.NewFlagSet("token-transfer", flag.ExitOnError)
	from := fs.String("from", "", "Sender public key (default: active key)")
	token := fs.String("token", "", "CEP-18 contract package hash")
	to := fs.String("to", "", "Recipient public key")
	amount := fs.String("amount", "", "Token amount")
	payment := fs.String("payment", "", "Payment amount in motes")
	out := fs.String("out", "", "Write the signed deploy to a file")
	fs.Parse(args)

	if *token == "" || *to == "" || *amount == "" || *payment == "" {
		fatal("Usage: cspr-cli token-transfer --token <hash> --to <key> --amount <n> --payment <motes>")
	}
	pkg, err := types.HexToHash(strings.TrimPrefix(*token, "hash-"))
	if err != nil {
		fatal("invalid token hash: %v", err)
	}

	sender := e.signingKey(*from)
	d, err := e.builder().Cep18Transfer(string(e.cfg.Network), sender.String(), pkg, *to, *amount, *payment)
	if err != nil {
		fatal("build token transfer: %v", err)
	}
	e.signAndPrint(d, sender, *out)
}

func cmdSignMessage(e *env, args []string) {
	fs := flag.NewFlagSet("sign-message", flag.ExitOnError)
	from := fs.String("from", "", "Signing public key (default: active key)")
	message := fs.String("message", "", "Message text")
	fs.Parse(args)

	if *message == "" {
		fatal("Usage: cspr-cli sign-message --message <text>")
	}
	key := e.signingKey(*from)
	e.checkVersion()

	ctx := context.Background()
	outcome, err := e.gw.RequestMessageSignature(ctx, *message, key).Await(ctx)
	if err != nil {
		fatal("%v", err)
	}
	if !outcome.Approved() {
		fatal("%s", outcome)
	}
	fmt.Printf("Signer:    %s\n", key)
	fmt.Printf("Signature: %x\n", outcome.Signature)
}

func cmdInspect(args []string) {
	if len(args) != 1 {
		fatal("Usage: cspr-cli inspect <deploy.json>")
	}
	d, err := readDeploy(args[0])
	if err != nil {
		fatal("%v", err)
	}

	fmt.Printf("Hash:       %s\n", d.Hash)
	fmt.Printf("Chain:      %s\n", d.Header.ChainName)
	fmt.Printf("Account:    %s\n", d.Header.Account)
	fmt.Printf("Timestamp:  %s\n", d.Header.Timestamp.UTC().Format(time.RFC3339))
	fmt.Printf("TTL:        %s\n", deploy.FormatTTL(d.Header.TTL))
	fmt.Printf("Session:    %s\n", d.Session.Kind)
	fmt.Printf("Approvals:  %d\n", len(d.Approvals))
	for _, a := range d.Approvals {
		fmt.Printf("  %s\n", a.Signer)
	}
	if err := d.VerifyApprovals(); err != nil {
		fatal("%v", err)
	}
	fmt.Println("All approvals verify.")
}

// ── helpers ─────────────────────────────────────────────────────────────

func (e *env) builder() *deploy.Builder {
	return deploy.NewBuilder(e.cfg.BuilderConfig())
}

// signingKey returns the explicit key, or the provider's active key.
func (e *env) signingKey(explicit string) types.PublicKey {
	if explicit != "" {
		k, err := types.ParsePublicKey(explicit)
		if err != nil {
			fatal("invalid --from key: %v", err)
		}
		return k
	}
	key, err := e.gw.ActivePublicKey(context.Background())
	if err != nil {
		fatal("%v", err)
	}
	if key.IsNone() {
		fatal("not connected; run 'cspr-cli connect' or pass --from")
	}
	return key.Unwrap()
}

func (e *env) checkVersion() {
	if e.cfg.Provider.MinVersion == "" {
		return
	}
	if err := e.gw.CheckVersion(context.Background(), e.cfg.Provider.MinVersion); err != nil {
		fatal("%v", err)
	}
}

func (e *env) signAndPrint(d *deploy.Deploy, key types.PublicKey, out string) {
	e.checkVersion()
	fmt.Fprintf(os.Stderr, "Requesting signature for deploy %s...\n", d.Hash)

	signed, outcome, err := e.gw.SignAndApprove(context.Background(), d, key)
	if err != nil {
		fatal("%v", err)
	}
	if !outcome.Approved() {
		fatal("%s", outcome)
	}

	data, err := encodeDeploy(signed)
	if err != nil {
		fatal("%v", err)
	}
	if out != "" {
		if err := os.WriteFile(out, data, 0644); err != nil {
			fatal("write %s: %v", out, err)
		}
		fmt.Fprintf(os.Stderr, "Signed deploy written to %s\n", out)
		return
	}
	fmt.Println(string(data))
}

// encodeDeploy renders {"deploy": ...}, the form accepted by
// account_put_deploy.
func encodeDeploy(d *deploy.Deploy) ([]byte, error) {
	return json.MarshalIndent(struct {
		Deploy *deploy.Deploy `json:"deploy"`
	}{d}, "", "  ")
}

// readDeploy accepts either a bare deploy or one wrapped as {"deploy": ...}.
func readDeploy(path string) (*deploy.Deploy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var wrapped struct {
		Deploy json.RawMessage `json:"deploy"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Deploy) > 0 {
		data = wrapped.Deploy
	}
	d, err := deploy.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return d, nil
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// ── Error helper ────────────────────────────────────────────────────────

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
