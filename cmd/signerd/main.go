// Casper signer daemon.
//
// Usage:
//
//	signerd [--testnet --auto-approve ...]   Run the signer
//	signerd init                             Create a wallet
//	signerd import                           Restore a wallet from a mnemonic
//	signerd --help                           Show help
package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Klingon-tech/cspr-signer-kit/config"
	"github.com/Klingon-tech/cspr-signer-kit/internal/devsigner"
	"github.com/Klingon-tech/cspr-signer-kit/internal/node"
	"golang.org/x/term"
)

// passwordEnv lets unattended deployments skip the password prompt.
const passwordEnv = "CSPR_SIGNER_PASSWORD"

func main() {
	cfg, flags, err := config.Load()
	if err != nil {
		fatal("%v", err)
	}

	stdin := bufio.NewReader(os.Stdin)
	if len(flags.Args) > 0 {
		switch flags.Args[0] {
		case "init":
			cmdInit(cfg, stdin, false)
		case "import":
			cmdInit(cfg, stdin, true)
		default:
			fatal("unknown command: %s", flags.Args[0])
		}
		return
	}

	password, err := walletPassword()
	if err != nil {
		fatal("read password: %v", err)
	}

	n, err := node.New(cfg, password, newTerminalApprover(stdin, os.Stderr))
	zeroBytes(password)
	if err != nil {
		if errors.Is(err, devsigner.ErrNoKeystore) {
			fatal("%v\nRun 'signerd init' to create a wallet.", err)
		}
		fatal("%v", err)
	}

	if err := n.Start(); err != nil {
		n.Stop()
		fatal("%v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	n.Stop()
}

func cmdInit(cfg *config.Config, stdin *bufio.Reader, restore bool) {
	path := cfg.WalletPath()
	if _, err := os.Stat(path); err == nil {
		fatal("wallet already exists at %s", path)
	}

	var mnemonic string
	if restore {
		fmt.Fprint(os.Stderr, "Enter mnemonic: ")
		line, err := stdin.ReadString('\n')
		if err != nil && line == "" {
			fatal("read mnemonic: %v", err)
		}
		mnemonic = devsigner.NormalizeMnemonic(line)
		if !devsigner.ValidateMnemonic(mnemonic) {
			fatal("invalid mnemonic")
		}
	} else {
		var err error
		mnemonic, err = devsigner.GenerateMnemonic()
		if err != nil {
			fatal("generate mnemonic: %v", err)
		}
		fmt.Println("Mnemonic (write this down!):")
		fmt.Printf("  %s\n\n", mnemonic)
	}

	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	if string(password) != string(confirm) {
		fatal("passwords do not match")
	}

	ks, err := devsigner.CreateKeystore(path, mnemonic, password, devsigner.DefaultKDFParams())
	zeroBytes(password)
	zeroBytes(confirm)
	if err != nil {
		fatal("create wallet: %v", err)
	}

	fmt.Printf("Wallet created: %s\n", ks.Path())
	for _, a := range ks.Accounts() {
		fmt.Printf("  %-12s %s  (%s)\n", a.Name, a.PublicKey, devsigner.DerivationPath(a.Index))
	}
}

func walletPassword() ([]byte, error) {
	if pw, ok := os.LookupEnv(passwordEnv); ok {
		return []byte(pw), nil
	}
	return readPassword("Wallet password: ")
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+strings.TrimRight(format, "\n")+"\n", args...)
	os.Exit(1)
}
