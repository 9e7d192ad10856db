package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/Klingon-tech/cspr-signer-kit/internal/devsigner"
	"github.com/Klingon-tech/cspr-signer-kit/pkg/deploy"
	"github.com/Klingon-tech/cspr-signer-kit/pkg/types"
)

// terminalApprover asks the operator on the terminal. Prompts are
// serialized; a request whose context ends while waiting is declined.
type terminalApprover struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

func newTerminalApprover(in *bufio.Reader, out io.Writer) *terminalApprover {
	return &terminalApprover{in: in, out: out}
}

func (a *terminalApprover) Approve(ctx context.Context, req devsigner.ApprovalRequest) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	fmt.Fprintln(a.out)
	switch req.Kind {
	case devsigner.KindConnect:
		fmt.Fprintf(a.out, "%s wants to connect to %s\n", req.Site, req.SigningKey)
	case devsigner.KindSignDeploy:
		fmt.Fprintf(a.out, "%s asks %s to sign a deploy\n", req.Site, req.SigningKey)
		describeDeploy(a.out, req.Deploy)
	case devsigner.KindSignMessage:
		fmt.Fprintf(a.out, "%s asks %s to sign a message:\n  %q\n", req.Site, req.SigningKey, req.Message)
	}

	answer, err := a.ask(ctx, "Approve? [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func (a *terminalApprover) ChooseAccount(ctx context.Context, site string, accounts []types.PublicKey, current int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	fmt.Fprintf(a.out, "\n%s asks to switch account:\n", site)
	for i, k := range accounts {
		marker := " "
		if i == current {
			marker = "*"
		}
		fmt.Fprintf(a.out, " %s [%d] %s\n", marker, i, k)
	}

	answer, err := a.ask(ctx, "Account number (empty to cancel): ")
	if err != nil || answer == "" {
		return -1, err
	}
	i, err := strconv.Atoi(answer)
	if err != nil || i < 0 || i >= len(accounts) {
		fmt.Fprintln(a.out, "Invalid choice, cancelled.")
		return -1, nil
	}
	return i, nil
}

// ask reads one line. A cancelled context wins over a pending read; the
// abandoned line is consumed by the next prompt.
func (a *terminalApprover) ask(ctx context.Context, prompt string) (string, error) {
	fmt.Fprint(a.out, prompt)

	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := a.in.ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
		ch <- result{strings.TrimSpace(line), err}
	}()

	select {
	case r := <-ch:
		return r.line, r.err
	case <-ctx.Done():
		fmt.Fprintln(a.out, "\nRequest withdrawn.")
		return "", nil
	}
}

func describeDeploy(w io.Writer, d *deploy.Deploy) {
	if d == nil {
		return
	}
	fmt.Fprintf(w, "  hash:     %s\n", d.Hash)
	fmt.Fprintf(w, "  chain:    %s\n", d.Header.ChainName)
	fmt.Fprintf(w, "  account:  %s\n", d.Header.Account)
	fmt.Fprintf(w, "  session:  %s\n", d.Session.Kind)
	if amt, ok := d.Payment.Amount(); ok {
		fmt.Fprintf(w, "  payment:  %s motes\n", amt)
	}
	if amt, ok := d.Session.Amount(); ok {
		fmt.Fprintf(w, "  amount:   %s motes\n", amt)
	}
	fmt.Fprintf(w, "  expires:  %s\n", d.Header.Timestamp.Add(d.Header.TTL).UTC().Format("2006-01-02 15:04:05Z"))
}
