// Package node assembles the signer daemon: keystore, signing provider,
// session tracking and the JSON-RPC server. It can be embedded in any
// binary that wants a local signer.
package node

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/Klingon-tech/cspr-signer-kit/config"
	"github.com/Klingon-tech/cspr-signer-kit/internal/devsigner"
	klog "github.com/Klingon-tech/cspr-signer-kit/internal/log"
	"github.com/Klingon-tech/cspr-signer-kit/internal/rpc"
	"github.com/Klingon-tech/cspr-signer-kit/internal/session"
	"github.com/Klingon-tech/cspr-signer-kit/internal/storage"
	"github.com/rs/zerolog"
)

// Node is a fully-initialized signer daemon.
type Node struct {
	cfg    *config.Config
	logger zerolog.Logger

	db      storage.DB
	signer  *devsigner.Signer
	machine *session.Machine

	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens the keystore, unlocks it with password and prepares the RPC
// server. Nothing listens until Start is called. A nil approver denies every
// request unless the config enables auto-approval.
func New(cfg *config.Config, password []byte, approver devsigner.Approver) (*Node, error) {
	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logFile = cfg.LogsDir() + "/signerd.log"
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, expandHome(logFile)); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	logger.Info().
		Str("network", string(cfg.Network)).
		Str("datadir", cfg.DataDir).
		Msg("Starting signer daemon")

	// ── 2. Keystore ─────────────────────────────────────────────────
	walletPath := expandHome(cfg.WalletPath())
	ks, err := devsigner.OpenKeystore(walletPath)
	if err != nil {
		return nil, fmt.Errorf("open keystore %s: %w", walletPath, err)
	}

	if cfg.Signer.AutoApprove {
		approver = devsigner.AutoApprover{}
		logger.Warn().Msg("Auto-approve enabled: every request will be signed without prompting")
	}
	signer := devsigner.New(ks, devsigner.Options{Approver: approver})
	if err := signer.Unlock(password); err != nil {
		return nil, fmt.Errorf("unlock keystore: %w", err)
	}

	// ── 3. Session storage ──────────────────────────────────────────
	db, err := openSessionDB(cfg)
	if err != nil {
		signer.Lock()
		return nil, err
	}
	machine, err := session.NewMachine(session.NewStore(db), signer)
	if err != nil {
		db.Close()
		signer.Lock()
		return nil, fmt.Errorf("restore session: %w", err)
	}
	logger.Info().
		Str("store", cfg.Session.Store).
		Str("status", machine.Snapshot().Status.String()).
		Msg("Session restored")

	// ── 4. RPC server ───────────────────────────────────────────────
	addr := net.JoinHostPort(cfg.Signer.Addr, strconv.Itoa(cfg.Signer.Port))
	rpcServer := rpc.New(addr, signer, cfg.Signer)

	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		signer:    signer,
		machine:   machine,
		rpcServer: rpcServer,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start begins serving RPC and tracking the local session.
func (n *Node) Start() error {
	if err := n.rpcServer.Start(); err != nil {
		return fmt.Errorf("start rpc server: %w", err)
	}
	n.logger.Info().Str("addr", n.rpcServer.Addr()).Msg("Signer RPC listening")

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx := devsigner.WithSite(n.ctx, devsigner.DefaultSite)
		if err := n.machine.Run(ctx, n.signer); err != nil && n.ctx.Err() == nil {
			n.logger.Error().Err(err).Msg("Session tracking stopped")
		}
	}()
	return nil
}

// Stop shuts the daemon down and drops key material.
func (n *Node) Stop() {
	n.cancel()
	n.wg.Wait()

	if n.rpcServer != nil {
		n.rpcServer.Stop()
	}
	if n.signer != nil {
		n.signer.Lock()
	}
	if n.db != nil {
		n.db.Close()
	}

	n.logger.Info().Msg("Goodbye!")
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// Signer returns the signing provider.
func (n *Node) Signer() *devsigner.Signer {
	return n.signer
}

// Session returns the local session machine.
func (n *Node) Session() *session.Machine {
	return n.machine
}
