package main

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"

	"github.com/luca-patrignani/flow-lottery/config"
	"github.com/luca-patrignani/flow-lottery/consensus"
	"github.com/luca-patrignani/flow-lottery/discovery"
	"github.com/luca-patrignani/flow-lottery/domain/lottery"
	"github.com/luca-patrignani/flow-lottery/ledger"
	"github.com/luca-patrignani/flow-lottery/network"
)

func main() {
	if len(os.Args) > 2 {
		fmt.Fprintf(os.Stderr, "usage: %s [config.toml]\n", os.Args[0])
		os.Exit(1)
	}
	var cfg config.Config
	var err error
	if len(os.Args) == 2 {
		cfg, err = config.Load(os.Args[1])
	} else {
		cfg, err = config.LoadFromEnvFile()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := slog.New(pterm.NewSlogHandler(pterm.DefaultLogger.WithLevel(ptermLevel(cfg.Log.Level))))

	pterm.DefaultBigText.WithLetters(
		putils.LettersFromStringWithStyle("F", pterm.FgRed.ToStyle()),
		putils.LettersFromStringWithStyle("low ", pterm.FgDarkGray.ToStyle()),
		putils.LettersFromStringWithStyle("L", pterm.FgRed.ToStyle()),
		putils.LettersFromStringWithStyle("ottery", pterm.FgDarkGray.ToStyle()),
	).Render()

	name := cfg.Node.Name
	if name == "" {
		name, _ = pterm.DefaultInteractiveTextInput.WithDefaultText("Enter your username").Show()
		pterm.Println()
	}
	pterm.Info.Printfln("Your username: %s", name)

	l, err := net.Listen("tcp", cfg.Node.Listen)
	if err != nil {
		logger.Error("failed to listen on address", "address", cfg.Node.Listen, "error", err)
		os.Exit(1)
	}
	pterm.Info.Println("Listening on " + l.Addr().String())
	pterm.Print("\n")

	others, err := peerAddresses(cfg.Node, name, l, logger)
	if err != nil {
		logger.Error("could not collect the other nodes", "error", err)
		os.Exit(1)
	}
	addresses, myRank := rankAddresses(append(others, l.Addr().String()), l.Addr().String())
	peer := startPeer(myRank, addresses, l, []network.PeerOption{
		network.WithTimeout(cfg.Node.Timeout),
		network.WithLogger(logger),
	})
	defer peer.Close()
	pterm.Info.Printfln("Your rank is %d\n", myRank)

	spinner, _ := pterm.DefaultSpinner.Start("Trying to establish the connections with the other nodes...")
	names, err := testConnections(peer, name)
	if err != nil {
		spinner.Fail()
		logger.Error("connection test failed", "error", err)
		os.Exit(1)
	}
	spinner.Success()
	pterm.Success.Printfln("Successfully connected with %d nodes", len(names)-1)
	for i, n := range names {
		logger.Info("node", "rank", i, "address", peer.GetAddresses()[i], "name", n)
	}
	if err := uniqueNames(names); err != nil {
		logger.Error("cannot start the lottery", "error", err)
		os.Exit(1)
	}

	genesis, err := agreeOnGenesis(peer)
	if err != nil {
		logger.Error("genesis exchange failed", "error", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.Node.DataDir, 0o700); err != nil {
		logger.Error("cannot create data directory", "dir", cfg.Node.DataDir, "error", err)
		os.Exit(1)
	}
	store, err := ledger.OpenStore(cfg.Node.LedgerPath())
	if err != nil {
		logger.Error("cannot open ledger", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	blockchain, err := ledger.OpenBlockchain(context.Background(), store, genesis)
	if err != nil {
		logger.Error("cannot load ledger", "error", err)
		os.Exit(1)
	}
	if err := checkLedgers(peer, blockchain); err != nil {
		logger.Error("ledgers diverge, clear the data directory of the stale nodes", "error", err)
		os.Exit(1)
	}

	policy, err := lottery.PolicyByName(cfg.Lottery.Selection)
	if err != nil {
		logger.Error("invalid selection policy", "error", err)
		os.Exit(1)
	}
	pool := lottery.NewPool(cfg.Lottery.PoolConfig(), lottery.WithPolicy(policy), lottery.WithLogger(logger))
	latest, err := blockchain.GetLatest()
	if err != nil {
		logger.Error("empty ledger", "error", err)
		os.Exit(1)
	}
	if err := pool.Restore(latest.State); err != nil {
		logger.Error("cannot restore pool", "block", latest.Index, "error", err)
		os.Exit(1)
	}
	manager := lottery.NewLotteryManager(pool, lottery.PlayerID(name), cfg.Lottery.MinimumFlowRate)

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		logger.Error("cannot generate keys", "error", err)
		os.Exit(1)
	}
	node := consensus.NewConsensusNode(
		pub, priv,
		map[int]ed25519.PublicKey{myRank: pub},
		manager,
		blockchain,
		peer,
		consensus.WithLogger(logger),
	)
	if err := node.UpdatePeers(); err != nil {
		logger.Error("key exchange failed", "error", err)
		os.Exit(1)
	}

	printStatus(manager, blockchain.Len())
	for round := 0; ; round++ {
		proposer := round % peer.GetPeerCount()
		var decision consensus.Decision
		if proposer == myRank {
			action, err := inputAction(manager, node, myRank, blockchain.Len())
			if err != nil {
				logger.Error("cannot build the action", "error", err)
				action = nil
			}
			decision, err = node.ProposeAction(action)
			if !handleRoundError(err, logger) {
				os.Exit(1)
			}
		} else {
			spinner, _ := pterm.DefaultSpinner.Start("Waiting for " + names[proposer] + " ...")
			decision, err = node.WaitForProposal(proposer)
			spinner.Stop()
			if !handleRoundError(err, logger) {
				os.Exit(1)
			}
		}
		if decision.Committed {
			printStatus(manager, blockchain.Len(), getDecisionPanel(decision, names))
		}
	}
}

// handleRoundError reports whether the node can keep playing after err.
func handleRoundError(err error, logger *slog.Logger) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, consensus.ErrProposalRejected), errors.Is(err, consensus.ErrNoQuorum):
		pterm.Warning.Println(err.Error())
		return true
	default:
		logger.Error("consensus round failed", "error", err)
		return false
	}
}

// peerAddresses returns the addresses of the other nodes, from the
// configuration, from discovery or typed by the user.
func peerAddresses(cfg config.Node, name string, l net.Listener, logger *slog.Logger) ([]string, error) {
	self, err := listenerAddr(l)
	if err != nil {
		return nil, err
	}
	if len(cfg.Peers) > 0 {
		return resolvePeers(self, cfg.Peers)
	}
	if cfg.Discovery {
		d := discovery.New(
			discovery.Announcement{Name: name, Address: self.String()},
			discovery.WithPort(cfg.DiscoveryPort),
			discovery.WithLogger(logger),
		)
		if err := d.Start(); err != nil {
			return nil, err
		}
		defer d.Close()
		spinner, _ := pterm.DefaultSpinner.Start("Looking for the other nodes...")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
		defer cancel()
		found, err := discovery.Collect(ctx, d, cfg.ExpectedPeers)
		if err != nil {
			spinner.Fail()
			return nil, err
		}
		spinner.Success()
		addresses := make([]string, len(found))
		for i, a := range found {
			addresses[i] = a.Address
		}
		return addresses, nil
	}

	if subnet, err := localSubnet(self.Addr()); err == nil {
		pterm.Info.Printfln("Your subnet is %s, the octets you omit are taken from your address", subnet)
	}
	var addresses []string
	for {
		typed, _ := pterm.DefaultInteractiveTextInput.WithDefaultText("Enter their address and port in ipaddr:port format. When done, type done").Show()
		if typed == "done" {
			return addresses, nil
		}
		pterm.Println()
		addr, err := resolvePeer(self, typed)
		if err != nil {
			logger.Error("cannot use peer address", "address", typed, "error", err)
			continue
		}
		addresses = append(addresses, addr)
	}
}

func ptermLevel(level slog.Level) pterm.LogLevel {
	switch {
	case level <= slog.LevelDebug:
		return pterm.LogLevelDebug
	case level <= slog.LevelInfo:
		return pterm.LogLevelInfo
	case level <= slog.LevelWarn:
		return pterm.LogLevelWarn
	default:
		return pterm.LogLevelError
	}
}
