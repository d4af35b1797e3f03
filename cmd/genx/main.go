// Command genx runs a GENX blockchain node or performs wallet
// operations against one.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"
	"go.uber.org/zap"

	"genx/api"
	"genx/config"
	"genx/keys"
	"genx/ledger"
	"genx/node"
	"genx/p2p"
	"genx/wallet"
)

func main() {
	app := cli.NewApp()
	app.Name = "genx"
	app.Usage = "GENX blockchain node"
	app.Commands = []cli.Command{
		nodeCommand(),
		walletCommand(),
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func nodeCommand() cli.Command {
	return cli.Command{
		Name:  "node",
		Usage: "run a node",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "config, c", Usage: "path to YAML config"},
			cli.StringFlag{Name: "datadir, d", Usage: "data directory"},
			cli.StringFlag{Name: "listen, l", Usage: "p2p listen address"},
			cli.StringFlag{Name: "api", Usage: "HTTP API address"},
			cli.StringSliceFlag{Name: "seed, s", Usage: "bootstrap peer address (repeatable)"},
			cli.StringFlag{Name: "validator-key", Usage: "hex private key; enables validator mode"},
			cli.BoolFlag{Name: "debug", Usage: "verbose logging"},
		},
		Action: runNode,
	}
}

func runNode(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if v := c.String("datadir"); v != "" {
		cfg.DataDir = v
	}
	if v := c.String("listen"); v != "" {
		cfg.ListenAddr = v
	}
	if v := c.String("api"); v != "" {
		cfg.APIAddr = v
	}
	if v := c.StringSlice("seed"); len(v) > 0 {
		cfg.Bootstrap = v
	}
	if v := c.String("validator-key"); v != "" {
		cfg.Validator = config.Validator{Enabled: true, KeyHex: v}
	}

	log, err := newLogger(c.Bool("debug"))
	if err != nil {
		return err
	}
	defer log.Sync()

	// A corrupted store is fatal: refuse to start and say why.
	l, err := ledger.NewLedger(ledger.Config{
		DataDir:            cfg.DataDir,
		BlockReward:        cfg.Ledger.BlockReward,
		MaxBlockTxs:        cfg.Ledger.MaxBlockTxs,
		TargetBlockTime:    cfg.Ledger.TargetBlockTime,
		DifficultyInterval: cfg.Ledger.DifficultyInterval,
		Genesis:            cfg.Ledger.Genesis,
	}, log)
	if err != nil {
		return fmt.Errorf("ledger init: %w", err)
	}

	nodeCfg := node.Config{
		SyncInterval:  cfg.Network.SyncInterval,
		BlockInterval: cfg.Ledger.TargetBlockTime,
		Network: p2p.Config{
			ListenAddr:       cfg.ListenAddr,
			AdvertiseAddr:    cfg.Network.AdvertiseAddr,
			Bootstrap:        cfg.Bootstrap,
			MaxInbound:       cfg.Network.MaxInbound,
			MaxOutbound:      cfg.Network.MaxOutbound,
			PingInterval:     cfg.Network.PingInterval,
			HandshakeTimeout: cfg.Network.HandshakeTimeout,
			RetryBackoff:     cfg.Network.RetryBackoff,
			MaxRetries:       cfg.Network.MaxRetries,
		},
	}
	if cfg.Validator.Enabled {
		key, err := keys.PrivateKeyFromHex(cfg.Validator.KeyHex)
		if err != nil {
			return fmt.Errorf("validator key: %w", err)
		}
		nodeCfg.ValidatorEnabled = true
		nodeCfg.ValidatorKey = key
	}

	n, err := node.New(nodeCfg, l, log)
	if err != nil {
		return err
	}
	if err := n.Start(); err != nil {
		return err
	}

	apiSrv := api.NewServer(cfg.APIAddr, l, n, n.Network(), log)
	go func() {
		if err := apiSrv.Start(); err != nil {
			log.Error("api server failed", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	apiSrv.Shutdown(ctx)
	n.Stop()
	return nil
}

func walletCommand() cli.Command {
	return cli.Command{
		Name:  "wallet",
		Usage: "wallet operations",
		Subcommands: []cli.Command{
			{
				Name:  "new",
				Usage: "generate a key pair",
				Action: func(c *cli.Context) error {
					w, err := wallet.New()
					if err != nil {
						return err
					}
					fmt.Println("address:", w.Address())
					fmt.Println("private key:", w.Export())
					return nil
				},
			},
		},
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
