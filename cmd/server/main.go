package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"intentrouter/internal/config"
	"intentrouter/internal/db"
	"intentrouter/internal/engine"
	"intentrouter/internal/events"
	"intentrouter/internal/handlers"
	"intentrouter/internal/intent"
	"intentrouter/internal/ledger"
	"intentrouter/internal/repository"
	"intentrouter/internal/router"
	"intentrouter/internal/services"
	"intentrouter/internal/vault"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logrus.SetFormatter(&logrus.JSONFormatter{})

	if err := config.LoadConfig(*configPath); err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	cfg := config.AppConfig

	database, err := db.Connect(cfg.Database.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("failed to init database")
	}

	deposits := repository.NewDepositRepository(database)
	nonces := repository.NewNonceRepository(database)

	routerAddr := common.HexToAddress(cfg.Blockchain.RouterAddress)
	vaultAddr := common.HexToAddress(cfg.Blockchain.VaultContract)

	verifier := intent.NewVerifier("IntentRouter", "1", cfg.Blockchain.ChainID, routerAddr)

	ldg, vlt, err := buildCollaborators(cfg, routerAddr)
	if err != nil {
		logrus.WithError(err).Fatal("failed to init chain collaborators")
	}

	eng, err := engine.New(verifier, ldg, vlt, deposits, nonces, engine.Config{
		Owner: common.HexToAddress(cfg.Blockchain.OwnerAddress),
		Self:  routerAddr,
		Vault: vaultAddr,
		Fees: engine.FeeConfig{
			Enabled:          cfg.Fees.Enabled,
			Treasury:         common.HexToAddress(cfg.Fees.Treasury),
			FeeBps:           cfg.Fees.FeeBps,
			ReferrerShareBps: cfg.Fees.ReferrerShareBps,
			ProtocolShareBps: cfg.Fees.ProtocolShareBps,
		},
	})
	if err != nil {
		logrus.WithError(err).Fatal("failed to init settlement engine")
	}

	push := services.NewPushService()
	eng.AddSink(push)

	if cfg.NATS.URL != "" {
		publisher, err := events.Connect(cfg.NATS.URL)
		if err != nil {
			logrus.WithError(err).Fatal("failed to connect NATS")
		}
		defer publisher.Close()
		eng.AddSink(publisher)
	} else {
		logrus.Info("NATS not configured, event publishing disabled")
	}

	auth := handlers.NewAdminAuthHandler(
		cfg.Admin.JWTSecret,
		cfg.Admin.PasswordHash,
		cfg.Admin.TOTPSecret,
		cfg.Admin.Address,
	)

	engineRouter := router.New(router.Options{
		Deposits:  handlers.NewDepositHandler(eng),
		Admin:     handlers.NewAdminHandler(eng),
		AdminAuth: auth,
		WebSocket: handlers.NewWebSocketHandler(push),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logrus.WithField("addr", addr).Info("intent router listening")
	if err := engineRouter.Run(addr); err != nil {
		logrus.WithError(err).Fatal("server stopped")
	}
}

// buildCollaborators wires the ledger and vault, either against JSON-RPC or
// fully in memory for local development.
func buildCollaborators(cfg *config.Config, routerAddr common.Address) (ledger.Ledger, vault.Vault, error) {
	if cfg.Blockchain.Mock {
		logrus.Warn("running with in-memory ledger and vault; deposits are not persisted on chain")
		mock := ledger.NewMockLedger()
		return &ledger.BoundLedger{Mock: mock, Caller: routerAddr}, vault.NewMockVault(true), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ldg, err := ledger.NewEthLedger(ctx, ledger.EthLedgerConfig{
		RPCURL:        cfg.Blockchain.RPCURL,
		TokenAddress:  cfg.Blockchain.AssetContract,
		PrivateKeyHex: cfg.Blockchain.PrivateKey,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("ledger: %w", err)
	}

	vlt, err := vault.NewEthVault(ctx, vault.EthVaultConfig{
		RPCURL:        cfg.Blockchain.RPCURL,
		VaultAddress:  cfg.Blockchain.VaultContract,
		PrivateKeyHex: cfg.Blockchain.PrivateKey,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("vault: %w", err)
	}

	return ldg, vlt, nil
}
