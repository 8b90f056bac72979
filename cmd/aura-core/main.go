// Command aura-core wires configuration, storage, the negotiation
// pipeline, and the gateway/health servers into one process. Grounded
// on the teacher's cmd/node/main.go wiring order: load config, open
// logger, build the domain engine, start servers, then block on a
// progress/sweep loop until a signal arrives.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/auranet/aura-core/params"
	"github.com/auranet/aura-core/pkg/core/connector"
	"github.com/auranet/aura-core/pkg/core/emitter"
	"github.com/auranet/aura-core/pkg/core/engine"
	"github.com/auranet/aura-core/pkg/core/hive"
	"github.com/auranet/aura-core/pkg/core/item"
	"github.com/auranet/aura-core/pkg/core/market"
	"github.com/auranet/aura-core/pkg/core/reasoner"
	"github.com/auranet/aura-core/pkg/core/telemetry"
	"github.com/auranet/aura-core/pkg/crypto"
	"github.com/auranet/aura-core/pkg/rpcserver"
	"github.com/auranet/aura-core/pkg/storage"
	"github.com/auranet/aura-core/pkg/util"

	"github.com/auranet/aura-core/pkg/api"
)

const grpcAddr = ":9090"

func main() {
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Server.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("config_loaded", "database_url", cfg.Database.URL, "llm_model", cfg.LLM.Model, "crypto_enabled", cfg.Crypto.Enabled)

	store, err := storage.Open(cfg.Database.URL)
	if err != nil {
		sugar.Fatalw("store_open_failed", "error", err)
	}
	defer store.Close()

	itemStore := item.NewStore(store, 16)
	if err := itemStore.LoadFromRepository(); err != nil {
		sugar.Fatalw("item_store_load_failed", "error", err)
	}
	seedDemoCatalog(itemStore, sugar)

	telemetryProvider := telemetry.NewPrometheusProvider(cfg.Server.PrometheusURL)
	telemetryCache := telemetry.NewCache(telemetryProvider, util.RealClock{}, sugar)

	rsn := reasoner.Select(cfg.LLM.Model, cfg.LLM.EndpointURL, cfg.LLM.APIKey, cfg.LLM.CompiledProgramPath, cfg.LLM.Temperature, cfg.Logic.TriggerPrice)
	aggregator := hive.NewAggregator(itemStore, telemetryCache, sugar)
	membrane := hive.NewMembrane(hive.Rules{
		MinMargin:          cfg.Logic.MinMargin,
		MaxDiscountPercent: cfg.Logic.MaxDiscountPercent,
		AllowedAddons:      cfg.Logic.AllowedAddons,
	})

	var cryptoProvider crypto.CryptoProvider
	var secretEncryption *crypto.SecretEncryption
	if cfg.Crypto.Enabled {
		priv, err := solanago.PrivateKeyFromBase58(cfg.Crypto.SolanaPrivateKey)
		if err != nil {
			sugar.Fatalw("invalid_solana_private_key", "error", err)
		}
		provider, err := crypto.NewSolanaProvider(cfg.Crypto.SolanaRPCURL, cfg.Crypto.SolanaNetwork, priv.PublicKey().String(), cfg.Crypto.SolanaUSDCMint)
		if err != nil {
			sugar.Fatalw("solana_provider_init_failed", "error", err)
		}
		cryptoProvider = provider

		secretEncryption, err = crypto.NewSecretEncryption(cfg.Crypto.SecretEncryptionKey)
		if err != nil {
			sugar.Fatalw("secret_encryption_init_failed", "error", err)
		}
	}

	mkt := market.New(store, cryptoProvider, secretEncryption, util.RealClock{}, sugar)
	priceConverter := connector.NewPriceConverter(cfg.Crypto.SolUSDRate)
	conn := connector.New(priceConverter, mkt, cfg.Crypto.Enabled, cfg.Crypto.Currency, cfg.Crypto.DealTTL(), util.RealClock{}, sugar)

	emitterQueue := emitter.NewQueue(256)
	hub := emitter.NewHub(sugar)
	em := emitter.New(emitterQueue, hub, util.RealClock{}, "aura-core", sugar)

	eng := engine.New(itemStore, telemetryCache, rsn, aggregator, membrane, conn, mkt, em, sugar)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go hub.Run(ctx.Done())
	go em.Run(ctx, 200*time.Millisecond)

	healthSrv := rpcserver.New(store, sugar)
	go func() {
		sugar.Infow("grpc_health_starting", "addr", grpcAddr)
		if err := healthSrv.Serve(grpcAddr); err != nil {
			sugar.Errorw("grpc_health_failed", "error", err)
		}
	}()
	go healthSrv.RunProbe(ctx, 10*time.Second)
	defer healthSrv.GracefulStop()

	healthConn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		sugar.Fatalw("grpc_health_client_dial_failed", "error", err)
	}
	defer healthConn.Close()
	healthClient := healthpb.NewHealthClient(healthConn)

	gateway := api.NewServer(api.Deps{
		Engine:       eng,
		Hub:          hub,
		Log:          sugar,
		Version:      cfg.Server.Version,
		HealthClient: healthClient,
		ToleranceSec: int64(cfg.Security.TimestampToleranceSeconds),
	})

	httpAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpSrv := &http.Server{Addr: httpAddr, Handler: gateway.Handler()}
	go func() {
		sugar.Infow("gateway_starting", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("gateway_failed", "error", err)
		}
	}()

	sweepTicker := time.NewTicker(30 * time.Second)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
			sugar.Info("aura-core shutting down")
			return
		case <-sweepTicker.C:
			if n, err := mkt.SweepExpired(ctx); err != nil {
				sugar.Warnw("sweep_expired_failed", "error", err)
			} else if n > 0 {
				sugar.Infow("sweep_expired", "expired_count", n)
			}
		}
	}
}

// seedDemoCatalog registers a small illustrative catalog when the store
// is empty, so a fresh deployment has something to negotiate over.
func seedDemoCatalog(items *item.Store, log interface{ Infow(string, ...any) }) {
	if items.Count() > 0 {
		return
	}
	demo := &item.Item{
		ID:         "suite-ocean-view",
		Name:       "Ocean View Suite",
		BasePrice:  450.0,
		FloorPrice: 320.0,
		Active:     true,
		Meta: item.Meta{
			"internal_cost": 210.0,
			"occupancy":     "medium",
			"value_add_inventory": []any{
				map[string]any{"item": "breakfast", "internal_cost": 12.0, "perceived_value": 25.0},
			},
		},
	}
	if err := items.Seed(demo); err != nil {
		log.Infow("demo_seed_failed", "error", err)
		return
	}
	log.Infow("demo_catalog_seeded", "item_id", demo.ID)
}
