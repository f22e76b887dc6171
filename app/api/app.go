package api

import (
	"context"

	"go.uber.org/zap"

	"github.com/quorumdao/govx/app/api/types"
	"github.com/quorumdao/govx/pkg/auth"
	"github.com/quorumdao/govx/pkg/clock"
	"github.com/quorumdao/govx/pkg/delegation"
	"github.com/quorumdao/govx/pkg/events"
	"github.com/quorumdao/govx/pkg/gov"
	"github.com/quorumdao/govx/pkg/logging"
	"github.com/quorumdao/govx/pkg/redis"
	"github.com/quorumdao/govx/pkg/store"
	govtypes "github.com/quorumdao/govx/pkg/types"
	"github.com/quorumdao/govx/pkg/utils"
)

// Initialize wires the service from environment configuration.
func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	var st *store.Store
	if utils.Env("STORE_IN_MEMORY", "false") == "true" {
		st, err = store.OpenInMemory(logger)
	} else {
		st, err = store.Open(logger, utils.Env("STORE_DIR", "./data/govx"))
	}
	if err != nil {
		logger.Fatal("unable to open store", zap.Error(err))
	}

	// Event sink is optional; core correctness never depends on it.
	var redisClient *redis.Client
	var emitter events.Emitter = events.Nop{}
	var publisher *events.Publisher
	if utils.Env("REDIS_ENABLED", "false") == "true" {
		redisClient, err = redis.NewClient(ctx, logger)
		if err != nil {
			logger.Warn("failed to initialize redis client - event publishing disabled", zap.Error(err))
			redisClient = nil
		} else {
			publisher = events.NewPublisher(logger, redisClient)
			emitter = publisher
		}
	} else {
		logger.Info("redis disabled - mutation events will not be published")
	}

	clk := clock.System{}
	presence := auth.NewTokenVerifier([]byte(utils.Env("PRESENCE_SECRET", "change-me-please")), clk)
	gate := auth.NewAdminGate(
		utils.Env("ADMIN_TOKEN", "devtoken"),
		[]byte(utils.Env("SESSION_SECRET", "change-me-please")),
		clk,
	)

	engine, err := gov.NewEngine(logger, st, clk, presence, gate, emitter, defaultParams())
	if err != nil {
		logger.Fatal("unable to initialize governance engine", zap.Error(err))
	}
	registry := delegation.NewRegistry(logger, st, clk, presence, emitter)

	return &types.App{
		Store:       st,
		Gov:         engine,
		Delegations: registry,
		Presence:    presence,
		Gate:        gate,
		RedisClient: redisClient,
		Publisher:   publisher,
		Logger:      logger,
	}
}

// defaultParams reads the bootstrap parameter set from env. Once a
// parameter set is persisted these defaults are ignored; runtime changes
// go through the privileged update operation only.
func defaultParams() govtypes.GovernanceParams {
	return govtypes.GovernanceParams{
		TemperatureCheckDays:              uint16(utils.EnvInt("GOV_TC_DAYS", 7)),
		TemperatureCheckQuorum:            uint64(utils.EnvInt("GOV_TC_QUORUM", 1000)),
		TemperatureCheckApprovalThreshold: govtypes.Fraction(utils.EnvInt("GOV_TC_APPROVAL_BPS", 5000)),
		TemperatureCheckProposeThreshold:  uint64(utils.EnvInt("GOV_TC_PROPOSE_THRESHOLD", 100)),
		ProposalLengthDays:                uint16(utils.EnvInt("GOV_PROP_DAYS", 14)),
		ProposalQuorum:                    uint64(utils.EnvInt("GOV_PROP_QUORUM", 5000)),
		ProposalApprovalThreshold:         govtypes.Fraction(utils.EnvInt("GOV_PROP_APPROVAL_BPS", 5000)),
	}
}
