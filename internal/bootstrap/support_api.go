package bootstrap

import (
	"support_server/adapter/in/http"
	"support_server/config"
	"support_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// NewAPI builds the ops-only HTTP surface: health/readiness probes and
// the triage/queue stats endpoints. There is no customer-facing API.
func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	logLevel := logger.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = logger.LevelDebug
	}
	logger.Init(logger.Config{
		Level:   logLevel,
		Service: "support-api",
	})

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: cfg.IsProduction(),
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             1 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	healthHandler := http.NewHealthHandler(deps.DB, deps.Redis, deps.MongoDB)
	healthHandler.Register(app)

	// Stats run without a local pool: in api mode the pool lives in the
	// worker process, so only queue depth and DB counters are served.
	statsHandler := http.NewStatsHandler(deps.MessageRepo, nil, deps.Stream, deps.DB)
	statsHandler.Register(app)

	triageHandler := http.NewTriageHandler(deps.MessageRepo, deps.Producer)
	triageHandler.Register(app)

	logger.Info("API server initialized")

	return app, cleanup, nil
}
