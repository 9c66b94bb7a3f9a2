package main // Entry point package

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/drive-dataroom/internal/config"
	"github.com/iliyamo/drive-dataroom/internal/database"
	"github.com/iliyamo/drive-dataroom/internal/gdrive"
	"github.com/iliyamo/drive-dataroom/internal/handler"
	"github.com/iliyamo/drive-dataroom/internal/queue"
	"github.com/iliyamo/drive-dataroom/internal/repository"
	"github.com/iliyamo/drive-dataroom/internal/router"
	"github.com/iliyamo/drive-dataroom/internal/service"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		log.Fatalf("storage dir: %v", err)
	}

	// Redis is optional: nil disables rate limiting and the Drive
	// listing cache.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable, rate limiting and listing cache disabled")
	}
	rlCfg := config.LoadRateLimitConfig()

	users := repository.NewUserRepo(db)
	creds := repository.NewCredentialRepo(db)
	tokens := repository.NewExchangeTokenRepo(db)
	files := repository.NewFileRepo(db)

	provider := gdrive.NewProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	credMgr := service.NewCredentialManager(creds, provider)
	bridge := service.NewSessionBridge(tokens)
	importer := service.NewImporter(credMgr, files, service.ClientOpener{}, cfg.StorageDir)
	importer.Publish = queue.PublishFileImported

	authH := handler.NewAuthHandler(cfg, users, creds, provider, bridge)
	filesH := handler.NewFilesHandler(files, importer, credMgr, service.ClientOpener{}, rdb)

	// The import log consumer only runs when a broker is configured;
	// otherwise its reconnect loop would spin forever against nothing.
	if queue.BrokerURL() != "" {
		go func() {
			if err := queue.StartImportConsumer(); err != nil {
				log.Printf("import consumer stopped: %v", err)
			}
		}()
	} else {
		importer.Publish = nil
	}

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, authH, cfg, rlCfg, rdb)
	router.RegisterFiles(e, filesH, cfg, rlCfg, rdb)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
