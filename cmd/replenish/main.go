package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/markverse/replenish/app/controllers"
	"github.com/markverse/replenish/app/repository"
	"github.com/markverse/replenish/internal/pkg/cache"
	"github.com/markverse/replenish/internal/pkg/database"
	"github.com/markverse/replenish/internal/pkg/env"
	"github.com/markverse/replenish/internal/pkg/payment"
	"github.com/markverse/replenish/internal/pkg/replenisher"
	"github.com/markverse/replenish/internal/pkg/router"
	"github.com/markverse/replenish/internal/pkg/schedule"
	"github.com/markverse/replenish/internal/pkg/snapshot"
)

func main() {
	app := NewApplication()

	manager := schedule.GetManager()
	if err := manager.Start(); err != nil {
		log.Fatal(err)
	}

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Print("Shutting down...")
	_ = app.Shutdown()
	manager.Stop()
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	repos := repository.GetGlobalRepositories()
	engine := schedule.GetManager().GetEngine()
	snapshots := snapshot.NewStore(cache.GetClient())
	processor := payment.NewStripeProcessor()

	scheduler := replenisher.NewScheduler(repos, engine, snapshots, cache.GetLocker())
	worker := replenisher.NewWorker(repos, processor, engine)
	engine.SetHandler(worker)

	controllers.InitializeReplenishmentController(scheduler, replenisher.NewQuery(repos))

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName: "replenish",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
