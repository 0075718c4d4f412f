// @title NLQ Text2SQL API
// @version 1.0
// @description 自然语言转 SQL 服务 API
// @host localhost:19980
// @BasePath /api/v1
// @schemes http
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/config"
	applog "github.com/marshnicholas123/nlq-demo/internal/infrastructure/log"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/singleton"
	"github.com/marshnicholas123/nlq-demo/internal/wire"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults to NLQ_CONFIG_FILE)")
	flag.Parse()

	// 初始化日志系统
	applog.Init(nil)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 单例锁检查：尝试获取端口锁
	listener, err := singleton.CheckAndLock(cfg.Server.HTTPPort)
	if err != nil {
		log.Fatalf("port check failed: %v", err)
	}
	if listener == nil {
		log.Println("another instance is already running, exiting")
		os.Exit(0)
	}
	// 关闭临时 listener，实际监听由 HTTP 服务器负责
	_ = listener.Close()

	app, cleanup, err := wire.InitializeAll(cfg)
	if err != nil {
		applog.GetLogger().Error("Failed to initialize application",
			"error", err,
		)
		os.Exit(1)
	}
	defer cleanup()

	if err := app.Start(); err != nil {
		applog.GetLogger().Error("Failed to start application",
			"error", err,
		)
		cleanup()
		os.Exit(1)
	}

	// 优雅关闭
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
	case err := <-app.Errors():
		applog.GetLogger().Error("Application failed",
			"error", err,
		)
	}

	applog.GetLogger().Info("Shutting down application...")
	if err := app.Stop(); err != nil {
		applog.GetLogger().Error("Error during application shutdown",
			"error", err,
		)
	}
	applog.GetLogger().Info("Application stopped")
}
