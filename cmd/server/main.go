// Package main is the entry point for the practicetrack API server
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/james-see/practicetrack/pkg/api"
	"github.com/james-see/practicetrack/pkg/config"
	"github.com/james-see/practicetrack/pkg/logger"
)

var version = "dev"

func main() {
	configPath := flag.String("config", config.DefaultConfigPath(), "Config file path")
	port := flag.Int("port", 0, "Server port (default: config, PRACTICETRACK_PORT, then 8080)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	env := config.LoadEnv(cfg.Port(8080))
	if *port == 0 {
		*port = env.Port
	}

	logger.SetDebug(env.Debug)
	if err := logger.Init(env.SentryDSN, env.Environment, version); err != nil {
		logger.Warn("Sentry disabled", logger.Fields{"error": err.Error()})
	}
	defer logger.Flush()

	if env.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	fmt.Printf("Starting practicetrack API server on port %d...\n", *port)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", *port)

	if err := api.StartServer(*port); err != nil {
		logger.Error("Server stopped", err, nil)
		logger.Flush()
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
