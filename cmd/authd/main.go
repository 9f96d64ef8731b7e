package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/shopmesh/auth/internal/app/bootstrap"
)

func main() {
	// A missing .env file is the normal case outside local dev.
	_ = godotenv.Load()

	configPath := pflag.StringP("config", "c", "configs/default.yaml", "path to the YAML config file")
	pflag.Parse()

	ctx := context.Background()
	runtime, err := bootstrap.NewRuntime(ctx, *configPath)
	if err != nil {
		log.Fatalf("bootstrap api runtime: %v", err)
	}
	if err := runtime.RunAPI(ctx); err != nil {
		log.Fatalf("run api: %v", err)
	}
}
