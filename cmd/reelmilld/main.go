// Command reelmilld runs the reelmill pipeline daemon. The configuration
// path comes from REELMILL_CONFIG, falling back to the default location.
package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"reelmill/internal/config"
	"reelmill/internal/daemonrun"
)

func main() {
	_ = godotenv.Load()

	cfg, _, _, err := config.Load(os.Getenv("REELMILL_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{
		LogLevel: os.Getenv("REELMILL_LOG_LEVEL"),
	}); err != nil {
		log.Fatalf("reelmilld: %v", err)
	}
}
