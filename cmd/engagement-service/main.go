package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/engagementservice"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("read .env")
	}
	if err := engagementservice.Run(); err != nil {
		log.Error().Err(err).Msg("engagement-service exited with error")
		os.Exit(1)
	}
}
