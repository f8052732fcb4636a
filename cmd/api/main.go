package main

import (
	"log"
	"os"

	"bibkeys/internal/api"
	"bibkeys/internal/config"
	"bibkeys/internal/database"
	"bibkeys/internal/logging"
	"bibkeys/internal/services"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	v := viper.New()
	config.SetDefaults(v)
	if path := os.Getenv("BIBKEYS_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			log.Fatalf("Failed to read config %s: %v", path, err)
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Pretty)

	db, err := database.InitDB(cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialise database")
	}

	// Initialize Internal services
	projectService := services.NewProjectService(db, cfg.Keys, cfg.Storage.Dir)
	bibtexService := services.NewBibTexService(projectService, cfg.Keys)

	r := api.NewRouter(cfg.Server, logger, projectService, bibtexService)

	logger.Info().Str("port", cfg.Server.Port).Msg("Server starting")
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start server")
	}
}
