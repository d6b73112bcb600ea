package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"nfl-edge-pipeline/internal/config"
	"nfl-edge-pipeline/internal/pipeline"
	"nfl-edge-pipeline/internal/schema"
)

func main() {
	csvPath := flag.String("csv", "", "path to games CSV including the unplayed slate (required)")
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if *csvPath == "" {
		log.Fatal("-csv is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Loading config: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		log.Fatalf("Opening %s: %v", *csvPath, err)
	}
	games, err := schema.ReadGamesCSV(f)
	f.Close()
	if err != nil {
		log.Fatalf("Reading games: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	scores, err := pipeline.New(cfg, nil).ScoreUpcoming(ctx, games)
	if err != nil {
		log.Fatalf("Scoring failed: %v", err)
	}

	fmt.Printf("%-12s %-4s %-4s %8s %8s %8s\n", "game", "home", "away", "model", "book", "edge")
	for _, s := range scores {
		book, edge := "-", "-"
		if s.HasBook {
			book = fmt.Sprintf("%.3f", s.ProbBook)
			edge = fmt.Sprintf("%+.3f", s.Edge)
		}
		fmt.Printf("%-12s %-4s %-4s %8.3f %8s %8s\n", s.GameID, s.HomeTeam, s.AwayTeam, s.ProbModel, book, edge)
	}
}
