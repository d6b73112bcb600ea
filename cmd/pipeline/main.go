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
	"nfl-edge-pipeline/internal/edge"
	"nfl-edge-pipeline/internal/pipeline"
	"nfl-edge-pipeline/internal/schema"
	"nfl-edge-pipeline/internal/store"
)

func main() {
	csvPath := flag.String("csv", "", "path to games CSV (omit to load games from the database)")
	configPath := flag.String("config", "", "optional YAML config file")
	dbPath := flag.String("db", "", "database path (overrides config)")
	noStore := flag.Bool("no-store", false, "skip persisting artifacts")
	listRuns := flag.Bool("runs", false, "list stored runs and exit")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Loading config: %v", err)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	var db *store.DB
	if !*noStore || *csvPath == "" || *listRuns {
		db, err = store.Open(cfg.DBPath)
		if err != nil {
			log.Fatalf("Opening database %s: %v", cfg.DBPath, err)
		}
		defer db.Close()
	}

	if *listRuns {
		runs, err := db.ListRuns()
		if err != nil {
			log.Fatalf("Listing runs: %v", err)
		}
		for _, r := range runs {
			fmt.Printf("%s  %s  %s\n", r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Note)
		}
		return
	}

	games, err := loadGames(*csvPath, db)
	if err != nil {
		log.Fatalf("Loading games: %v", err)
	}
	slog.Info("games loaded", "count", len(games))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runDB := db
	if *noStore {
		runDB = nil
	}
	sum, err := pipeline.New(cfg, runDB).Run(ctx, games)
	if err != nil {
		log.Fatalf("Run failed: %v", err)
	}

	printSummary(sum)
}

func loadGames(csvPath string, db *store.DB) ([]schema.Game, error) {
	if csvPath != "" {
		f, err := os.Open(csvPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return schema.ReadGamesCSV(f)
	}
	if db == nil {
		return nil, fmt.Errorf("no CSV given and no database available")
	}
	return db.LoadGames()
}

func printSummary(sum *pipeline.Summary) {
	fmt.Printf("\nRun %s\n", sum.RunID)
	fmt.Printf("games=%d train=%d test=%d folds=%d\n", sum.Games, sum.TrainRows, sum.TestRows, sum.Folds)
	fmt.Printf("best: lr=%.2f epochs=%d l2=%.0e cv_loss=%.4f\n",
		sum.BestParams.LearningRate, sum.BestParams.Epochs, sum.BestParams.L2, sum.BestCVLoss)
	fmt.Printf("warnings: imputed=%d clipped=%d negative_vig=%d\n",
		sum.ImputedCells, sum.ClippedSpreads, sum.NegativeVigRows)
	fmt.Printf("book source: quotes=%d curve=%d\n", sum.BookFromQuotes, sum.BookFromCurve)
	fmt.Printf("held-out log loss: model=%.4f book=%.4f\n", sum.MeanLossModel, sum.MeanLossBook)
	fmt.Printf("abs edge: median=%.4f p90=%.4f\n\n", sum.Report.AbsEdgeMedian, sum.Report.AbsEdgeP90)

	printBuckets("Lift by abs-edge decile", sum.Report.ByDecile)
	printBuckets("By season", sum.Report.BySeason)
	printBuckets("By threshold", sum.Report.ByThreshold)

	printCalibration("model", sum.Report.ModelCalibration)
	printCalibration("book", sum.Report.BookCalibration)
}

func printBuckets(title string, buckets []edge.BucketStats) {
	fmt.Println(title)
	fmt.Printf("%-10s %6s %10s %10s %10s %10s %10s %10s\n",
		"bucket", "n", "abs_edge", "loss_delta", "model_ll", "book_ll", "model_br", "book_br")
	for _, b := range buckets {
		fmt.Printf("%-10s %6d %10.4f %+10.4f %10.4f %10.4f %10.4f %10.4f\n",
			b.Label, b.Count, b.MeanAbsEdge, b.MeanLossDelta,
			b.ModelLogLoss, b.BookLogLoss, b.ModelBrier, b.BookBrier)
	}
	fmt.Println()
}

func printCalibration(name string, c edge.Calibration) {
	status := "ok"
	if c.Miscalibrated {
		status = "MISCALIBRATED"
	}
	fmt.Printf("calibration %-6s slope=%.3f intercept=%+.3f %s\n", name, c.Slope, c.Intercept, status)
}
