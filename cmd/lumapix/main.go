package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/lumapix/lumapix/internal/export"
	"github.com/lumapix/lumapix/internal/scheduler"
	"github.com/lumapix/lumapix/internal/setup"
	"github.com/lumapix/lumapix/internal/setup/telemetry"
	"github.com/lumapix/lumapix/internal/similarity"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// LogDir specifies where log files are stored.
const LogDir = "logs"

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "lumapix",
		Usage: "Run the lumapix recommendation and similarity services",
		Commands: []*cli.Command{
			{
				Name:  "worker",
				Usage: "Manage background recompute workers",
				Commands: []*cli.Command{
					{
						Name:  "run",
						Usage: "Start the recompute worker loop",
						Action: func(ctx context.Context, _ *cli.Command) error {
							return runWorker(ctx)
						},
					},
					{
						Name:  "status",
						Usage: "Show all reporting workers",
						Action: func(ctx context.Context, _ *cli.Command) error {
							return workerStatus(ctx)
						},
					},
				},
			},
			{
				Name:  "index",
				Usage: "Manage the photo embedding index",
				Commands: []*cli.Command{
					{
						Name:  "build",
						Usage: "Rebuild the index from stored embeddings",
						Flags: []cli.Flag{
							&cli.BoolFlag{
								Name:  "force",
								Usage: "Rebuild even if an index already exists",
							},
						},
						Action: func(ctx context.Context, c *cli.Command) error {
							return indexBuild(ctx, c.Bool("force"))
						},
					},
					{
						Name:  "stats",
						Usage: "Show index size and dimension",
						Action: func(ctx context.Context, _ *cli.Command) error {
							return indexStats(ctx)
						},
					},
					{
						Name:  "clear",
						Usage: "Empty the index and its snapshot",
						Action: func(ctx context.Context, _ *cli.Command) error {
							return indexClear(ctx)
						},
					},
				},
			},
			{
				Name:  "recommend",
				Usage: "Compute user recommendations",
				Commands: []*cli.Command{
					{
						Name:      "user",
						Usage:     "Recompute recommendations for one user",
						ArgsUsage: "<userID>",
						Action: func(ctx context.Context, c *cli.Command) error {
							return recommendUser(ctx, c.Args().First())
						},
					},
					{
						Name:  "all",
						Usage: "Queue a recompute for every eligible user",
						Action: func(ctx context.Context, _ *cli.Command) error {
							return recommendAll(ctx)
						},
					},
				},
			},
			{
				Name:  "similarity",
				Usage: "Control the similarity subsystem",
				Commands: []*cli.Command{
					{
						Name:  "enable",
						Usage: "Clear the similarity kill switch",
						Action: func(ctx context.Context, _ *cli.Command) error {
							return setSimilarityDisabled(ctx, false)
						},
					},
					{
						Name:  "disable",
						Usage: "Set the similarity kill switch",
						Action: func(ctx context.Context, _ *cli.Command) error {
							return setSimilarityDisabled(ctx, true)
						},
					},
					{
						Name:      "find",
						Usage:     "Rank photos similar to the given photo",
						ArgsUsage: "<photoID>",
						Flags: []cli.Flag{
							&cli.IntFlag{
								Name:  "k",
								Value: 10,
								Usage: "Maximum number of results",
							},
						},
						Action: func(ctx context.Context, c *cli.Command) error {
							return similarityFind(ctx, c.Args().First(), c.Int("k"))
						},
					},
				},
			},
			{
				Name:  "export",
				Usage: "Export persisted recommendations to files",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "out",
						Value: "exports",
						Usage: "Output directory",
					},
					&cli.StringFlag{
						Name:  "description",
						Value: "",
						Usage: "Description recorded in the export manifest",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return runExport(ctx, c.String("out"), c.String("description"))
				},
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

func runWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := setup.InitializeApp(ctx, telemetry.ServiceWorker, LogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.WithoutCancel(ctx))

	worker := scheduler.NewWorker(
		app.Engine, app.Queue, app.StateStore, app.Monitor,
		&app.Config.Scheduler, app.Logger,
	)
	worker.Run(ctx)

	return nil
}

func workerStatus(ctx context.Context) error {
	app, err := setup.InitializeApp(ctx, telemetry.ServiceWorker, LogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(ctx)

	statuses, err := app.Monitor.GetAllStatuses(ctx)
	if err != nil {
		return err
	}

	if len(statuses) == 0 {
		fmt.Println("No workers reporting")
		return nil
	}

	for _, status := range statuses {
		fmt.Printf("%s %s healthy=%t lastSeen=%s task=%q\n",
			status.WorkerType, status.WorkerID, status.IsHealthy,
			status.LastSeen.Format("15:04:05"), status.CurrentTask)
	}

	return nil
}

func indexBuild(ctx context.Context, force bool) error {
	app, err := setup.InitializeApp(ctx, telemetry.ServiceIndex, LogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(ctx)

	built, err := app.Index.Build(ctx, force)
	if err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}

	stats := app.Index.Stats()

	if built {
		fmt.Printf("Built index with %d vectors\n", stats.Size)
	} else {
		fmt.Printf("Index unchanged (%d vectors)\n", stats.Size)
	}

	return nil
}

func indexStats(ctx context.Context) error {
	app, err := setup.InitializeApp(ctx, telemetry.ServiceIndex, LogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(ctx)

	stats := app.Index.Stats()
	fmt.Printf("Size:      %d\n", stats.Size)
	fmt.Printf("Dimension: %d\n", stats.Dimension)
	fmt.Printf("Snapshot:  %s\n", stats.Path)

	return nil
}

func indexClear(ctx context.Context) error {
	app, err := setup.InitializeApp(ctx, telemetry.ServiceIndex, LogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(ctx)

	app.Index.Clear()
	fmt.Println("Index cleared")

	return nil
}

func recommendUser(ctx context.Context, arg string) error {
	var userID uint64
	if _, err := fmt.Sscanf(arg, "%d", &userID); err != nil || userID == 0 {
		return fmt.Errorf("invalid user ID %q", arg)
	}

	app, err := setup.InitializeApp(ctx, telemetry.ServiceRecommend, LogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(ctx)

	ranked, err := app.Engine.ComputeForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to compute recommendations: %w", err)
	}

	for i, entry := range ranked {
		fmt.Printf("%2d. user %d (%.4f)\n", i+1, entry.UserID, entry.Score)
	}

	return nil
}

func recommendAll(ctx context.Context) error {
	app, err := setup.InitializeApp(ctx, telemetry.ServiceRecommend, LogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(ctx)

	candidates, err := app.DB.Model().User().GetCandidates(ctx)
	if err != nil {
		return fmt.Errorf("failed to load users: %w", err)
	}

	queued := 0

	for _, user := range candidates {
		if err := app.Scheduler.Dispatch(ctx, user.ID, "bulk recompute"); err != nil {
			app.Logger.Warn("Failed to queue recompute",
				zap.Uint64("userID", user.ID),
				zap.Error(err))

			continue
		}

		queued++
	}

	fmt.Printf("Queued recomputes for %d users\n", queued)

	return nil
}

func setSimilarityDisabled(ctx context.Context, disabled bool) error {
	app, err := setup.InitializeApp(ctx, telemetry.ServiceRecommend, LogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(ctx)

	if err := app.Scorer.Cache().SetDisabled(ctx, disabled); err != nil {
		return err
	}

	if disabled {
		fmt.Println("Similarity scoring disabled")
	} else {
		fmt.Println("Similarity scoring enabled")
	}

	return nil
}

func similarityFind(ctx context.Context, arg string, k int64) error {
	var photoID uint64
	if _, err := fmt.Sscanf(arg, "%d", &photoID); err != nil || photoID == 0 {
		return fmt.Errorf("invalid photo ID %q", arg)
	}

	app, err := setup.InitializeApp(ctx, telemetry.ServiceRecommend, LogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(ctx)

	query, err := app.DB.Model().Photo().GetPhoto(ctx, photoID)
	if err != nil {
		return fmt.Errorf("failed to load photo: %w", err)
	}

	candidates, err := app.DB.Model().Photo().PhotosWithEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load candidates: %w", err)
	}

	results, err := app.Scorer.FindSimilar(
		ctx, query, candidates, int(k), app.Config.Similarity.Threshold,
		similarity.MetricCosine, true,
	)
	if err != nil {
		return fmt.Errorf("failed to find similar photos: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No similar photos found")
		return nil
	}

	for i, result := range results {
		fmt.Printf("%2d. photo %d (%.4f)\n", i+1, result.PhotoID, result.Score)
	}

	return nil
}

func runExport(ctx context.Context, outDir, description string) error {
	app, err := setup.InitializeApp(ctx, telemetry.ServiceExport, LogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(ctx)

	exporter := export.New(app.DB, outDir, &export.Config{
		ExportVersion: "1",
		Description:   description,
	}, app.Logger)

	return exporter.ExportAll(ctx)
}
