package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"plegma/internal/model"
	"plegma/internal/storage"
	"plegma/pkg/plegma"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "restore":
		return runRestore(ctx, args[1:])
	case "bench":
		return runBench(ctx, args[1:])
	case "algorithms":
		return runAlgorithms(ctx, args[1:])
	case "optimize":
		return runOptimize(ctx, args[1:])
	case "engine-status":
		return runEngineStatus(ctx, args[1:])
	case "metrics":
		return runMetrics(ctx, args[1:])
	case "report":
		return runReport(ctx, args[1:])
	case "state":
		return runState(ctx, args[1:])
	case "summary":
		return runSummary(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: plegmactl <init|run|restore|bench|algorithms|optimize|engine-status|metrics|report|state|summary> [flags]", msg)
}

func newClient(storeKind, dbPath string) (*plegma.Client, error) {
	return plegma.New(plegma.Options{StoreKind: storeKind, DBPath: dbPath})
}

func storeFlags(fs *flag.FlagSet) (storeKind, dbPath *string) {
	storeKind = fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath = fs.String("db-path", "plegma.db", "sqlite database path")
	return storeKind, dbPath
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	configPath := fs.String("config", "", "cluster config TOML file")
	durationMs := fs.Int("duration-ms", 1000, "how long to let timer-driven evolution run")
	steps := fs.Int("steps", 0, "manual generations to evolve instead of the timer")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return errors.New("run requires -config")
	}

	cfg, err := loadClusterConfig(*configPath)
	if err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	if _, err := client.StartCluster(ctx, cfg); err != nil {
		return err
	}
	if *steps > 0 {
		if err := client.PauseCluster(cfg.ID); err != nil {
			return err
		}
		for i := 0; i < *steps; i++ {
			if _, err := client.EvolveGeneration(ctx, cfg.ID); err != nil {
				return err
			}
		}
	} else {
		time.Sleep(time.Duration(*durationMs) * time.Millisecond)
	}

	stats, err := client.ClusterStats(cfg.ID)
	if err != nil {
		return err
	}
	if err := printJSON(stats); err != nil {
		return err
	}
	return client.StopCluster(ctx, cfg.ID)
}

func runRestore(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	durationMs := fs.Int("duration-ms", 1000, "how long to let restored clusters run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	restored, err := client.RestoreClusters(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("restored %d cluster(s): %v\n", len(restored), restored)
	time.Sleep(time.Duration(*durationMs) * time.Millisecond)
	return printJSON(client.Clusters())
}

func runBench(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bench", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	configPath := fs.String("config", "", "cluster config TOML file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return errors.New("bench requires -config")
	}

	cfg, err := loadClusterConfig(*configPath)
	if err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	record, err := client.Benchmark(ctx, cfg)
	if err != nil {
		return err
	}
	return printJSON(record)
}

func runAlgorithms(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("algorithms", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	return printJSON(client.Algorithms())
}

func runOptimize(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("optimize", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	birth := fs.String("birth", "6", "comma-separated birth counts")
	survive := fs.String("survive", "5,6,7", "comma-separated survival counts")
	maxMs := fs.Float64("max-ms", 0, "max generation time target in ms")
	if err := fs.Parse(args); err != nil {
		return err
	}

	birthCounts, err := parseCounts(*birth)
	if err != nil {
		return err
	}
	surviveCounts, err := parseCounts(*survive)
	if err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	optimized, err := client.OptimizeRules(
		model.NewRuleSet(birthCounts, surviveCounts),
		model.PerformanceTarget{MaxGenerationTimeMs: *maxMs},
	)
	if err != nil {
		return err
	}
	return printJSON(optimized)
}

func runEngineStatus(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("engine-status", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	return printJSON(client.EngineStatus())
}

func runMetrics(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("metrics", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	metrics := client.ComputeMetrics()
	fmt.Printf("node: %s\n", metrics.NodeID)
	fmt.Printf("uptime: %.1fs\n", metrics.UptimeSeconds)
	fmt.Printf("generations: %s\n", humanize.Comma(int64(metrics.Global.Generations)))
	fmt.Printf("memory: %s alloc / %s sys\n",
		humanize.Bytes(metrics.Resources.MemoryAllocBytes),
		humanize.Bytes(metrics.Resources.MemorySysBytes))
	fmt.Printf("goroutines: %d schedulers: %d cpus: %d\n",
		metrics.Resources.Goroutines, metrics.Resources.Schedulers, metrics.Resources.CPUs)
	return nil
}

func runReport(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	return printJSON(client.PerformanceReport())
}

func runState(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("state", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	state, err := client.SystemState()
	if err != nil {
		return err
	}
	return printJSON(state)
}

func runSummary(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	storeKind, dbPath := storeFlags(fs)
	id := fs.String("id", "", "cluster id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("summary requires -id")
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	summary, err := client.ClusterSummary(ctx, *id)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
