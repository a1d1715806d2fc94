package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"imagesearch/engine"
	"imagesearch/logging"
	"imagesearch/source"
	"imagesearch/store"
	"imagesearch/types"
	"imagesearch/utils"
)

func main() {
	// Parse command line arguments into a map
	args := utils.ParseArguments()

	// Get the command (index, search or status)
	command, hasCommand := args["command"]

	// Set default store path
	storePath := utils.GetDefaultStorePath()
	if customStore, ok := args["store"]; ok && customStore != "" {
		storePath = customStore
	}

	// Setup debug logging if enabled
	if _, ok := args["debug"]; ok {
		logPath := "imagesearch.log"
		if customLogPath, ok := args["logfile"]; ok && customLogPath != "" {
			logPath = customLogPath
		}
		if err := logging.SetupLogger(logPath); err != nil {
			fmt.Printf("Warning: Failed to setup logging: %v\n", err)
		} else {
			fmt.Printf("Debug mode enabled. Logging to: %s\n", logPath)
			defer logging.CloseLogger()
		}
	}

	// Check if required arguments are missing
	showUsage := !hasCommand

	if hasCommand && command == "index" && args["folder"] == "" && args["bucket"] == "" {
		showUsage = true
	}

	if hasCommand && command == "search" && args["image"] == "" {
		showUsage = true
	}

	if showUsage {
		utils.PrintUsage()
		os.Exit(1)
	}

	switch command {
	case "index":
		handleIndexCommand(args, storePath)
	case "search":
		handleSearchCommand(args, storePath)
	case "status":
		handleStatusCommand(args, storePath)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		utils.PrintUsage()
		os.Exit(1)
	}
}

// openStore picks the persistence backend from the arguments
func openStore(args map[string]string, storePath string) store.Store {
	backend := args["backend"]
	switch backend {
	case "", "snapshot":
		return store.NewSnapshot(storePath)
	case "sqlite":
		st, err := store.OpenSQLite(storePath)
		if err != nil {
			log.Fatalf("Error opening sqlite store: %v", err)
		}
		return st
	case "bolt":
		st, err := store.OpenBolt(storePath)
		if err != nil {
			log.Fatalf("Error opening bolt store: %v", err)
		}
		return st
	default:
		log.Fatalf("Unknown store backend: %s (expected snapshot, sqlite or bolt)", backend)
		return nil
	}
}

// openSource picks the image source from the arguments
func openSource(ctx context.Context, args map[string]string) source.Source {
	if folder := args["folder"]; folder != "" {
		src, err := source.NewDir(folder)
		if err != nil {
			log.Fatalf("Error opening image folder: %v", err)
		}
		return src
	}

	if bucket := args["bucket"]; bucket != "" {
		src, err := source.NewS3(ctx, source.S3Config{
			Region:         args["region"],
			Bucket:         bucket,
			Prefix:         args["prefix"],
			Endpoint:       args["endpoint"],
			ForcePathStyle: args["endpoint"] != "",
		})
		if err != nil {
			log.Fatalf("Error opening S3 source: %v", err)
		}
		return src
	}

	log.Fatalf("No image source configured (use --folder=PATH or --bucket=NAME)")
	return nil
}

func handleIndexCommand(args map[string]string, storePath string) {
	ctx := context.Background()

	st := openStore(args, storePath)
	defer st.Close()

	src := openSource(ctx, args)

	force := false
	if _, ok := args["force"]; ok {
		force = true
	}

	fmt.Printf("Starting image indexing...\n")
	fmt.Printf("Force rebuild mode: %v\n", force)

	startTime := time.Now()

	eng := engine.New(src, st)
	report, err := eng.Build(ctx, force)
	if err != nil {
		log.Fatalf("Error building index: %v", err)
	}

	duration := time.Since(startTime)
	fmt.Printf("\nIndexing completed successfully!\n")
	fmt.Printf("New images indexed: %d\n", report.Added)
	fmt.Printf("Total images in index: %d\n", report.Total)
	fmt.Printf("Total execution time: %v\n", duration)
	fmt.Printf("Index store: %s\n", storePath)
}

func handleSearchCommand(args map[string]string, storePath string) {
	ctx := context.Background()

	// Get query image path
	queryPath := args["image"]
	if _, err := os.Stat(queryPath); os.IsNotExist(err) {
		log.Fatalf("Query image does not exist: %s", queryPath)
	}

	// Set custom threshold if provided
	threshold := math.NaN() // NaN selects the engine default
	if thresholdStr, ok := args["threshold"]; ok {
		parsedThreshold, err := utils.ParseThreshold(thresholdStr)
		if err != nil {
			fmt.Printf("Warning: %v\n", err)
		} else {
			threshold = parsedThreshold
		}
	}

	limit := 0 // zero selects the engine default
	if limitStr, ok := args["limit"]; ok {
		parsedLimit, err := utils.ParseLimit(limitStr)
		if err != nil {
			fmt.Printf("Warning: %v\n", err)
		} else {
			limit = parsedLimit
		}
	}

	st := openStore(args, storePath)
	defer st.Close()

	eng := engine.New(searchOnlySource{}, st)
	status := eng.Load()
	if status.Total == 0 {
		log.Fatalf("Index is empty: %s. Run the index command first.", storePath)
	}

	query, err := os.Open(queryPath)
	if err != nil {
		log.Fatalf("Error opening query image: %v", err)
	}
	defer query.Close()

	fmt.Println("Searching for similar images...")

	startTime := time.Now()

	matches, err := eng.Search(ctx, query, threshold, limit)
	if err != nil {
		log.Fatalf("Error finding similar images: %v", err)
	}

	// Print top matches
	fmt.Println("\nTop Matches:")
	if len(matches) == 0 {
		fmt.Println("No matches found.")
	} else {
		for i, match := range matches {
			fmt.Printf("%d. Image: %s\n", i+1, match.ID)
			fmt.Printf("   SSIM Score: %.4f\n", match.Score)
		}
	}

	duration := time.Since(startTime)
	fmt.Printf("\nTotal search time: %v\n", duration)
}

func handleStatusCommand(args map[string]string, storePath string) {
	st := openStore(args, storePath)
	defer st.Close()

	eng := engine.New(searchOnlySource{}, st)
	status := eng.Load()

	fmt.Printf("Index store: %s\n", storePath)
	fmt.Printf("Indexed: %v\n", status.Indexed)
	fmt.Printf("Total images: %d\n", status.Total)
}

// searchOnlySource backs sessions that only read the persisted index.
type searchOnlySource struct{}

func (searchOnlySource) List(ctx context.Context) ([]types.ImageRef, error) {
	return nil, nil
}

func (searchOnlySource) Fetch(ctx context.Context, id string) ([]byte, error) {
	return nil, &source.FetchError{ID: id, Err: fmt.Errorf("search-only session has no image source")}
}
