package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"imagesearch/engine"
)

// ParseArguments converts command-line arguments into a map of flags and values
func ParseArguments() map[string]string {
	args := make(map[string]string)

	// First, identify the command (index/search/status)
	command := ""
	commandIndex := -1
	for i := 1; i < len(os.Args); i++ {
		if os.Args[i] == "index" || os.Args[i] == "search" || os.Args[i] == "status" {
			command = os.Args[i]
			commandIndex = i
			break
		}
	}

	if command != "" {
		args["command"] = command
	}

	// Process all arguments, skipping the command
	for i := 1; i < len(os.Args); i++ {
		if i == commandIndex {
			continue
		}

		arg := os.Args[i]

		// Handle flags with equals sign (--key=value)
		if strings.HasPrefix(arg, "--") && strings.Contains(arg, "=") {
			parts := strings.SplitN(arg, "=", 2)
			flagName := strings.TrimPrefix(parts[0], "--")
			args[flagName] = parts[1]
			continue
		}

		// Handle flags without equals sign (--key value)
		if strings.HasPrefix(arg, "--") {
			flagName := strings.TrimPrefix(arg, "--")

			// Check if this is a boolean flag (no value)
			if i+1 >= len(os.Args) || strings.HasPrefix(os.Args[i+1], "--") {
				args[flagName] = "true"
			} else {
				// The next argument is the value
				args[flagName] = os.Args[i+1]
				i++ // Skip the value in the next iteration
			}
		}
	}

	return args
}

// GetDefaultStorePath returns the default path for the index snapshot file
func GetDefaultStorePath() string {
	// Get the executable path
	exePath, err := os.Executable()
	if err != nil {
		// Fallback to current directory if executable path can't be determined
		return "imageindex.snap"
	}

	// Get the directory containing the executable
	exeDir := filepath.Dir(exePath)

	// Return the default store path in the same directory
	return filepath.Join(exeDir, "imageindex.snap")
}

// PrintUsage outputs the command-line usage instructions
func PrintUsage() {
	fmt.Printf("Usage:\n")
	fmt.Printf("  %s index --folder=PATH | --bucket=NAME [--store=PATH] [--backend=snapshot|sqlite|bolt] [--force] [--debug] [--logfile=PATH]\n", os.Args[0])
	fmt.Printf("  %s search --image=PATH [--store=PATH] [--backend=NAME] [--threshold=VALUE] [--limit=N] [--debug] [--logfile=PATH]\n", os.Args[0])
	fmt.Printf("  %s status [--store=PATH] [--backend=NAME]\n", os.Args[0])
	fmt.Printf("\nParameters:\n")
	fmt.Printf("  --folder      : Path to local folder containing reference images\n")
	fmt.Printf("  --bucket      : S3 bucket containing reference images (alternative to --folder)\n")
	fmt.Printf("  --prefix      : Key prefix when listing an S3 bucket\n")
	fmt.Printf("  --region      : AWS region for --bucket\n")
	fmt.Printf("  --endpoint    : Custom S3 endpoint (MinIO, LocalStack)\n")
	fmt.Printf("  --image       : Path to query image for search\n")
	fmt.Printf("  --store       : Path to index store file (default: %s)\n", GetDefaultStorePath())
	fmt.Printf("  --backend     : Index store backend: snapshot, sqlite or bolt (default: snapshot)\n")
	fmt.Printf("  --force       : Discard the existing index and reprocess everything\n")
	fmt.Printf("  --threshold   : Similarity threshold for search (-1.0 to 1.0, default: %.1f)\n", engine.DefaultThreshold)
	fmt.Printf("  --limit       : Maximum number of matches to return (default: %d)\n", engine.DefaultLimit)
	fmt.Printf("  --debug       : Enable debug mode (logs detailed information)\n")
	fmt.Printf("  --logfile     : Specify custom log file path (default: imagesearch.log)\n")
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  %s index --folder=/path/to/images --debug\n", os.Args[0])
	fmt.Printf("  %s index --bucket=my-photos --prefix=uploads/ --region=eu-west-1\n", os.Args[0])
	fmt.Printf("  %s search --image=/path/to/query.jpg --threshold=0.5 --limit=5\n", os.Args[0])
}

// ParseThreshold parses and validates the threshold value from string.
// SSIM scores live in [-1, 1].
func ParseThreshold(thresholdStr string) (float64, error) {
	parsedThreshold, err := strconv.ParseFloat(thresholdStr, 64)
	if err != nil || parsedThreshold < -1 || parsedThreshold > 1 {
		return engine.DefaultThreshold, fmt.Errorf("invalid threshold value '%s', using default (%.1f)", thresholdStr, engine.DefaultThreshold)
	}
	return parsedThreshold, nil
}

// ParseLimit parses and validates the result limit from string
func ParseLimit(limitStr string) (int, error) {
	parsedLimit, err := strconv.Atoi(limitStr)
	if err != nil || parsedLimit < 1 {
		return engine.DefaultLimit, fmt.Errorf("invalid limit value '%s', using default (%d)", limitStr, engine.DefaultLimit)
	}
	return parsedLimit, nil
}
