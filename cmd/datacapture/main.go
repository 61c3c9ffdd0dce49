package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"google.golang.org/api/option"

	"github.com/zombor/datacapture/internal/capture"
	"github.com/zombor/datacapture/internal/extraction"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("datacapture")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "datacapture.db", "Database file path")
		storageType    = fs.StringLong("storage", "local", "Photo storage: 'local' or 'gcs'")
		storagePath    = fs.StringLong("storage-path", "./captured_images", "Local storage directory path")
		gcsBucket      = fs.StringLong("gcs-bucket", "", "Cloud Storage bucket for captured photos")
		gcsPrefix      = fs.StringLong("gcs-prefix", "captured_images", "Object prefix inside the bucket")
		gcsCredentials = fs.StringLong("gcs-credentials", "", "Service account JSON file (defaults to application default credentials)")
		extractorType  = fs.StringLong("extractor", "gemini", "Extractor type: 'gemini' or 'ollama'")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2.5vl, llama3.2-vision)")
		promptsPath    = fs.StringLong("prompts", "", "YAML prompt catalog overriding the built-in prompts")
		maxUploadMB    = fs.IntLong("max-upload-mb", 50, "Maximum upload size in megabytes")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("DATA_CAPTURE"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	catalog, err := extraction.LoadCatalog(*promptsPath)
	if err != nil {
		slog.Error("Failed to load prompt catalog", "path", *promptsPath, "error", err)
		os.Exit(1)
	}

	// Initialize extractor based on type
	var extractor extraction.Extractor
	switch *extractorType {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini extractor...", "model", *geminiModel)
		extractor, err = extraction.NewGemini(apiKey, *geminiModel, catalog)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama extractor...", "url", *ollamaURL, "model", *ollamaModel)
		extractor, err = extraction.NewOllama(*ollamaURL, *ollamaModel, catalog)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid extractor type", "type", *extractorType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer extractor.Close()

	slog.Info("Initializing database...")
	db, err := capture.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	slog.Info("Initializing storage...", "type", *storageType)
	var store capture.Storage
	switch *storageType {
	case "local":
		store, err = capture.NewLocalStorage(*storagePath)
	case "gcs":
		var opts []option.ClientOption
		if *gcsCredentials != "" {
			opts = append(opts, option.WithCredentialsFile(*gcsCredentials))
		}
		var gcs *capture.GCSStorage
		gcs, err = capture.NewGCSStorage(context.Background(), *gcsBucket, *gcsPrefix, opts...)
		if err == nil {
			defer gcs.Close()
			store = gcs
		}
	default:
		err = fmt.Errorf("unknown storage type %q", *storageType)
	}
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	service := capture.NewService(db, store)
	dispatcher := capture.NewDispatcher(extractor)

	basicAuth := capture.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := capture.NewServer(dispatcher, service, basicAuth,
		capture.WithMaxUploadBytes(int64(*maxUploadMB)<<20),
	)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
