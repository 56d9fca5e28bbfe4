package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/bill-assistant/internal/llm"
	"github.com/zombor/bill-assistant/internal/ocr"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// rootConfig holds the flags shared by every subcommand
type rootConfig struct {
	provider      *string
	ollamaURL     *string
	ollamaModel   *string
	geminiKey     *string
	geminiModel   *string
	temperature   *float64
	ocrEngine     *string
	tesseractPath *string
	tesseractLang *string
	logLevel      *string
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	if err := godotenv.Load(); err != nil {
		// A missing .env file is normal outside development
		slog.Debug("No .env file loaded", "error", err)
	}

	root, _ := newRootCommand()

	ctx := context.Background()
	err := root.ParseAndRun(ctx, os.Args[1:], ff.WithEnvVarPrefix("BILL_ASSISTANT"))
	switch {
	case err == nil:
	case errors.Is(err, ff.ErrHelp), errors.Is(err, ff.ErrNoExec):
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(root.GetSelected()))
		if errors.Is(err, ff.ErrNoExec) {
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCommand builds the command tree and the shared configuration it fills
func newRootCommand() (*ff.Command, *rootConfig) {
	rootFlags := ff.NewFlagSet("bill-assistant")
	cfg := &rootConfig{
		provider:      rootFlags.StringLong("llm", "ollama", "LLM provider: 'ollama' or 'gemini'"),
		ollamaURL:     rootFlags.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL"),
		ollamaModel:   rootFlags.StringLong("ollama-model", "llama3.1:8b", "Ollama model name"),
		geminiKey:     rootFlags.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)"),
		geminiModel:   rootFlags.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name"),
		temperature:   rootFlags.Float64Long("temperature", 0.1, "Sampling temperature for generation"),
		ocrEngine:     rootFlags.StringLong("ocr", "tesseract", "OCR engine: 'tesseract' or 'gemini'"),
		tesseractPath: rootFlags.StringLong("tesseract-path", "tesseract", "Path to the tesseract binary"),
		tesseractLang: rootFlags.StringLong("tesseract-lang", "eng", "Tesseract language codes, e.g. eng+hin"),
		logLevel:      rootFlags.StringLong("log-level", "info", "Log level: debug, info, warn or error"),
	}
	rootFlags.BoolLong("version", "Show version information")

	root := &ff.Command{
		Name:      "bill-assistant",
		Usage:     "bill-assistant [FLAGS] <SUBCOMMAND> ...",
		ShortHelp: "structure scanned bills into JSON and answer questions about them",
		Flags:     rootFlags,
		Subcommands: []*ff.Command{
			newServeCommand(rootFlags, cfg),
			newChatCommand(rootFlags, cfg),
		},
	}
	return root, cfg
}

// setupLogging installs the default logger at the configured level
func (c *rootConfig) setupLogging() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(*c.logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", *c.logLevel, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// apiKey returns the Gemini key from the flag or GEMINI_API_KEY
func (c *rootConfig) apiKey() string {
	if *c.geminiKey != "" {
		return *c.geminiKey
	}
	return os.Getenv("GEMINI_API_KEY")
}

func (c *rootConfig) newGenerator() (llm.Generator, error) {
	if *c.provider == "gemini" && c.apiKey() == "" {
		return nil, errors.New("gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
	}
	slog.Info("Initializing LLM...", "provider", *c.provider)
	return llm.New(llm.Config{
		Provider:    *c.provider,
		OllamaURL:   *c.ollamaURL,
		OllamaModel: *c.ollamaModel,
		GeminiKey:   c.apiKey(),
		GeminiModel: *c.geminiModel,
		Temperature: float32(*c.temperature),
	})
}

func (c *rootConfig) newRecognizer() (ocr.Recognizer, error) {
	if *c.ocrEngine == "gemini" && c.apiKey() == "" {
		return nil, errors.New("gemini API key is required for gemini OCR. Set --gemini-key flag or GEMINI_API_KEY environment variable")
	}
	slog.Info("Initializing OCR...", "engine", *c.ocrEngine)
	return ocr.New(ocr.Config{
		Engine:        *c.ocrEngine,
		TesseractPath: *c.tesseractPath,
		Languages:     *c.tesseractLang,
		GeminiKey:     c.apiKey(),
		GeminiModel:   *c.geminiModel,
	})
}
