package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"ragbot/internal/chunker"
	"ragbot/internal/config"
	"ragbot/internal/domain"
	"ragbot/internal/embedding/openaiapi"
	"ragbot/internal/embedding/tfidf"
	"ragbot/internal/llm"
	"ragbot/internal/memory"
	"ragbot/internal/pdfload"
	"ragbot/internal/retriever"
	"ragbot/internal/service"
	"ragbot/internal/summarizer"
	"ragbot/internal/tui"
	vecmem "ragbot/internal/vectorstore/memory"
	"ragbot/internal/vectorstore/qdrant"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config YAML (default: ./config.yaml, then ~/.config/ragbot/config.yaml)")
	question := flag.String("q", "", "Ask one question and exit instead of starting the chat UI")
	persistent := flag.Bool("persistent", false, "Persist conversation memory across restarts")
	flag.Parse()
	files := flag.Args()
	if len(files) == 0 {
		fmt.Println("Usage: ragbot [--config=config.yaml] [--persistent] [-q question] file1.pdf [file2.pdf ...]")
		os.Exit(1)
	}

	// Credentials come from the environment; a local .env is a convenience.
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	var cfg *config.AppConfig
	if *cfgPath != "" {
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			logger.Fatal("failed to load config", zap.String("path", *cfgPath), zap.Error(err))
		}
	} else {
		var path string
		cfg, path, err = config.LoadDefault()
		if err != nil {
			logger.Fatal("failed to load config", zap.Error(err))
		}
		logger.Info("using config", zap.String("path", path))
	}

	loader := pdfload.New(logger)

	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "tfidf", "":
		emb = tfidf.NewEmbedder()
	case "openai":
		ocfg := openaiapi.Config{}
		if cfg.Embedder.OpenAI != nil {
			ocfg = openaiapi.Config{
				BaseURL:   cfg.Embedder.OpenAI.BaseURL,
				APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
				Model:     cfg.Embedder.OpenAI.Model,
				Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
			}
		}
		emb, err = openaiapi.NewClient(ocfg)
		if err != nil {
			logger.Fatal("failed to create embedder", zap.Error(err))
		}
	default:
		logger.Fatal("unknown embedder", zap.String("type", cfg.Embedder.Type))
	}

	var store domain.VectorStore
	switch cfg.VectorStore.Type {
	case "memory", "":
		store = vecmem.NewStore()
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			logger.Fatal("qdrant config missing")
		}
		store = qdrant.NewStore(qdrant.Config{
			URL:              cfg.VectorStore.Qdrant.URL,
			APIKey:           cfg.VectorStore.Qdrant.APIKey,
			CollectionPrefix: cfg.VectorStore.Qdrant.CollectionPrefix,
			Timeout:          time.Duration(cfg.VectorStore.Qdrant.TimeoutSecs) * time.Second,
		})
	default:
		logger.Fatal("unknown vector store", zap.String("type", cfg.VectorStore.Type))
	}

	model, err := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKeyEnv:   cfg.LLM.APIKeyEnv,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
	})
	if err != nil {
		logger.Fatal("failed to create chat client", zap.Error(err))
	}

	prompt, err := llm.LoadPrompt(cfg.LLM.PromptFile)
	if err != nil {
		logger.Fatal("failed to load prompt", zap.String("path", cfg.LLM.PromptFile), zap.Error(err))
	}

	retr := retriever.NewManager(store, emb, cfg.Retriever.TopK, logger)
	mem := memory.NewManager(cfg.Memory.PersistentFile, logger)
	svc := service.NewService(loader, chunker.NewWindowChunker(cfg.Chunker.WindowSize, cfg.Chunker.Overlap),
		retr, mem, model, prompt, cfg.Citations.TriggerKeywords, logger)

	summary, err := summarizeCorpus(loader, summarizer.NewFrequencySummarizer(), files, cfg.Summarizer.MaxSentences)
	if err != nil {
		logger.Fatal("failed to read documents", zap.Error(err))
	}

	if *question != "" {
		resp := svc.Answer(context.Background(), service.Request{
			Files:            files,
			Query:            *question,
			State:            &service.State{},
			PersistentMemory: *persistent,
		})
		color.New(color.FgCyan, color.Bold).Println("Q: " + resp.Query)
		fmt.Println(resp.Answer)
		return
	}

	m := tui.New(svc, files, summary, *persistent)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		logger.Fatal("chat UI failed", zap.Error(err))
	}
}

// summarizeCorpus extracts every document up front, both to fail fast on an
// unreadable file and to show a short overview in the UI header.
func summarizeCorpus(loader *pdfload.Loader, sum domain.Summarizer, files []string, maxSentences int) (string, error) {
	var texts []string
	for _, file := range files {
		pages, err := loader.Load(file)
		if err != nil {
			return "", err
		}
		for _, p := range pages {
			texts = append(texts, p.Text)
		}
	}
	return sum.Summarize(strings.Join(texts, " "), maxSentences)
}
