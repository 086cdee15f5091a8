package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	gemini "github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"
	openai "github.com/amikos-tech/chroma-go/pkg/embeddings/openai"
	"github.com/gamma-omg/contextqa/catalog"
	"github.com/gamma-omg/contextqa/chat"
	"github.com/gamma-omg/contextqa/docstore"
	"github.com/gamma-omg/contextqa/embedding"
	"github.com/gamma-omg/contextqa/ingest"
	"github.com/gamma-omg/contextqa/llm"
	"github.com/gamma-omg/contextqa/memory"
	"github.com/gamma-omg/contextqa/rag"
	"github.com/gamma-omg/contextqa/readers"
	"github.com/gamma-omg/contextqa/tools"
	"github.com/mark3labs/mcp-go/server"
)

func createEmbeddingFunction(cfg *Config) (embeddings.EmbeddingFunction, error) {
	if cfg.OpenAI != nil {
		ef, err := openai.NewOpenAIEmbeddingFunction(
			cfg.OpenAI.ApiKey,
			openai.WithModel(openai.EmbeddingModel(cfg.OpenAI.EmbeddingModel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI embedding function: %w", err)
		}

		return ef, nil
	}

	if cfg.Gemini != nil {
		ef, err := gemini.NewGeminiEmbeddingFunction(
			gemini.WithAPIKey(cfg.Gemini.ApiKey),
			gemini.WithDefaultModel(embeddings.EmbeddingModel(cfg.Gemini.Model)))
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini embedding function: %w", err)
		}

		return ef, nil
	}

	return nil, errors.New("invalid embeddings provider configuration")
}

func initBackends(ctx context.Context, cfg *Config, reset bool) (*docstore.Backends, error) {
	backends := docstore.NewBackends()

	vectorPath := filepath.Join(cfg.DataDir, "vectors")
	if reset {
		if err := os.RemoveAll(vectorPath); err != nil {
			return nil, fmt.Errorf("failed to reset local vector store: %w", err)
		}
	}

	local, err := docstore.NewLocalStore(docstore.LocalConfig{
		Path:       vectorPath,
		Collection: "contextqa",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize local vector store: %w", err)
	}
	backends.Register(docstore.SelectorLocal, local)

	if cfg.Chroma != nil {
		initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		remote, err := docstore.NewChromaStore(initCtx, docstore.ChromaConfig{
			BaseURL:     cfg.Chroma.Addr,
			Collection:  cfg.Chroma.Collection,
			RequestSize: cfg.Chroma.RequestSize,
			Reset:       reset,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Chroma vector store: %w", err)
		}
		backends.Register(docstore.SelectorRemote, remote)
	}

	return backends, nil
}

func run() error {
	reset := flag.Bool("reset", false, "Drop and rebuild the vector stores on start")
	cfgPath := flag.String("config", "cfg/config.yaml", "Configuration file for the service")
	flag.Parse()

	cfg, err := readConfig(*cfgPath)
	if err != nil {
		return err
	}

	logW := os.Stderr
	if cfg.LogFile != "" {
		logFile, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer logFile.Close()
		logW = logFile
	}
	logger := slog.New(slog.NewJSONHandler(logW, nil))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cat, err := catalog.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer cat.Close()

	ef, err := createEmbeddingFunction(cfg)
	if err != nil {
		return err
	}
	embedder := embedding.FromChromaFunction(ef)

	if cfg.OpenAI == nil {
		return errors.New("chat requires an open_ai configuration")
	}
	model, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey: cfg.OpenAI.ApiKey,
		Model:  cfg.OpenAI.Model,
	})
	if err != nil {
		return err
	}

	backends, err := initBackends(ctx, cfg, *reset)
	if err != nil {
		return err
	}

	setters := rag.NewSetters()
	for _, sel := range []docstore.Selector{docstore.SelectorLocal, docstore.SelectorRemote} {
		store, err := backends.For(sel)
		if err != nil {
			continue
		}
		proc := ingest.NewProcessor(logger, cat, store, embedder)
		setters.Register(sel, rag.NewSetter(logger, proc, store, embedder, model, cfg.Results))
	}

	mem := memory.NewSQLiteStore(cat.DB())
	engine := chat.NewEngine(logger, model, mem, tools.NewSearchClient(""), cfg.ChatBuffer)

	if cfg.DocRoot != "" {
		local, err := backends.For(docstore.SelectorLocal)
		if err != nil {
			return err
		}
		reg := NewRegistry(
			logger,
			cfg.DocRoot,
			time.Duration(cfg.MergeEventsMs)*time.Millisecond,
			ingest.NewProcessor(logger, cat, local, embedder),
			cat,
			local,
			[]readers.FileReader{&readers.TextFileReader{}, &readers.UniversalFileReader{}},
			cfg.chunkConfig(),
		)

		go func() {
			if err := reg.Sync(ctx); err != nil {
				logger.Error("initial sync failed", "error", err)
			}
			if err := reg.Watch(ctx); err != nil {
				logger.Error("failed to start directory watcher", "error", err)
			}
		}()
	}

	if cfg.MCPAddr != "" {
		localSetter, err := setters.For(docstore.SelectorLocal)
		if err != nil {
			return err
		}
		sse := server.NewSSEServer(NewMCPServer(localSetter),
			server.WithBaseURL(fmt.Sprintf("http://%s", cfg.MCPAddr)))

		go func() {
			logger.Info("mcp server listening", "addr", cfg.MCPAddr)
			if err := sse.Start(cfg.MCPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("mcp server failed", "error", err)
			}
		}()
		defer sse.Shutdown(context.Background())
	}

	api := newAPIServer(logger, setters, engine, cat, cfg.chunkConfig())
	srv := &http.Server{Addr: cfg.ServerAddr, Handler: api.routes()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server listening", "addr", cfg.ServerAddr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
