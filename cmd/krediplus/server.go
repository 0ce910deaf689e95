package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/krediplus/backend/internal/api"
	"github.com/krediplus/backend/internal/chunker"
	"github.com/krediplus/backend/internal/config"
	"github.com/krediplus/backend/internal/ingest"
	"github.com/krediplus/backend/internal/openai"
	"github.com/krediplus/backend/internal/rag"
	"github.com/krediplus/backend/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the backend server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mcpStdio, _ := cmd.Flags().GetBool("mcp")
		return runServer(mcpStdio)
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
}

func runServer(mcpStdio bool) error {
	fmt.Fprintf(os.Stderr, "krediplus version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	aiClient, err := openai.New(openai.Config{
		APIKey:     cfg.OpenAI.APIKey,
		EmbedModel: cfg.OpenAI.EmbedModel,
		ChatModel:  cfg.OpenAI.ChatModel,
	})
	if err != nil {
		return fmt.Errorf("creating OpenAI client: %w", err)
	}

	splitter, err := chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return fmt.Errorf("configuring chunker: %w", err)
	}

	chat := rag.NewChatService(aiClient, store, aiClient, float32(cfg.Retrieval.Threshold), cfg.Retrieval.TopK)
	ingestor := rag.NewIngestor(store, store, aiClient, splitter)

	worker := ingest.NewWorker(store, ingestor, 500*time.Millisecond)
	go worker.Run(ctx)

	handler := api.NewAppHandler(api.AppDeps{
		Store:    store,
		Chat:     chat,
		FilesDir: filepath.Join(cfg.Storage.DataDir, "files"),
		Token:    cfg.Server.AuthToken,
	})

	if mcpStdio {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Store:    store,
			Chat:     chat,
			Embedder: aiClient,
			Chunks:   store,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
