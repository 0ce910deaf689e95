package main

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/krediplus/backend/internal/config"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the uploaded documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.postJSON(context.Background(), "/chat", map[string]string{"message": question})
		if err != nil {
			return err
		}

		var result struct {
			Response string `json:"response"`
			Sources  []struct {
				Preview    string         `json:"content_preview"`
				Similarity float32        `json:"similarity"`
				Metadata   map[string]any `json:"metadata"`
			} `json:"sources"`
			ProcessingTime float64 `json:"processing_time"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Response)

		if len(result.Sources) > 0 {
			fmt.Println()
			for i, s := range result.Sources {
				source := "documento"
				if sf, ok := s.Metadata["source_file"].(string); ok && sf != "" {
					source = sf
				}
				fmt.Printf("%s %s [similarity: %.3f]\n",
					colorize(colorBold, fmt.Sprintf("Fuente %d:", i+1)), source, s.Similarity)
			}
		}
		printStep("answered in %.2fs", result.ProcessingTime)
		return nil
	},
}

// --- upload ---

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a document for ingestion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			return fmt.Errorf("building upload: %w", err)
		}
		if _, err := fw.Write(data); err != nil {
			return fmt.Errorf("building upload: %w", err)
		}
		if err := mw.Close(); err != nil {
			return fmt.Errorf("building upload: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.do(context.Background(), "POST", "/documents", mw.FormDataContentType(), &buf)
		if err != nil {
			return err
		}

		var doc struct {
			ID       string `json:"id"`
			Filename string `json:"filename"`
			Status   string `json:"processing_status"`
		}
		if err := decodeJSON(resp, &doc); err != nil {
			return err
		}

		printSuccess("Queued %s (%s)", doc.Filename, doc.ID)
		return nil
	},
}

// --- documents ---

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Manage uploaded documents",
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(context.Background(), "/documents")
		if err != nil {
			return err
		}

		var docs []struct {
			ID          string `json:"id"`
			Filename    string `json:"filename"`
			Status      string `json:"processing_status"`
			CreatedAt   string `json:"created_at"`
			ChunksCount int    `json:"chunks_count"`
		}
		if err := decodeJSON(resp, &docs); err != nil {
			return err
		}

		if len(docs) == 0 {
			fmt.Println("No documents uploaded.")
			return nil
		}

		for _, d := range docs {
			fmt.Printf("%s  %-10s  %4d chunks  %s\n",
				colorize(colorCyan, d.ID[:8]),
				d.Status,
				d.ChunksCount,
				d.Filename,
			)
		}
		return nil
	},
}

var documentsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(context.Background(), "/documents/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted document %s", args[0])
		return nil
	},
}

func init() {
	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsDeleteCmd)
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backend status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			printError("config error: %v", err)
			return nil
		}

		serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
		client := &http.Client{Timeout: 2 * time.Second}

		resp, err := client.Get(serverURL + "/health")
		if err != nil {
			printStatus("Server", "stopped")
		} else {
			resp.Body.Close()
			if resp.StatusCode == 200 {
				printStatus("Server", "running on port %d", cfg.Server.Port)
			} else {
				printStatus("Server", "error (HTTP %d)", resp.StatusCode)
			}
		}

		printStatus("Embed model", "%s", cfg.OpenAI.EmbedModel)
		printStatus("Chat model", "%s", cfg.OpenAI.ChatModel)
		printStatus("Top K", "%d", cfg.Retrieval.TopK)
		printStatus("Data dir", "%s", cfg.Storage.DataDir)

		if resp != nil && resp.StatusCode == 200 {
			apiCl, err := newAPIClient()
			if err == nil {
				docsResp, err := apiCl.get(context.Background(), "/documents")
				if err == nil {
					var docs []struct {
						Status string `json:"processing_status"`
					}
					if decodeJSON(docsResp, &docs) == nil {
						completed := 0
						for _, d := range docs {
							if d.Status == "completed" {
								completed++
							}
						}
						printStatus("Documents", "%d total, %d ingested", len(docs), completed)
					}
				}
			}
		}
		return nil
	},
}
