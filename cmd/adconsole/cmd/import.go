package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"adconsole/internal/api"
	"adconsole/internal/importer"
)

var (
	importClientID   string
	importMaxScrolls int
	importMediaType  string
	importAdAccount  string
	importItemsFile  string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import ad media into the library",
}

var importJobCmd = &cobra.Command{
	Use:   "job <source-url>",
	Short: "Scrape an ad library page server-side and watch the job",
	Args:  cobra.ExactArgs(1),
	RunE:  runImportJob,
}

var importAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Import every media item of a type from the connected account",
	RunE:  runImportAll,
}

var importSelectedCmd = &cobra.Command{
	Use:   "selected",
	Short: "Import a selected set of items from a JSON file",
	RunE:  runImportSelected,
}

func init() {
	importCmd.PersistentFlags().StringVar(&importClientID, "client", "", "Client ID (defaults to CLIENT_ID)")
	importCmd.PersistentFlags().StringVar(&importAdAccount, "ad-account", "", "Ad account to scope the import to")

	importJobCmd.Flags().IntVar(&importMaxScrolls, "max-scrolls", 0, "Page scroll budget for the scraper (0 = server default)")
	importAllCmd.Flags().StringVar(&importMediaType, "type", "image", "Media type to import (image or video)")
	importSelectedCmd.Flags().StringVar(&importItemsFile, "from", "", "JSON file holding the item list")
	_ = importSelectedCmd.MarkFlagRequired("from")

	importCmd.AddCommand(importJobCmd)
	importCmd.AddCommand(importAllCmd)
	importCmd.AddCommand(importSelectedCmd)
}

func clientID(a *app) (string, error) {
	if importClientID != "" {
		return importClientID, nil
	}
	if a.cfg.Server.ClientID != "" {
		return a.cfg.Server.ClientID, nil
	}
	return "", fmt.Errorf("client id is required (--client or CLIENT_ID)")
}

func runImportJob(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	a, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	client, err := clientID(a)
	if err != nil {
		return err
	}

	done := make(chan importer.Completion, 1)
	jobID, err := a.importer.StartJob(ctx, client, args[0], importMaxScrolls, func(c importer.Completion) {
		done <- c
	})
	if err != nil {
		return err
	}
	fmt.Printf("watching import job %s\n", jobID)

	select {
	case c := <-done:
		if c.Status == api.JobFailed {
			return fmt.Errorf("import job failed: %s", c.ErrorMessage)
		}
		fmt.Printf("job %s complete: %d item(s) imported\n", c.JobID, c.Imported)
		persistMedia(ctx, a, a.grid.Items())
		return nil
	case <-ctx.Done():
		a.importer.Stop(jobID)
		fmt.Println("stopped watching; the job keeps running server-side")
		return nil
	}
}

func runImportAll(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	a, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	client, err := clientID(a)
	if err != nil {
		return err
	}

	res, err := a.importer.ImportAll(ctx, client, importMediaType, importAdAccount)
	if err != nil {
		return err
	}
	persistMedia(ctx, a, res.Items)
	return nil
}

func runImportSelected(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(importItemsFile)
	if err != nil {
		return fmt.Errorf("read items file: %w", err)
	}
	var items []api.MediaItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("parse items file: %w", err)
	}
	if len(items) == 0 {
		return fmt.Errorf("items file is empty")
	}

	ctx, cancel := signalContext()
	defer cancel()
	a, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	client, err := clientID(a)
	if err != nil {
		return err
	}

	res, err := a.importer.ImportSelected(ctx, client, items, importAdAccount)
	if err != nil {
		return err
	}
	persistMedia(ctx, a, res.Items)
	return nil
}

// persistMedia mirrors imported items into the local cache when enabled.
func persistMedia(ctx context.Context, a *app, items []api.MediaItem) {
	if a.store == nil || len(items) == 0 {
		return
	}
	if err := a.store.UpsertMediaAll(ctx, items); err != nil {
		log.Warn().Err(err).Msg("media cache write-back failed")
	}
}
