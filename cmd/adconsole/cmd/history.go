package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"adconsole/internal/history"
	"adconsole/internal/state"
)

var (
	historyPrompts  []string
	historyVersions []string
	historyModel    string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the action history",
	RunE:  runHistory,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <action-id>",
	Short: "Delete an action",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryDelete,
}

var historyCopyCmd = &cobra.Command{
	Use:   "copy <action-id>",
	Short: "Print an action's output for piping to the clipboard",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryCopy,
}

func init() {
	historyCmd.Flags().StringSliceVar(&historyPrompts, "prompt", nil, "Only show actions of these prompts")
	historyCmd.Flags().StringSliceVar(&historyVersions, "version", nil, "Only show name:version pairs, e.g. summary:2")
	historyCmd.Flags().StringVar(&historyModel, "model", "", "Only show actions of this model")

	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historyCopyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	a, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	scope, err := buildFilterScope()
	if err != nil {
		return err
	}

	// install the filter before the first render so the table prints once
	a.state.Set(state.KeyFilter, scope)

	if err := a.viewer.SeedFromCache(ctx); err != nil {
		return err
	}
	return a.viewer.Refresh(ctx, true, "history command")
}

func buildFilterScope() (history.FilterScope, error) {
	var scope history.FilterScope
	if len(historyPrompts) > 0 {
		scope.Names = make(map[string]struct{}, len(historyPrompts))
		for _, name := range historyPrompts {
			scope.Names[name] = struct{}{}
		}
	}
	if len(historyVersions) > 0 {
		scope.Versions = make(map[history.NameVersion]struct{}, len(historyVersions))
		for _, pair := range historyVersions {
			name, verStr, ok := strings.Cut(pair, ":")
			if !ok {
				return scope, fmt.Errorf("version filter %q must be name:version", pair)
			}
			ver, err := strconv.Atoi(verStr)
			if err != nil {
				return scope, fmt.Errorf("version filter %q must be name:version", pair)
			}
			scope.Versions[history.NameVersion{Name: name, Version: ver}] = struct{}{}
		}
	}
	scope.Model = historyModel
	return scope, nil
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("action id must be numeric: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()
	a, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := a.viewer.Refresh(ctx, false, "history delete"); err != nil {
		return err
	}
	if err := a.viewer.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Printf("deleted action %d\n", id)
	return nil
}

func runHistoryCopy(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("action id must be numeric: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()
	a, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := a.viewer.Refresh(ctx, false, "history copy"); err != nil {
		return err
	}
	text, err := a.viewer.CopyText(id)
	if err != nil {
		return err
	}
	fmt.Print(text)
	return nil
}
