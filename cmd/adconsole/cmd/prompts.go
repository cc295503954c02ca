package cmd

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"adconsole/internal/api"
)

var (
	promptName    string
	promptPurpose string
	promptModel   string
	promptKind    string
	promptText    string
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "List and manage prompts",
	RunE:  runPromptsList,
}

var promptsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one prompt",
	Args:  cobra.ExactArgs(1),
	RunE:  runPromptsShow,
}

var promptsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a prompt",
	RunE:  runPromptsCreate,
}

var promptsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a prompt",
	Args:  cobra.ExactArgs(1),
	RunE:  runPromptsDelete,
}

func init() {
	promptsCreateCmd.Flags().StringVar(&promptName, "name", "", "Prompt name")
	promptsCreateCmd.Flags().StringVar(&promptPurpose, "purpose", "", "What the prompt is for")
	promptsCreateCmd.Flags().StringVar(&promptModel, "model", "", "Model the prompt targets")
	promptsCreateCmd.Flags().StringVar(&promptKind, "kind", "", "Prompt kind")
	promptsCreateCmd.Flags().StringVar(&promptText, "text", "", "Prompt text")
	_ = promptsCreateCmd.MarkFlagRequired("name")
	_ = promptsCreateCmd.MarkFlagRequired("text")

	promptsCmd.AddCommand(promptsShowCmd)
	promptsCmd.AddCommand(promptsCreateCmd)
	promptsCmd.AddCommand(promptsDeleteCmd)
}

func runPromptsList(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	a, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	prompts, err := a.api.ListPrompts(ctx)
	if err != nil {
		return err
	}
	if len(prompts) == 0 {
		color.New(color.FgHiBlack).Println("no prompts")
		return nil
	}
	color.New(color.Bold).Printf("%-8s %-24s %-4s %-12s %s\n", "ID", "NAME", "VER", "MODEL", "PURPOSE")
	for _, p := range prompts {
		fmt.Printf("%-8d %-24s %-4d %-12s %s\n", p.ID, p.Name, p.Version, p.Model, p.Purpose)
	}
	return nil
}

func runPromptsShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("prompt id must be numeric: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()
	a, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	p, err := a.api.GetPrompt(ctx, id)
	if err != nil {
		return err
	}
	color.New(color.Bold).Printf("%s v%d (%s)\n", p.Name, p.Version, p.Model)
	if p.Purpose != "" {
		fmt.Println(p.Purpose)
	}
	fmt.Println()
	fmt.Println(p.Text)
	return nil
}

func runPromptsCreate(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	a, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	created, err := a.api.CreatePrompt(ctx, api.Prompt{
		Name:    promptName,
		Purpose: promptPurpose,
		Model:   promptModel,
		Kind:    promptKind,
		Text:    promptText,
	})
	if err != nil {
		return err
	}
	fmt.Printf("created prompt %d (%s v%d)\n", created.ID, created.Name, created.Version)
	return nil
}

func runPromptsDelete(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("prompt id must be numeric: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()
	a, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := a.api.DeletePrompt(ctx, id); err != nil {
		return err
	}
	fmt.Printf("deleted prompt %d\n", id)
	return nil
}
