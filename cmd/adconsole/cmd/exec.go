package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	execMessage string
	execUnary   bool
	execDetach  time.Duration
)

var execCmd = &cobra.Command{
	Use:   "exec <prompt-id>",
	Short: "Run a prompt and stream the result",
	Args:  cobra.ExactArgs(1),
	RunE:  runExec,
}

func init() {
	execCmd.Flags().StringVarP(&execMessage, "message", "m", "", "User message passed to the prompt")
	execCmd.Flags().BoolVar(&execUnary, "unary", false, "Wait for the full result instead of streaming")
	execCmd.Flags().DurationVar(&execDetach, "detach", 0, "Detach the output surface after this long; the stream keeps running")
}

func runExec(cmd *cobra.Command, args []string) error {
	var promptID int64
	if _, err := fmt.Sscanf(args[0], "%d", &promptID); err != nil {
		return fmt.Errorf("prompt id must be numeric: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if execUnary {
		action, err := a.executor.ExecuteUnary(ctx, promptID, execMessage)
		if err != nil {
			return err
		}
		fmt.Println(action.Output)
		fmt.Printf("action %d, %d tokens, model %s\n", action.ID, action.TokensUsed, action.Model)
		return nil
	}

	prompt, err := a.api.GetPrompt(ctx, promptID)
	if err != nil {
		return err
	}

	id, err := a.executor.Execute(ctx, prompt, execMessage)
	if err != nil {
		return err
	}

	if execDetach > 0 {
		time.AfterFunc(execDetach, func() {
			if c := a.host.lastCard(); c != nil {
				c.Detach()
				fmt.Println("\n(output detached, stream continues)")
			}
		})
	}

	select {
	case snap := <-a.finished:
		if snap.Err != nil {
			return snap.Err
		}
		// give the post-stream history refresh a chance to land
		time.Sleep(a.cfg.Poll.PostStreamRefresh + 100*time.Millisecond)
		return nil
	case <-ctx.Done():
		a.executor.Cancel(id)
		select {
		case <-a.finished:
		case <-time.After(3 * time.Second):
		}
		return fmt.Errorf("execution cancelled")
	}
}
