package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/meow-stack/meowctl/internal/types"
)

// Workflows command flags
var (
	workflowsFile    string
	workflowsThread  string
	workflowsProject string
)

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "Run and inspect workflow threads",
	Long: `workflows drives the Workflow Orchestrator over a running
"meowctl serve" instance: submit a workflow definition, inspect a
thread's current state or full checkpoint history, and resume an
interrupted thread from its latest (or an earlier) checkpoint.

Examples:
  meowctl workflows run -f workflow.json             # submit and run
  meowctl workflows state th-1                       # latest state
  meowctl workflows history th-1                     # every checkpoint
  meowctl workflows resume th-1                      # resume from latest
  meowctl workflows resume th-1 --checkpoint 3       # resume from id 3`,
}

var workflowsRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Submit a workflow definition and run it to completion",
	RunE:  runWorkflowsRun,
}

var workflowsStateCmd = &cobra.Command{
	Use:   "state <thread-id>",
	Short: "Show a thread's latest state",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowsState,
}

var workflowsHistoryCmd = &cobra.Command{
	Use:   "history <thread-id>",
	Short: "Show a thread's full checkpoint history",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowsHistory,
}

var workflowsResumeCheckpoint int

var workflowsResumeCmd = &cobra.Command{
	Use:   "resume <thread-id>",
	Short: "Resume a thread from its latest (or a specific) checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowsResume,
}

func init() {
	rootCmd.AddCommand(workflowsCmd)
	workflowsCmd.AddCommand(workflowsRunCmd, workflowsStateCmd, workflowsHistoryCmd, workflowsResumeCmd)

	workflowsRunCmd.Flags().StringVarP(&workflowsFile, "file", "f", "", "workflow definition JSON file (required)")
	workflowsRunCmd.Flags().StringVar(&workflowsThread, "thread", "", "thread id (generated when empty)")
	workflowsRunCmd.Flags().StringVarP(&workflowsProject, "project", "p", "", "project to run within")
	_ = workflowsRunCmd.MarkFlagRequired("file")

	workflowsResumeCmd.Flags().IntVar(&workflowsResumeCheckpoint, "checkpoint", 0, "checkpoint id to resume from (latest when omitted)")
	workflowsResumeCmd.Flags().StringVarP(&workflowsProject, "project", "p", "", "project to resume within")
}

func runWorkflowsRun(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(workflowsFile)
	if err != nil {
		return fmt.Errorf("reading workflow file: %w", err)
	}

	var workflow json.RawMessage
	if err := json.Unmarshal(data, &workflow); err != nil {
		return fmt.Errorf("parsing workflow file: %w", err)
	}

	client, err := newClient()
	if err != nil {
		return err
	}

	body := map[string]any{"workflow": workflow}
	if workflowsThread != "" {
		body["threadId"] = workflowsThread
	}
	if workflowsProject != "" {
		body["projectId"] = workflowsProject
	}

	var run types.Run
	if err := client.post("/invoke", body, &run); err != nil {
		return err
	}

	fmt.Printf("Thread %s finished with status %s (%d step(s)).\n", run.ThreadID, run.Status, len(run.StepResults))
	if run.FailureReason != "" {
		fmt.Printf("  failure: %s\n", run.FailureReason)
	}
	return printJSON(run.StepResults)
}

func runWorkflowsState(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	var run types.Run
	if err := client.post("/workflows/state/"+url.PathEscape(args[0]), nil, &run); err != nil {
		return err
	}
	return printJSON(run)
}

func runWorkflowsHistory(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	var history []*types.Checkpoint
	if err := client.post("/workflows/history/"+url.PathEscape(args[0]), nil, &history); err != nil {
		return err
	}

	for _, cp := range history {
		fmt.Printf("checkpoint %d  %s  status=%s  results=%d\n",
			cp.CheckpointID, cp.CreatedAt.Format("2006-01-02 15:04:05"),
			cp.Run.Status, len(cp.Run.StepResults))
	}
	return nil
}

func runWorkflowsResume(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	path := "/workflows/resume/" + url.PathEscape(args[0])
	if workflowsResumeCheckpoint > 0 {
		path += "/" + strconv.Itoa(workflowsResumeCheckpoint)
	}

	var body map[string]any
	if workflowsProject != "" {
		body = map[string]any{"projectId": workflowsProject}
	}

	var run types.Run
	if err := client.post(path, body, &run); err != nil {
		return err
	}
	fmt.Printf("Thread %s resumed, now %s.\n", run.ThreadID, run.Status)
	return printJSON(run.StepResults)
}
