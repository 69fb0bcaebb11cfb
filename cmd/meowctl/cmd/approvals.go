package cmd

import (
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/meow-stack/meowctl/internal/types"
)

// Approvals command flags
var (
	approvalsProject string
	approvalsStatus  string
	approvalsJSON    bool
	approvalsBy      string
)

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Inspect and resolve human-approval gates",
	Long: `approvals surfaces the Approval Orchestrator's pending and
resolved human-in-the-loop gates and lets an operator decide them from
the terminal instead of the web surface.

Examples:
  meowctl approvals list                          # every approval
  meowctl approvals list -p proj-a --status pending
  meowctl approvals decide ap-1 approved --by alex
  meowctl approvals decide ap-1 rejected --by alex
  meowctl approvals cancel ap-1 --by alex`,
}

var approvalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List approvals, optionally filtered by project or status",
	RunE:  runApprovalsList,
}

var approvalsDecideCmd = &cobra.Command{
	Use:   "decide <approval-id> <approved|rejected>",
	Short: "Resolve a pending approval",
	Args:  cobra.ExactArgs(2),
	RunE:  runApprovalsDecide,
}

var approvalsCancelCmd = &cobra.Command{
	Use:   "cancel <approval-id>",
	Short: "Cancel a pending approval",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprovalsCancel,
}

func init() {
	rootCmd.AddCommand(approvalsCmd)
	approvalsCmd.AddCommand(approvalsListCmd, approvalsDecideCmd, approvalsCancelCmd)

	approvalsListCmd.Flags().StringVarP(&approvalsProject, "project", "p", "", "scope to a project")
	approvalsListCmd.Flags().StringVar(&approvalsStatus, "status", "", "filter by status (pending/approved/rejected/expired/cancelled)")
	approvalsListCmd.Flags().BoolVar(&approvalsJSON, "json", false, "output as JSON")

	approvalsDecideCmd.Flags().StringVar(&approvalsBy, "by", "", "who is resolving the approval")
	approvalsCancelCmd.Flags().StringVar(&approvalsBy, "by", "", "who is cancelling the approval")
}

func runApprovalsList(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	q := url.Values{}
	if approvalsProject != "" {
		q.Set("projectId", approvalsProject)
	}
	if approvalsStatus != "" {
		q.Set("status", approvalsStatus)
	}
	path := "/approvals"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var list []*types.Approval
	if err := client.get(path, &list); err != nil {
		return err
	}

	if approvalsJSON {
		return printJSON(list)
	}

	if len(list) == 0 {
		fmt.Println("No approvals found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "APPROVAL\tTHREAD\tSTEP\tRISK\tSTATUS\tREQUESTED\tEXPIRES")
	for _, a := range list {
		expires := "-"
		if a.ExpiresAt != nil {
			expires = a.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ApprovalID, a.ThreadID, a.StepID, a.RiskLevel, a.Status,
			a.RequestedAt.Format(time.RFC3339), expires)
	}
	return w.Flush()
}

func runApprovalsDecide(cmd *cobra.Command, args []string) error {
	decision := args[1]
	if decision != "approved" && decision != "rejected" {
		return fmt.Errorf("decision must be \"approved\" or \"rejected\", got %q", decision)
	}

	client, err := newClient()
	if err != nil {
		return err
	}

	body := map[string]string{"decision": decision, "by": approvalsBy}
	var a types.Approval
	if err := client.post("/approvals/"+url.PathEscape(args[0])+"/decide", body, &a); err != nil {
		return err
	}
	fmt.Printf("Approval %s is now %s.\n", a.ApprovalID, a.Status)
	return nil
}

func runApprovalsCancel(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	body := map[string]string{"by": approvalsBy}
	var a types.Approval
	if err := client.post("/approvals/"+url.PathEscape(args[0])+"/cancel", body, &a); err != nil {
		return err
	}
	fmt.Printf("Approval %s cancelled.\n", a.ApprovalID)
	return nil
}
