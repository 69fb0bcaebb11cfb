package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/meow-stack/meowctl/internal/types"
)

// Agents command flags
var (
	agentsProject string
	agentsJSON    bool
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Inspect and manage registered agent processes",
	Long: `agents talks to a running "meowctl serve" instance and surfaces
the Process Registry's view of agent processes: who is registered, what
project and role each belongs to, and whether its process is still
considered alive.

Examples:
  meowctl agents list                     # every registered agent
  meowctl agents list -p proj-a           # agents scoped to one project
  meowctl agents show agent-1             # a single agent's full record
  meowctl agents remove agent-1           # drop an agent from the registry`,
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered agents",
	RunE:  runAgentsList,
}

var agentsShowCmd = &cobra.Command{
	Use:   "show <agent-id>",
	Short: "Show one agent's full process record",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentsShow,
}

var agentsRemoveCmd = &cobra.Command{
	Use:   "remove <agent-id>",
	Short: "Remove an agent from the registry",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentsRemove,
}

func init() {
	rootCmd.AddCommand(agentsCmd)
	agentsCmd.AddCommand(agentsListCmd, agentsShowCmd, agentsRemoveCmd)

	agentsCmd.PersistentFlags().StringVarP(&agentsProject, "project", "p", "", "scope to a project")
	agentsCmd.PersistentFlags().BoolVar(&agentsJSON, "json", false, "output as JSON")
}

func runAgentsList(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	path := "/agents"
	if agentsProject != "" {
		path += "?projectId=" + url.QueryEscape(agentsProject)
	}

	var agents []*types.AgentProcess
	if err := client.get(path, &agents); err != nil {
		return err
	}

	if agentsJSON {
		return printJSON(agents)
	}

	if len(agents) == 0 {
		fmt.Println("No agents registered.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tPROJECT\tROLE\tSTATUS\tPID\tLAST ACTIVITY")
	for _, a := range agents {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			a.AgentID, a.ProjectID, a.Role, a.Status, a.PID,
			a.LastActivity.Format(time.RFC3339))
	}
	return w.Flush()
}

func runAgentsShow(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	var agent types.AgentProcess
	if err := client.get("/agents/"+url.PathEscape(args[0]), &agent); err != nil {
		return err
	}
	return printJSON(agent)
}

func runAgentsRemove(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	if err := client.delete("/agents/"+url.PathEscape(args[0]), nil); err != nil {
		return err
	}
	fmt.Printf("Agent %s removed.\n", args[0])
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
