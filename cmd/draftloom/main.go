// Command draftloom runs a full agent workflow over a story brief from
// the command line and prints the run report as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/draftloom/draftloom"
	"github.com/draftloom/draftloom/internal/logging"
	"github.com/draftloom/draftloom/pkg/schema"
)

func main() {
	var (
		brief          = flag.String("brief", "", "story brief to develop (required)")
		manuscriptPath = flag.String("manuscript", "", "path to an existing manuscript to include as context")
		dbPath         = flag.String("db", "file:draftloom.db", "libSQL database path")
		agentList      = flag.String("agents", "", "comma-separated agent types (default: all seven)")
		showDiagram    = flag.Bool("diagram", false, "print the workflow graph as Mermaid after the run")
		verbose        = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *brief == "" {
		fmt.Fprintln(os.Stderr, "draftloom: -brief is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*brief, *manuscriptPath, *dbPath, *agentList, *showDiagram, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "draftloom: %v\n", err)
		os.Exit(1)
	}
}

func run(brief, manuscriptPath, dbPath, agentList string, showDiagram, verbose bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := logging.NewCorrelationHandler(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	logger := slog.New(handler)

	var manuscript string
	if manuscriptPath != "" {
		data, err := os.ReadFile(manuscriptPath)
		if err != nil {
			return fmt.Errorf("read manuscript: %w", err)
		}
		manuscript = string(data)
	}

	selected, err := parseAgents(agentList)
	if err != nil {
		return err
	}

	eng, err := draftloom.New(ctx,
		draftloom.WithStorePath(dbPath),
		draftloom.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer eng.Close()

	eng.OnNodeStatus(func(ev schema.NodeStatusEvent) {
		logger.Info("node status",
			"workflow_id", ev.WorkflowID,
			"node_id", ev.NodeID,
			"agent_type", ev.AgentType,
			"status", ev.Status)
	})

	report, err := eng.ExecuteFullWorkflow(ctx, brief, manuscript, selected)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if showDiagram {
		mermaid, err := eng.WorkflowDiagram(ctx, report.WorkflowID)
		if err != nil {
			return err
		}
		fmt.Println(mermaid)
	}

	if !report.Success {
		return fmt.Errorf("%d of %d nodes failed", len(report.Errors), report.Progress.TotalNodes)
	}
	return nil
}

func parseAgents(list string) ([]schema.AgentType, error) {
	if list == "" {
		return nil, nil
	}
	var selected []schema.AgentType
	for _, part := range strings.Split(list, ",") {
		at := schema.AgentType(strings.TrimSpace(part))
		if !schema.IsKnownAgentType(at) {
			return nil, fmt.Errorf("unknown agent type %q (known: %s)", at, knownAgentList())
		}
		selected = append(selected, at)
	}
	return selected, nil
}

func knownAgentList() string {
	names := make([]string, 0, len(schema.KnownAgentTypes))
	for _, at := range schema.KnownAgentTypes {
		names = append(names, string(at))
	}
	return strings.Join(names, ", ")
}
