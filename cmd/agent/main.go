// parasite-agent is the command line front end of one agent. Every
// invocation registers with the coordinator first, then runs the requested
// subcommand:
//
//	parasite-agent register
//	parasite-agent infect --target agent_b --suggestion "..." --reasoning "..."
//	parasite-agent respond --infection inf_1 --decision accepted --detail note=ok
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/parasite-protocol/agent/internal/agent"
	"github.com/parasite-protocol/agent/internal/config"
	"github.com/parasite-protocol/agent/internal/domain"
	"github.com/parasite-protocol/agent/internal/parasite"
)

// errOperationFailed makes the process exit non-zero after the failure has
// already been logged.
var errOperationFailed = errors.New("operation failed")

func main() {
	if err := run(os.Args[1:]); err != nil {
		if !errors.Is(err, errOperationFailed) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		printUsage()
		return nil
	}
	if args[0] == "--version" {
		fmt.Printf("parasite-agent %s (%s)\n", config.Version, config.BuildTime)
		return nil
	}

	command, rest := args[0], args[1:]

	var (
		configPath string
		targets    []string
		suggestion string
		reasoning  string
		infection  string
		decision   string
		details    []string
	)

	flagSet := pflag.NewFlagSet("parasite-agent "+command, pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "YAML config file (default: $PARASITE_CONFIG)")

	switch command {
	case "register":
	case "infect":
		flagSet.StringSliceVar(&targets, "target", nil, "target agent id (repeatable or comma separated)")
		flagSet.StringVar(&suggestion, "suggestion", "", "proposed change")
		flagSet.StringVar(&reasoning, "reasoning", "", "justification for the change")
	case "respond":
		flagSet.StringVar(&infection, "infection", "", "infection id to decide on")
		flagSet.StringVar(&decision, "decision", "", "decision (accepted, rejected, mutated, ...)")
		flagSet.StringArrayVar(&details, "detail", nil, "extra key=value field sent with the decision (repeatable)")
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}

	if err := flagSet.Parse(rest); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	switch command {
	case "infect":
		if len(targets) == 0 {
			return errors.New("infect: at least one --target is required")
		}
	case "respond":
		if infection == "" || decision == "" {
			return errors.New("respond: --infection and --decision are required")
		}
	}

	detailMap, err := parseDetails(details)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	logger, err := config.NewLogger(cfg, "agent")
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := agent.New(cfg, logger)
	if err != nil {
		return err
	}

	reg := a.Bootstrap(ctx)

	var results []parasite.Result
	switch command {
	case "register":
		results = []parasite.Result{reg}
	case "infect":
		results = a.Campaign(ctx, targets, suggestion, reasoning)
		if len(results) == 0 && ctx.Err() == nil {
			return fmt.Errorf("infect: no eligible targets in %v (blank, duplicate or self)", targets)
		}
	case "respond":
		results = []parasite.Result{a.Decide(ctx, infection, domain.Decision(decision), detailMap)}
	}

	if err := printResults(results); err != nil {
		return err
	}

	if _, failed := agent.Summary(results); failed > 0 || len(results) == 0 {
		return errOperationFailed
	}
	return nil
}

// parseDetails turns key=value pairs into a map. Values that parse as JSON
// keep their JSON type; anything else is sent as a string.
func parseDetails(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --detail %q: want key=value", p)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			out[key] = decoded
		} else {
			out[key] = value
		}
	}
	return out, nil
}

func printResults(results []parasite.Result) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, r := range results {
		out := map[string]any{
			"op":     r.Op,
			"ok":     r.OK(),
			"status": r.StatusCode,
		}
		if r.Payload != nil {
			out["response"] = r.Payload
		}
		if r.Err != nil {
			out["error"] = r.Err.Error()
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	return nil
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Usage: parasite-agent <command> [flags]

Commands:
  register   register with the coordinator and print the response
  infect     send a proposal to one or more target agents
  respond    report a decision on a received proposal

Configuration comes from --config / $PARASITE_CONFIG and PARASITE_* variables.
PARASITE_API_URL is required.
`)
}
