package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/Dicklesworthstone/botmaster/internal/agent"
	"github.com/Dicklesworthstone/botmaster/internal/client"
	"github.com/Dicklesworthstone/botmaster/internal/config"
	"github.com/Dicklesworthstone/botmaster/internal/output"
)

func newFormatter() *output.Formatter {
	return output.New(os.Stdout, jsonOutput)
}

func newClient() *client.Client {
	return client.New(client.WithTimeout(cfg.RequestTimeout()))
}

// resolveAgent finds an agent by name or HOST:PORT.
func resolveAgent(ref string) (agent.Agent, error) {
	agents, err := cfg.ToAgents()
	if err != nil {
		return agent.Agent{}, err
	}

	if id, err := agent.ParseAgentID(ref); err == nil {
		for _, a := range agents {
			if a.ID == id {
				return a, nil
			}
		}
		return agent.Agent{}, fmt.Errorf("agent %s is not registered (use 'botmaster add')", id)
	}

	var match agent.Agent
	found := 0
	for _, a := range agents {
		if strings.EqualFold(a.Name, ref) {
			match = a
			found++
		}
	}
	switch found {
	case 0:
		return agent.Agent{}, fmt.Errorf("no agent named %q", ref)
	case 1:
		return match, nil
	default:
		return agent.Agent{}, fmt.Errorf("%d agents named %q, use HOST:PORT", found, ref)
	}
}

// targetAgents resolves the positional arg or --all into a non-empty list.
func targetAgents(args []string, all bool) ([]agent.Agent, error) {
	if all {
		agents, err := cfg.ToAgents()
		if err != nil {
			return nil, err
		}
		enabled := agents[:0]
		for _, a := range agents {
			if a.Enabled {
				enabled = append(enabled, a)
			}
		}
		if len(enabled) == 0 {
			return nil, fmt.Errorf("no enabled agents registered")
		}
		return enabled, nil
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("specify an agent (name or HOST:PORT) or --all")
	}
	a, err := resolveAgent(args[0])
	if err != nil {
		return nil, err
	}
	return []agent.Agent{a}, nil
}

// updateAgentConfig mutates one agent entry and saves the file.
func updateAgentConfig(id agent.AgentID, fn func(*agent.Agent)) error {
	agents, err := cfg.ToAgents()
	if err != nil {
		return err
	}
	found := false
	for i := range agents {
		if agents[i].ID == id {
			fn(&agents[i])
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("agent %s is not registered", id)
	}
	cfg.SetAgents(agents)
	return config.Save(cfgFile, cfg)
}

// orderRef builds the work-order reference from flags and config.
func orderRef(orderPath, orderJSON string) (client.OrderRef, error) {
	if orderPath != "" && orderJSON != "" {
		return client.OrderRef{}, fmt.Errorf("--order and --order-json are mutually exclusive")
	}
	if orderJSON != "" {
		return client.OrderRef{Inline: orderJSON}, nil
	}
	if orderPath == "" {
		orderPath = cfg.DefaultOrderPath
	}
	if orderPath == "" {
		return client.OrderRef{}, fmt.Errorf("no work order: pass --order, --order-json, or set default_order_path")
	}
	return client.OrderRef{Path: orderPath}, nil
}
