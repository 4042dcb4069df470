package provider

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"WalletFleet/internal/config"
	"WalletFleet/internal/ledger"
	"WalletFleet/internal/ledger/solanarpc"
)

// Registry manages a set of ledger clients keyed by cluster name.
type Registry struct {
	defaultCluster string
	clients        map[string]*solanarpc.Client
}

// NewRegistry loads cluster definitions and instantiates RPC clients. A bare
// rpc_url in the ledger config registers a cluster named "default".
func NewRegistry(cfg config.LedgerConfig) (*Registry, error) {
	defs, err := ledger.LoadClusterDefinitions(cfg.ClusterConfig)
	if err != nil {
		return nil, err
	}

	clients := make(map[string]*solanarpc.Client)
	for name, cluster := range defs.Clusters {
		commitment := cluster.Commitment
		if commitment == "" {
			commitment = cfg.Commitment
		}
		client, err := solanarpc.NewClient(solanarpc.Config{
			Name:           name,
			RPCURL:         cluster.RPCURL,
			Commitment:     commitment,
			PollInterval:   cfg.PollInterval(),
			ConfirmTimeout: cfg.ConfirmTimeout(),
			SkipPreflight:  cfg.SkipPreflight,
		})
		if err != nil {
			return nil, fmt.Errorf("初始化集群 %s 失败: %w", name, err)
		}
		clients[name] = client
	}

	defaultCluster := cfg.DefaultCluster
	if len(clients) == 0 && strings.TrimSpace(cfg.RPCURL) != "" {
		client, err := solanarpc.NewClient(solanarpc.Config{
			Name:           "default",
			RPCURL:         cfg.RPCURL,
			Commitment:     cfg.Commitment,
			PollInterval:   cfg.PollInterval(),
			ConfirmTimeout: cfg.ConfirmTimeout(),
			SkipPreflight:  cfg.SkipPreflight,
		})
		if err != nil {
			return nil, err
		}
		clients["default"] = client
		if defaultCluster == "" {
			defaultCluster = "default"
		}
	}

	if len(clients) == 0 {
		return nil, errors.New("未配置任何集群的 RPC 端点")
	}

	if defaultCluster == "" {
		names := make([]string, 0, len(clients))
		for name := range clients {
			names = append(names, name)
		}
		sort.Strings(names)
		defaultCluster = names[0]
	}
	if _, ok := clients[defaultCluster]; !ok {
		return nil, fmt.Errorf("默认集群 %s 未在配置中找到", defaultCluster)
	}

	return &Registry{defaultCluster: defaultCluster, clients: clients}, nil
}

// DefaultClient returns the client configured as default cluster.
func (r *Registry) DefaultClient() (ledger.Client, error) {
	if r == nil {
		return nil, errors.New("未初始化的集群注册表")
	}
	client, ok := r.clients[r.defaultCluster]
	if !ok {
		return nil, fmt.Errorf("默认集群 %s 未在注册表中", r.defaultCluster)
	}
	return client, nil
}

// DefaultCluster returns the name of the default cluster.
func (r *Registry) DefaultCluster() string {
	if r == nil {
		return ""
	}
	return r.defaultCluster
}

// Client returns the client for the named cluster.
func (r *Registry) Client(name string) (ledger.Client, bool) {
	if r == nil {
		return nil, false
	}
	client, ok := r.clients[name]
	if !ok {
		return nil, false
	}
	return client, true
}

// Close releases all clients managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for name, client := range r.clients {
		if client != nil {
			_ = client.Close()
		}
		delete(r.clients, name)
	}
}

// Clusters returns the registered cluster names.
func (r *Registry) Clusters() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
