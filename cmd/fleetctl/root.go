package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"WalletFleet/internal/config"
	"WalletFleet/sdk/go/walletfleet"
)

const (
	defaultServer  = "http://127.0.0.1:8080"
	defaultTimeout = 5 * time.Minute
)

// cli 保存全局参数，命令执行时从 viper 读取，允许 WALLETFLEET_SERVER 等环境变量覆盖。
type cli struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:           "fleetctl",
		Short:         "fleetctl operates a WalletFleet daemon",
		Long:          `fleetctl creates, funds, sweeps and trades across the wallets managed by fleetd.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	flags := root.PersistentFlags()
	flags.String("server", defaultServer, "fleetd base URL")
	flags.String("token", "", "bearer token sent to fleetd")
	flags.Duration("timeout", defaultTimeout, "request timeout")
	flags.String("config", config.DefaultPath(), "fleetd config file, used by local commands")
	flags.BoolP("yes", "y", false, "skip confirmation prompts")
	for _, name := range []string{"server", "token", "timeout", "config", "yes"} {
		_ = c.v.BindPFlag(name, flags.Lookup(name))
	}
	c.v.SetEnvPrefix(config.EnvPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	root.AddCommand(
		newWalletsCmd(c),
		newTradeCmd(c),
		newJobsCmd(c),
		newTokenCmd(c),
	)
	return root
}

func (c *cli) client() (*walletfleet.Client, error) {
	server := c.v.GetString("server")
	if server == "" {
		return nil, fmt.Errorf("server address is empty")
	}
	client, err := walletfleet.NewClient(server, nil)
	if err != nil {
		return nil, err
	}
	client.SetAccessToken(c.v.GetString("token"))
	return client, nil
}

// confirm 在资金操作前询问用户。
func (c *cli) confirm(message string) (bool, error) {
	if c.v.GetBool("yes") {
		return true, nil
	}
	confirmed := false
	err := huh.NewConfirm().
		Title(message).
		Affirmative("Yes").
		Negative("No").
		Value(&confirmed).
		Run()
	return confirmed, err
}

func (c *cli) timeout() time.Duration {
	if d := c.v.GetDuration("timeout"); d > 0 {
		return d
	}
	return defaultTimeout
}
