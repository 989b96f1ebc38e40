package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pior/asyncredis"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "asyncredis"

// cli holds the configuration shared by the subcommands.
type cli struct {
	v *viper.Viper
}

func newRootCommand() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "asyncredis",
		Short: "Asynchronous Redis client",
		Long: `asyncredis sends commands to Redis servers over pooled connections.

Flags can be set in the environment as ASYNCREDIS_<FLAG> (e.g. ASYNCREDIS_SERVERS=10.0.0.1:6379)
or in .env / .env.local files.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	flags := root.PersistentFlags()
	flags.String("servers", "localhost:6379", "Comma-separated list of server addresses")
	flags.Duration("connect-timeout", asyncredis.DefaultConnectTimeout, "Timeout of a connection attempt")
	flags.Duration("timeout", 5*time.Second, "How long to wait for a reply")
	flags.Duration("max-conn-idle-time", 0, "Close connections idle for longer than this (0 keeps them)")
	flags.String("pool", "idle", "Connection pool (idle, puddle)")
	flags.Int32("max-size", 16, "Maximum connections per server (puddle pool only)")
	flags.Bool("circuit-breaker", false, "Guard each server with a circuit breaker")
	flags.String("log-level", "warn", "Log level (debug, info, warn, error)")
	flags.Bool("debug", false, "Trace every chunk received")

	root.AddCommand(
		c.invokeCommand(),
		c.getCommand(),
		c.setCommand(),
		c.delCommand(),
		c.incrCommand(),
		c.mgetCommand(),
		c.hmgetCommand(),
		c.hmsetCommand(),
		c.statsCommand(),
		c.serveCommand(),
		c.benchCommand(),
	)
	return root
}

// setup loads the environment, binds the flags and applies the log level.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	c.v.SetEnvPrefix(envPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	if err := c.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	level, err := asyncredis.ParseLogLevel(c.v.GetString("log-level"))
	if err != nil {
		return err
	}
	asyncredis.SetLogLevel(level)
	return nil
}

// clientConfig builds the client configuration from flags and environment.
func (c *cli) clientConfig() (asyncredis.Config, error) {
	var servers []string
	for _, addr := range strings.Split(c.v.GetString("servers"), ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			servers = append(servers, addr)
		}
	}
	if len(servers) == 0 {
		return asyncredis.Config{}, fmt.Errorf("no servers configured")
	}

	config := asyncredis.Config{
		Servers:         asyncredis.NewStaticServers(servers...),
		ConnectTimeout:  c.v.GetDuration("connect-timeout"),
		MaxConnIdleTime: c.v.GetDuration("max-conn-idle-time"),
		MaxSize:         c.v.GetInt32("max-size"),
		Debug:           c.v.GetBool("debug"),
	}

	switch pool := c.v.GetString("pool"); pool {
	case "idle":
	case "puddle":
		config.Pool = asyncredis.NewPuddlePool
	default:
		return asyncredis.Config{}, fmt.Errorf("invalid pool %q: must be one of idle, puddle", pool)
	}

	if c.v.GetBool("circuit-breaker") {
		config.NewCircuitBreaker = asyncredis.NewCircuitBreakerConfig(3, time.Minute, 10*time.Second)
	}
	return config, nil
}

// withClient runs fn with a client created from the configuration and closed afterwards.
func (c *cli) withClient(fn func(cmd *cobra.Command, client *asyncredis.Client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		config, err := c.clientConfig()
		if err != nil {
			return err
		}
		client, err := asyncredis.NewClient(config)
		if err != nil {
			return err
		}
		defer client.Close()
		return fn(cmd, client, args)
	}
}

func (c *cli) timeout() time.Duration {
	return c.v.GetDuration("timeout")
}
