package main

import (
	"fmt"
	"time"

	"github.com/pior/asyncredis"
	"github.com/pior/asyncredis/resp"
	"github.com/spf13/cobra"
)

type result struct {
	reply resp.Reply
	ok    bool
}

// await issues one command and waits for its callback.
func await(timeout time.Duration, issue func(cb asyncredis.Callback)) (resp.Reply, bool, error) {
	done := make(chan result, 1)
	issue(func(reply resp.Reply, ok bool) {
		done <- result{reply, ok}
	})

	select {
	case r := <-done:
		return r.reply, r.ok, nil
	case <-time.After(timeout):
		return resp.Reply{}, false, fmt.Errorf("no reply after %s", timeout)
	}
}

// run issues one command and prints its reply, or turns a failure into an error.
func (c *cli) run(cmd *cobra.Command, issue func(cb asyncredis.Callback)) error {
	reply, ok, err := await(c.timeout(), issue)
	if err != nil {
		return err
	}
	if !ok {
		if reply.Err != nil {
			return fmt.Errorf("command failed: %w", reply.Err)
		}
		return fmt.Errorf("command failed: %s", reply.Str)
	}
	fmt.Fprintln(cmd.OutOrStdout(), reply.String())
	return nil
}

func (c *cli) invokeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "invoke NAME [ARGS...]",
		Short: "Send any command",
		Args:  cobra.MinimumNArgs(1),
		RunE: c.withClient(func(cmd *cobra.Command, client *asyncredis.Client, args []string) error {
			return c.run(cmd, func(cb asyncredis.Callback) {
				client.Invoke(args[0], resp.Args(args[1:]...), cb)
			})
		}),
	}
}

func (c *cli) getCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Get the value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: c.withClient(func(cmd *cobra.Command, client *asyncredis.Client, args []string) error {
			return c.run(cmd, func(cb asyncredis.Callback) {
				client.Get(args[0], cb)
			})
		}),
	}
}

func (c *cli) setCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set the value of a key",
		Args:  cobra.ExactArgs(2),
		RunE: c.withClient(func(cmd *cobra.Command, client *asyncredis.Client, args []string) error {
			return c.run(cmd, func(cb asyncredis.Callback) {
				client.Set(args[0], []byte(args[1]), cb)
			})
		}),
	}
}

func (c *cli) delCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "del KEY [KEY...]",
		Short: "Delete keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: c.withClient(func(cmd *cobra.Command, client *asyncredis.Client, args []string) error {
			return c.run(cmd, func(cb asyncredis.Callback) {
				client.Del(args, cb)
			})
		}),
	}
}

func (c *cli) incrCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "incr KEY",
		Short: "Increment the integer value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: c.withClient(func(cmd *cobra.Command, client *asyncredis.Client, args []string) error {
			return c.run(cmd, func(cb asyncredis.Callback) {
				client.Incr(args[0], cb)
			})
		}),
	}
}

func (c *cli) mgetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mget KEY [KEY...]",
		Short: "Get the values of keys, by key",
		Args:  cobra.MinimumNArgs(1),
		RunE: c.withClient(func(cmd *cobra.Command, client *asyncredis.Client, args []string) error {
			return c.run(cmd, func(cb asyncredis.Callback) {
				client.MGet(args, cb)
			})
		}),
	}
}

func (c *cli) hmgetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hmget KEY FIELD [FIELD...]",
		Short: "Get hash fields, by field",
		Args:  cobra.MinimumNArgs(2),
		RunE: c.withClient(func(cmd *cobra.Command, client *asyncredis.Client, args []string) error {
			return c.run(cmd, func(cb asyncredis.Callback) {
				client.HMGet(args[0], args[1:], cb)
			})
		}),
	}
}

func (c *cli) hmsetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hmset KEY FIELD VALUE [FIELD VALUE...]",
		Short: "Set hash fields",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 3 || len(args)%2 == 0 {
				return fmt.Errorf("requires a key followed by field/value pairs")
			}
			return nil
		},
		RunE: c.withClient(func(cmd *cobra.Command, client *asyncredis.Client, args []string) error {
			values := make(map[string][]byte, len(args)/2)
			for i := 1; i < len(args); i += 2 {
				values[args[i]] = []byte(args[i+1])
			}
			return c.run(cmd, func(cb asyncredis.Callback) {
				client.HMSet(args[0], values, cb)
			})
		}),
	}
}

func (c *cli) statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Send PING and print client and pool statistics",
		Args:  cobra.NoArgs,
		RunE: c.withClient(func(cmd *cobra.Command, client *asyncredis.Client, _ []string) error {
			out := cmd.OutOrStdout()

			reply, ok, err := await(c.timeout(), func(cb asyncredis.Callback) {
				client.Invoke("PING", nil, cb)
			})
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(out, "PING failed: %s\n", reply.Str)
			}

			fmt.Fprintln(out, client.StatsLine())
			s := client.Stats()
			fmt.Fprintf(out, "Commands: %d  Replies: %d  Error replies: %d  Timeouts: %d  Lost: %d  Errors: %d\n",
				s.Commands, s.Replies, s.ErrorReplies, s.Timeouts, s.LostReplies, s.Errors)

			for _, ps := range client.AllPoolStats() {
				fmt.Fprintf(out, "%s: total=%d idle=%d active=%d created=%d destroyed=%d acquires=%d acquire_errors=%d breaker=%s\n",
					ps.Addr,
					ps.PoolStats.TotalConns, ps.PoolStats.IdleConns, ps.PoolStats.ActiveConns,
					ps.PoolStats.CreatedConns, ps.PoolStats.DestroyedConns,
					ps.PoolStats.AcquireCount, ps.PoolStats.AcquireErrors,
					ps.CircuitBreakerState)
			}
			return nil
		}),
	}
}
