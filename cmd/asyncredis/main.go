// Command asyncredis is a command-line client built on the asyncredis library.
//
// Every subcommand shares the connection flags of the root command. Flags can
// also be set through the environment, as ASYNCREDIS_<FLAG> with dashes turned
// into underscores (e.g. ASYNCREDIS_CONNECT_TIMEOUT=2s), or in a .env file.
//
//	asyncredis set greeting hello
//	asyncredis hmget user:1 name email
//	asyncredis invoke EXPIRE session:42 3600
//	asyncredis serve --listen 127.0.0.1:9501 --metrics
//	asyncredis bench --command incr --concurrency 32 --duration 10s
package main

import "os"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
