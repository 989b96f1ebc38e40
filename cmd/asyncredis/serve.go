package main

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pior/asyncredis"
	"github.com/pior/asyncredis/promexporter"
	"github.com/pior/asyncredis/resp"
	"github.com/spf13/cobra"
)

func (c *cli) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the value of a key over HTTP",
		Long: `Serve answers every request with the value of --key, fetched with GET.
A request with a "status" query parameter is answered with the client status line.`,
		Args: cobra.NoArgs,
		RunE: c.withClient(func(cmd *cobra.Command, client *asyncredis.Client, _ []string) error {
			mux := http.NewServeMux()
			mux.Handle("/", &demoServer{
				client:  client,
				key:     c.v.GetString("key"),
				timeout: c.timeout(),
			})
			if c.v.GetBool("metrics") {
				promexporter.NewExporter(client).Mount(mux)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return listenAndServe(ctx, c.v.GetString("listen"), mux)
		}),
	}

	cmd.Flags().String("listen", "127.0.0.1:9501", "Address to listen on")
	cmd.Flags().String("key", "key1", "Key served on /")
	cmd.Flags().Bool("metrics", false, "Expose Prometheus metrics on /metrics")
	return cmd
}

// demoServer answers with the value of one key, or with the client status.
type demoServer struct {
	client  *asyncredis.Client
	key     string
	timeout time.Duration
}

func (s *demoServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Has("status") {
		fmt.Fprint(w, s.client.StatsLine())
		return
	}

	done := make(chan result, 1)
	s.client.Get(s.key, func(reply resp.Reply, ok bool) {
		done <- result{reply, ok}
	})

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	select {
	case res := <-done:
		if !res.ok {
			http.Error(w, res.reply.Str, http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<h1>Hello. value=%s</h1>", html.EscapeString(res.reply.Str))
	case <-ctx.Done():
		http.Error(w, "no reply", http.StatusGatewayTimeout)
	}
}

func listenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
