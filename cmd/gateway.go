package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	reuseport "github.com/kavu/go_reuseport"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/nrepl/client"
	"github.com/luma/nrepl/storage"
	"github.com/luma/nrepl/transport"
)

var (
	// The host to listen on
	host string

	// The port to listen for http requests on
	httpPort string
)

func init() {
	flags := GatewayCmd.PersistentFlags()

	flags.StringVar(&httpPort, "http-port", "7362", "The port to listen to HTTP requests on")
	flags.StringVar(&host, "host", "0.0.0.0", "The host to listen on")
}

var GatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Serve an nREPL connection over HTTP",
	Long: `Connect to an nREPL server and expose its sessions over HTTP

Usage
	nrepl gateway --address nrepl://localhost:7888

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		conf, log, err := setup(ctx, cmd)
		if err != nil {
			return err
		}

		c, err := client.Connect(ctx, conf.Address, transport.Options{
			DialTimeout: conf.Timeout,
			Log:         log.Named("client"),
		})
		if err != nil {
			return err
		}

		store := storage.NewInmemoryStore()
		c.Watchable().Watch("transcript", client.Pattern{}, recordTranscript(store, log.Named("storage")))

		router := setupRouter(conf.DebugHTTP, log)
		registerRoutes(router, c, store, conf.Timeout)

		listener, err := listen(net.JoinHostPort(host, httpPort), conf.Reuseport)
		if err != nil {
			return multierr.Append(err, c.Close())
		}

		s := &http.Server{
			Handler: router,
		}

		// Serving in a goroutine so that it won't block the graceful
		// shutdown handling below
		go func() {
			if err := s.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Http server errored", zap.Error(err))
			}
		}()

		log.Info("Listening",
			zap.Any("config", conf),
			zap.String("host", host),
			zap.String("httpPort", httpPort))

		select {
		case <-ctx.Done():
		case <-c.Watchable().Done():
			log.Error("Lost the nREPL connection", zap.Error(c.Watchable().Err()))
		}

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		// The context is used to inform the server it has 5 seconds to finish
		// the request it is currently handling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.SetKeepAlivesEnabled(false)

		err = multierr.Combine(
			s.Shutdown(shutdownCtx),
			c.Shutdown(shutdownCtx),
			store.Close(),
		)
		if err != nil {
			log.Error("Forced to shutdown", zap.Error(err))
		}

		log.Info("Exiting")
		return err
	},
}

func listen(addr string, withReuseport bool) (net.Listener, error) {
	if withReuseport {
		return reuseport.Listen("tcp", addr)
	}

	return net.Listen("tcp", addr)
}

func setupRouter(debugHTTP bool, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Add a ginzap middleware, which:
	//   - Logs all requests, like a combined access and error log.
	//   - RFC3339 with UTC time format.
	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/ping"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	return r
}
