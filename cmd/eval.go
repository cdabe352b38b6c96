package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/nrepl/bencode"
	"github.com/luma/nrepl/client"
	"github.com/luma/nrepl/internal/env"
	"github.com/luma/nrepl/storage"
	"github.com/luma/nrepl/transport"
)

var (
	// Evaluate in this existing session instead of cloning a new one
	session string

	// Write the JSON transcript of every session to this file
	transcriptPath string
)

var ErrEvalFailed = errors.New("evaluation failed")

func init() {
	flags := EvalCmd.Flags()

	flags.StringVarP(&session, "session", "s", "", "Evaluate in an existing session")
	flags.StringVar(&transcriptPath, "transcript", "", "Write a JSON transcript of the exchange to this file")
}

var EvalCmd = &cobra.Command{
	Use:   "eval [code...]",
	Short: "Evaluate code on an nREPL server",
	Long: `Evaluate each argument in turn in one session, printing output and values.

Usage
	nrepl eval '(def x 1)' '(+ x 2)'

`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt)
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

		var store *storage.InmemoryStore
		if transcriptPath != "" {
			store = storage.NewInmemoryStore()
			c.Watchable().Watch("transcript", client.Pattern{}, recordTranscript(store, log))
		}

		defer func() {
			err = multierr.Append(err, finishEval(c, store, conf, log))
		}()

		return runEval(ctx, cmd, c, conf, args)
	},
}

func runEval(ctx context.Context, cmd *cobra.Command, c *client.Client, conf *env.Config, codes []string) error {
	id := session
	if id == "" {
		cloneCtx, cancel := context.WithTimeout(ctx, conf.Timeout)
		defer cancel()

		var err error
		if id, err = c.Clone(cloneCtx, ""); err != nil {
			return err
		}
	}

	for _, code := range codes {
		evalCtx, cancel := context.WithTimeout(ctx, conf.Timeout)
		result, err := c.Eval(evalCtx, id, code)
		cancel()

		if err != nil {
			return err
		}

		fmt.Fprint(cmd.OutOrStdout(), result.Out)
		fmt.Fprint(cmd.ErrOrStderr(), result.Err)

		for _, v := range result.Values {
			fmt.Fprintln(cmd.OutOrStdout(), v)
		}

		if result.Failed() {
			return fmt.Errorf("%w: %s", ErrEvalFailed, result.Ex)
		}
	}

	return nil
}

// finishEval closes the sessions we cloned, or just the connection when
// evaluating in a session we were given, and writes the transcript.
func finishEval(c *client.Client, store *storage.InmemoryStore, conf *env.Config, log *zap.Logger) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), conf.Timeout)
	defer cancel()

	err = c.Shutdown(ctx)

	if store == nil {
		return err
	}

	backup, berr := store.Backup()
	if berr == nil {
		berr = os.WriteFile(transcriptPath, backup, 0640)
	}

	if berr != nil {
		log.Error("Failed to write transcript", zap.String("path", transcriptPath), zap.Error(berr))
	}

	return multierr.Combine(err, berr, store.Close())
}

// recordTranscript returns a callback that files every message carrying a
// session into store.
func recordTranscript(store storage.Store, log *zap.Logger) client.Callback {
	return func(msg *bencode.Dict, _ *client.WatchableConn, _ string) {
		err := store.Record(context.Background(), msg)
		if err != nil && !errors.Is(err, storage.ErrNoSession) {
			log.Warn("Failed to record message", zap.Error(err))
		}
	}
}
