package cmd

import (
	"bytes"
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/luma/nrepl/client"
	"github.com/luma/nrepl/internal/env"
	"github.com/luma/nrepl/internal/nrepltest"
	"github.com/luma/nrepl/storage"
	"github.com/luma/nrepl/transport"
)

var _ = Describe("eval", func() {
	var (
		server      *nrepltest.Server
		c           *client.Client
		conf        *env.Config
		cmd         *cobra.Command
		out, errOut bytes.Buffer
	)

	BeforeEach(func() {
		var err error
		server, err = nrepltest.NewServer(zap.NewNop())
		Expect(err).To(Succeed())

		conf = &env.Config{Address: server.Address(), Timeout: 2 * time.Second}

		c, err = client.Connect(context.Background(), conf.Address, transport.Options{})
		Expect(err).To(Succeed())

		out.Reset()
		errOut.Reset()

		cmd = &cobra.Command{}
		cmd.SetOut(&out)
		cmd.SetErr(&errOut)

		session = ""
	})

	AfterEach(func() {
		c.Close()
		Expect(server.Close()).To(Succeed())
	})

	It("prints output and values of each argument in one session", func() {
		err := runEval(context.Background(), cmd, c, conf, []string{"(println 7)", "(* 6 7)", "*1"})
		Expect(err).To(Succeed())

		Expect(out.String()).To(Equal("7\nnil\n42\n42\n"))
		Expect(c.Sessions()).To(HaveLen(1))
	})

	It("uses the given session", func() {
		id, err := c.Clone(context.Background(), "")
		Expect(err).To(Succeed())

		_, err = c.Eval(context.Background(), id, "(+ 1 1)")
		Expect(err).To(Succeed())

		session = id
		Expect(runEval(context.Background(), cmd, c, conf, []string{"*1"})).To(Succeed())
		Expect(out.String()).To(Equal("2\n"))
		Expect(c.Sessions()).To(ConsistOf(id))
	})

	It("stops at the first failing argument", func() {
		err := runEval(context.Background(), cmd, c, conf, []string{"(nope)", "(+ 1 2)"})

		Expect(errors.Is(err, ErrEvalFailed)).To(BeTrue())
		Expect(errOut.String()).To(ContainSubstring("Unable to resolve symbol: nope"))
		Expect(out.String()).To(BeEmpty())
	})

	It("fails for unknown sessions", func() {
		session = "missing"

		err := runEval(context.Background(), cmd, c, conf, []string{"1"})
		Expect(errors.Is(err, client.ErrUnknownSession)).To(BeTrue())
	})

	It("records a transcript of every session", func() {
		store := storage.NewInmemoryStore()
		defer store.Close()

		c.Watchable().Watch("transcript", client.Pattern{}, recordTranscript(store, zap.NewNop()))

		Expect(runEval(context.Background(), cmd, c, conf, []string{"(+ 1 2)"})).To(Succeed())

		sessions := store.Sessions()
		Expect(sessions).To(HaveLen(1))

		backup, err := store.Backup()
		Expect(err).To(Succeed())

		entries := gjson.GetBytes(backup, sessions[0])
		Expect(entries.IsArray()).To(BeTrue())
		Expect(entries.Get(`#(value=="3").value`).String()).To(Equal("3"))
	})
})
