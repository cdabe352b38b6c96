package transport_test

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/luma/nrepl/bencode"
	"github.com/luma/nrepl/internal/nrepltest"
	"github.com/luma/nrepl/transport"
)

var _ = Describe("transport", func() {
	Describe("Connect()", func() {
		var server *nrepltest.Server

		BeforeEach(func() {
			log, err := zap.NewDevelopment()
			Expect(err).To(Succeed())

			server, err = nrepltest.NewServer(log.Named("peer"))
			Expect(err).To(Succeed())
		})

		AfterEach(func() {
			Expect(server.Close()).To(Succeed())
		})

		It("exchanges messages with the peer", func() {
			conn, err := transport.Connect(context.Background(), server.Address(), transport.Options{Trace: true})
			Expect(err).To(Succeed())
			defer conn.Close()

			Expect(conn.Write(bencode.NewDict().Set("op", "clone"))).To(Succeed())

			resp, err := conn.Read()
			Expect(err).To(Succeed())
			Expect(bencode.Equal(resp.Value("status"), []string{"done"})).To(BeTrue())

			session, ok := resp.GetString("new-session")
			Expect(ok).To(BeTrue())
			Expect(session).NotTo(BeEmpty())

			Expect(conn.Write(bencode.NewDict().
				Set("op", "eval").
				Set("code", "(+ 1 2)").
				Set("session", session))).To(Succeed())

			resp, err = conn.Read()
			Expect(err).To(Succeed())
			Expect(resp.Value("session")).To(Equal(session))
			Expect(resp.Value("value")).To(Equal("3"))

			resp, err = conn.Read()
			Expect(err).To(Succeed())
			Expect(bencode.Equal(resp.Value("status"), []string{"done"})).To(BeTrue())

			Expect(conn.Write(bencode.NewDict().
				Set("op", "eval").
				Set("code", "(+ *1 2)").
				Set("session", session))).To(Succeed())

			resp, err = conn.Read()
			Expect(err).To(Succeed())
			Expect(resp.Value("value")).To(Equal("5"))

			Expect(conn.Close()).To(Succeed())
		})

		It("returns a ConnectionError when nothing is listening", func() {
			listener, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).To(Succeed())
			port := listener.Addr().(*net.TCPAddr).Port
			Expect(listener.Close()).To(Succeed())

			addr := transport.Address{Host: "127.0.0.1", Port: port}.String()
			_, err = transport.Connect(context.Background(), addr, transport.Options{DialTimeout: time.Second})

			var connErr *transport.ConnectionError
			Expect(errors.As(err, &connErr)).To(BeTrue())
			Expect(connErr.Op).To(Equal("dial"))
		})

		It("returns a ConnectionError for a malformed address", func() {
			_, err := transport.Connect(context.Background(), "tcp://127.0.0.1:1", transport.Options{})

			var connErr *transport.ConnectionError
			Expect(errors.As(err, &connErr)).To(BeTrue())
			Expect(errors.Is(err, transport.ErrInvalidAddress)).To(BeTrue())
		})

		It("returns a ConnectionError when the context is already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := transport.Connect(ctx, server.Address(), transport.Options{})

			var connErr *transport.ConnectionError
			Expect(errors.As(err, &connErr)).To(BeTrue())
		})
	})

	Describe("Conn", func() {
		var (
			conn *transport.Conn
			peer net.Conn
		)

		BeforeEach(func() {
			var local net.Conn
			local, peer = net.Pipe()
			conn = transport.NewConn(local, transport.Options{})
		})

		AfterEach(func() {
			conn.Close()
			peer.Close()
		})

		write := func(data string) {
			go func() {
				defer GinkgoRecover()
				_, err := peer.Write([]byte(data))
				Expect(err).To(Succeed())
			}()
		}

		It("reads messages that are written back to back", func() {
			write("d2:op5:clonee" + "d6:statusl4:doneee")

			msg, err := conn.Read()
			Expect(err).To(Succeed())
			Expect(msg).To(Equal(bencode.NewDict().Set("op", "clone")))

			msg, err = conn.Read()
			Expect(err).To(Succeed())
			Expect(msg).To(Equal(bencode.NewDict().Set("status", []interface{}{"done"})))
		})

		It("returns a ParseError for malformed bytes", func() {
			write("d2:op5:clonex")

			_, err := conn.Read()

			var parseErr *bencode.ParseError
			Expect(errors.As(err, &parseErr)).To(BeTrue())
			Expect(errors.Is(err, bencode.ErrUnknownType)).To(BeTrue())
		})

		It("returns a ParseError for values that are not dictionaries", func() {
			write("l4:donee")

			_, err := conn.Read()
			Expect(errors.Is(err, bencode.ErrNotDict)).To(BeTrue())
		})

		It("returns a ConnectionError when the peer hangs up mid message", func() {
			go func() {
				defer GinkgoRecover()
				_, err := peer.Write([]byte("d2:op5:cl"))
				Expect(err).To(Succeed())
				peer.Close()
			}()

			_, err := conn.Read()

			var connErr *transport.ConnectionError
			Expect(errors.As(err, &connErr)).To(BeTrue())
			Expect(errors.Is(err, io.ErrUnexpectedEOF)).To(BeTrue())
		})

		It("returns a ConnectionError when the peer hangs up between messages", func() {
			peer.Close()

			_, err := conn.Read()

			var connErr *transport.ConnectionError
			Expect(errors.As(err, &connErr)).To(BeTrue())
			Expect(errors.Is(err, io.EOF)).To(BeTrue())
		})

		It("unblocks a pending Read when closed", func() {
			errs := make(chan error, 1)
			go func() {
				_, err := conn.Read()
				errs <- err
			}()

			Consistently(errs, 50*time.Millisecond).ShouldNot(Receive())
			Expect(conn.Close()).To(Succeed())

			var err error
			Eventually(errs).Should(Receive(&err))
			Expect(errors.Is(err, transport.ErrClosed)).To(BeTrue())

			var connErr *transport.ConnectionError
			Expect(errors.As(err, &connErr)).To(BeTrue())
		})

		It("can be closed more than once", func() {
			Expect(conn.Close()).To(Succeed())
			Expect(conn.Close()).To(Succeed())
			Expect(conn.Closed()).To(BeTrue())

			_, err := conn.Read()
			Expect(errors.Is(err, transport.ErrClosed)).To(BeTrue())
			Expect(errors.Is(conn.Write(bencode.NewDict()), transport.ErrClosed)).To(BeTrue())
		})

		It("writes encoded messages", func() {
			received := make(chan []byte, 1)
			go func() {
				buf := make([]byte, 64)
				n, _ := peer.Read(buf)
				received <- buf[:n]
			}()

			Expect(conn.Write(bencode.NewDict().Set("op", "eval").Set("code", "(+ 1 2)"))).To(Succeed())
			Eventually(received).Should(Receive(Equal([]byte("d2:op4:eval4:code7:(+ 1 2)e"))))
		})

		It("returns an EncodeError and writes nothing for unsupported values", func() {
			err := conn.Write(bencode.NewDict().Set("op", 1.5))

			var encodeErr *bencode.EncodeError
			Expect(errors.As(err, &encodeErr)).To(BeTrue())
		})
	})
})
