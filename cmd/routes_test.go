package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/luma/nrepl/client"
	"github.com/luma/nrepl/internal/nrepltest"
	"github.com/luma/nrepl/storage"
	"github.com/luma/nrepl/transport"
)

var _ = Describe("Gateway routes", func() {
	var (
		server *nrepltest.Server
		c      *client.Client
		store  *storage.InmemoryStore
		router *gin.Engine
	)

	do := func(method, path string, body interface{}) *httptest.ResponseRecorder {
		var reader bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&reader).Encode(body)).To(Succeed())
		}

		req := httptest.NewRequest(method, path, &reader)
		req.Header.Set("Content-Type", "application/json")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		return w
	}

	newSession := func() string {
		w := do(http.MethodPost, "/sessions", nil)
		Expect(w.Code).To(Equal(http.StatusCreated))

		session := gjson.GetBytes(w.Body.Bytes(), "session").String()
		Expect(session).NotTo(BeEmpty())

		return session
	}

	BeforeEach(func() {
		log := zap.NewNop()

		var err error
		server, err = nrepltest.NewServer(log)
		Expect(err).To(Succeed())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		c, err = client.Connect(ctx, server.Address(), transport.Options{Log: log})
		Expect(err).To(Succeed())

		store = storage.NewInmemoryStore()
		c.Watchable().Watch("transcript", client.Pattern{}, recordTranscript(store, log))

		router = setupRouter(false, log)
		registerRoutes(router, c, store, 2*time.Second)
	})

	AfterEach(func() {
		c.Close()
		store.Close()
		Expect(server.Close()).To(Succeed())
	})

	It("answers pings", func() {
		w := do(http.MethodGet, "/ping", nil)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(Equal("pong"))
	})

	It("describes the peer", func() {
		w := do(http.MethodGet, "/describe", nil)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(gjson.GetBytes(w.Body.Bytes(), "ops.eval").Exists()).To(BeTrue())
	})

	It("evaluates code in a session", func() {
		session := newSession()

		w := do(http.MethodPost, "/sessions/"+session+"/eval", gin.H{"code": "(println 1 2) (+ 1 2)"})
		Expect(w.Code).To(Equal(http.StatusOK))

		var resp evalResponse
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Session).To(Equal(session))
		Expect(resp.Out).To(Equal("1 2\n"))
		Expect(resp.Values).To(Equal([]string{"nil", "3"}))
		Expect(resp.Status).To(ContainElement("done"))

		w = do(http.MethodPost, "/sessions/"+session+"/eval", gin.H{"code": "*1"})
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(gjson.GetBytes(w.Body.Bytes(), "values.0").String()).To(Equal("3"))
	})

	It("reports evaluation errors in the body", func() {
		session := newSession()

		w := do(http.MethodPost, "/sessions/"+session+"/eval", gin.H{"code": "(nope)"})
		Expect(w.Code).To(Equal(http.StatusOK))

		Expect(gjson.GetBytes(w.Body.Bytes(), "ex").String()).NotTo(BeEmpty())
		Expect(gjson.GetBytes(w.Body.Bytes(), "err").String()).To(ContainSubstring("Unable to resolve symbol: nope"))
	})

	It("rejects eval requests without code", func() {
		session := newSession()

		w := do(http.MethodPost, "/sessions/"+session+"/eval", gin.H{})
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("returns 404 for unknown sessions", func() {
		w := do(http.MethodPost, "/sessions/missing/eval", gin.H{"code": "1"})
		Expect(w.Code).To(Equal(http.StatusNotFound))

		w = do(http.MethodDelete, "/sessions/missing", nil)
		Expect(w.Code).To(Equal(http.StatusNotFound))
	})

	It("closes sessions", func() {
		session := newSession()

		w := do(http.MethodDelete, "/sessions/"+session, nil)
		Expect(w.Code).To(Equal(http.StatusNoContent))
		Expect(c.Sessions()).NotTo(ContainElement(session))

		w = do(http.MethodPost, "/sessions/"+session+"/eval", gin.H{"code": "1"})
		Expect(w.Code).To(Equal(http.StatusNotFound))
	})

	It("serves the transcript of a session", func() {
		session := newSession()

		w := do(http.MethodPost, "/sessions/"+session+"/eval", gin.H{"code": "(+ 40 2)"})
		Expect(w.Code).To(Equal(http.StatusOK))

		w = do(http.MethodGet, "/sessions/"+session+"/transcript", nil)
		Expect(w.Code).To(Equal(http.StatusOK))

		transcript := gjson.ParseBytes(w.Body.Bytes())
		Expect(transcript.IsArray()).To(BeTrue())

		var values []string
		transcript.ForEach(func(_, entry gjson.Result) bool {
			if v := entry.Get("value"); v.Exists() {
				values = append(values, v.String())
			}
			return true
		})
		Expect(values).To(Equal([]string{"42"}))
	})

	It("serves an empty transcript for unknown sessions", func() {
		w := do(http.MethodGet, "/sessions/missing/transcript", nil)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(Equal("[]"))
	})

	It("rejects session ids that cannot be transcript keys", func() {
		w := do(http.MethodGet, "/sessions/a*b/transcript", nil)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})
})
