package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/luma/nrepl/bencode"
	"github.com/luma/nrepl/client"
	"github.com/luma/nrepl/storage"
)

type evalRequest struct {
	Code string `json:"code" binding:"required"`
}

type evalResponse struct {
	Session string   `json:"session"`
	Values  []string `json:"values"`
	Out     string   `json:"out"`
	Err     string   `json:"err"`
	Ex      string   `json:"ex,omitempty"`
	Ns      string   `json:"ns,omitempty"`
	Status  []string `json:"status"`
}

// registerRoutes exposes the sessions of c over HTTP. Every request to the
// peer is bounded by timeout.
func registerRoutes(r *gin.Engine, c *client.Client, store storage.Store, timeout time.Duration) {
	// Ping test
	r.GET("/ping", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, "pong")
	})

	r.GET("/describe", func(ctx *gin.Context) {
		reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), timeout)
		defer cancel()

		desc, err := c.Describe(reqCtx)
		if err != nil {
			abortWithError(ctx, err)
			return
		}

		body, err := bencode.ToJSONValue(desc)
		if err != nil {
			abortWithError(ctx, err)
			return
		}

		ctx.JSON(http.StatusOK, body)
	})

	r.POST("/sessions", func(ctx *gin.Context) {
		reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), timeout)
		defer cancel()

		id, err := c.Clone(reqCtx, ctx.Query("from"))
		if err != nil {
			abortWithError(ctx, err)
			return
		}

		ctx.JSON(http.StatusCreated, gin.H{"session": id})
	})

	r.POST("/sessions/:id/eval", func(ctx *gin.Context) {
		var req evalRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), timeout)
		defer cancel()

		result, err := c.Eval(reqCtx, ctx.Param("id"), req.Code)
		if err != nil {
			abortWithError(ctx, err)
			return
		}

		ctx.JSON(http.StatusOK, evalResponse{
			Session: result.Session,
			Values:  nonNil(result.Values),
			Out:     result.Out,
			Err:     result.Err,
			Ex:      result.Ex,
			Ns:      result.Ns,
			Status:  nonNil(result.Status),
		})
	})

	r.DELETE("/sessions/:id", func(ctx *gin.Context) {
		reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), timeout)
		defer cancel()

		if err := c.CloseSession(reqCtx, ctx.Param("id")); err != nil {
			abortWithError(ctx, err)
			return
		}

		ctx.Status(http.StatusNoContent)
	})

	r.GET("/sessions/:id/transcript", func(ctx *gin.Context) {
		transcript, err := store.Get(ctx.Request.Context(), ctx.Param("id"))
		if err != nil {
			abortWithError(ctx, err)
			return
		}

		ctx.Data(http.StatusOK, "application/json; charset=utf-8", transcript)
	})
}

func abortWithError(ctx *gin.Context, err error) {
	var encodeErr *bencode.EncodeError

	status := http.StatusBadGateway

	switch {
	case errors.Is(err, client.ErrUnknownSession):
		status = http.StatusNotFound
	case errors.Is(err, client.ErrUnknownOp), errors.Is(err, storage.ErrInvalidSession):
		status = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.As(err, &encodeErr):
		status = http.StatusInternalServerError
	}

	ctx.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}

	return s
}
