// Package server exposes the redaction engine over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/labstack/echo/v4"

	"piigate/config"
	"piigate/internal/auditlog"
	"piigate/internal/core"
	"piigate/internal/redact"
	"piigate/internal/ruleset"
	"piigate/internal/streamparse"
)

// readChunkSize is the size of the chunks fed to a stream.
const readChunkSize = 32 << 10

// Trailers set on every redaction response.
const (
	TrailerRecords = "X-Piigate-Records"
	TrailerFailed  = "X-Piigate-Failed"
)

// RulesetManager reloads and installs rulesets. *rulesync.Manager implements it.
type RulesetManager interface {
	Reload(ctx context.Context) (*ruleset.Snapshot, error)
	Install(ctx context.Context, raw []byte) (*ruleset.Snapshot, error)
}

// HealthChecker reports whether a backend is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Handler holds the HTTP handlers
type Handler struct {
	engine   *redact.Engine
	rulesets RulesetManager
	audit    auditlog.Reader
	health   HealthChecker
	stream   config.StreamConfig
}

// NewHandler creates a new handler. rulesets, audit and health may be nil.
func NewHandler(engine *redact.Engine, rulesets RulesetManager, audit auditlog.Reader, health HealthChecker, stream config.StreamConfig) *Handler {
	return &Handler{
		engine:   engine,
		rulesets: rulesets,
		audit:    audit,
		health:   health,
		stream:   stream,
	}
}

// Health handles GET /health
//
//	@Summary	Liveness and storage reachability
//	@Tags		system
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Failure	503	{object}	map[string]any
//	@Router		/health [get]
func (h *Handler) Health(c echo.Context) error {
	resp := map[string]string{"status": "ok"}
	if h.engine != nil {
		resp["ruleset_version"] = h.engine.Snapshot().Version()
	}
	if h.health != nil {
		if err := h.health.Ping(c.Request().Context()); err != nil {
			return handleError(c, core.NewUnavailableError("storage unreachable", err))
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// Redact handles POST /v1/redact
//
// The body is streamed through the engine and every record is written back
// as soon as it completes. Counts are reported in trailers because the
// status line is sent with the first record.
//
//	@Summary	Redact a CSV or NDJSON stream
//	@Tags		redaction
//	@Accept		plain
//	@Produce	plain
//	@Param		format		query	string	false	"csv or ndjson"
//	@Param		stream_id	query	string	false	"stream identifier"
//	@Param		header		query	bool	false	"first CSV row names the columns"
//	@Param		id_column	query	string	false	"CSV record ID column"
//	@Param		data_column	query	string	false	"CSV JSON payload column"
//	@Success	200	{string}	string	"redacted stream"
//	@Failure	400	{object}	map[string]any
//	@Failure	415	{object}	map[string]any
//	@Router		/v1/redact [post]
func (h *Handler) Redact(c echo.Context) error {
	opts, ok := streamOptionsFrom(c)
	if !ok {
		var err error
		if opts, err = resolveStreamOptions(c, h.stream); err != nil {
			return handleError(c, err)
		}
	}

	body, err := decodeBody(c.Request())
	if err != nil {
		return handleError(c, err)
	}
	defer body.Close()

	res := c.Response()
	var records, failed int
	emit := redact.EmitterFunc(func(out *redact.Output) error {
		if !res.Committed {
			startRedactResponse(res, opts.Parser.Format)
		}
		if !out.Verbatim {
			records++
			if out.Failed {
				failed++
			}
		}
		if _, err := res.Write(out.Data); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
		res.Flush()
		return nil
	})

	ctx := c.Request().Context()
	stream := h.engine.NewStream(ctx, opts, emit)
	streamErr := feed(stream, body)

	if !res.Committed {
		if streamErr != nil && records == 0 {
			var apiErr *core.APIError
			if errors.As(streamErr, &apiErr) {
				return handleError(c, apiErr)
			}
			return handleError(c, core.NewStreamError("stream failed before the first record", streamErr))
		}
		startRedactResponse(res, opts.Parser.Format)
	}
	res.Header().Set(TrailerRecords, strconv.Itoa(records))
	res.Header().Set(TrailerFailed, strconv.Itoa(failed))

	if streamErr != nil {
		// Can't return an error after the status line is sent, log it
		slog.Warn("redaction stream ended early", core.LogAttrs(
			core.WithStreamID(ctx, stream.ID()),
			"records", records,
			"error", streamErr,
		)...)
	}
	return nil
}

// feed reads body in chunks into stream until EOF or the first error. The
// stream is always finished when feed returns.
func feed(stream *redact.Stream, body io.Reader) error {
	buf := make([]byte, readChunkSize)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if err := stream.Feed(buf[:n]); err != nil {
				if errors.Is(err, core.ErrStreamTerminated) {
					return stream.Flush()
				}
				stream.Abort()
				return err
			}
		}
		if errors.Is(rerr, io.EOF) {
			return stream.Flush()
		}
		if rerr != nil {
			stream.Abort()
			return core.NewInvalidRequestError("failed to read request body", rerr)
		}
	}
}

func startRedactResponse(res *echo.Response, format streamparse.Format) {
	contentType := "application/x-ndjson"
	if format == streamparse.FormatCSV {
		contentType = "text/csv; charset=utf-8"
	}
	res.Header().Set(echo.HeaderContentType, contentType)
	res.Header().Set("Trailer", TrailerRecords+", "+TrailerFailed)
	res.Header().Set("Cache-Control", "no-store")
	res.WriteHeader(http.StatusOK)
}

// decodeBody unwraps br and gzip request bodies.
func decodeBody(r *http.Request) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(r.Header.Get(echo.HeaderContentEncoding))) {
	case "", "identity":
		return r.Body, nil
	case "br":
		return readCloser{Reader: brotli.NewReader(r.Body), Closer: r.Body}, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, core.NewInvalidRequestError("invalid gzip request body", err)
		}
		return readCloser{Reader: zr, Closer: multiCloser{zr, r.Body}}, nil
	default:
		return nil, &core.APIError{
			Type:       core.ErrorTypeInvalidRequest,
			Message:    "unsupported content encoding: " + r.Header.Get(echo.HeaderContentEncoding),
			StatusCode: http.StatusUnsupportedMediaType,
		}
	}
}

type readCloser struct {
	io.Reader
	io.Closer
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var errs []error
	for _, c := range m {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// handleError converts errors to appropriate HTTP responses
func handleError(c echo.Context, err error) error {
	var apiErr *core.APIError
	if errors.As(err, &apiErr) {
		return c.JSON(apiErr.HTTPStatusCode(), apiErr.ToJSON())
	}
	if errors.Is(err, core.ErrConfigurationInvalid) {
		apiErr = core.NewConfigurationError(err)
		return c.JSON(apiErr.HTTPStatusCode(), apiErr.ToJSON())
	}

	// Fallback for unexpected errors
	return c.JSON(http.StatusInternalServerError, map[string]any{
		"error": map[string]any{
			"type":    "internal_error",
			"message": "an unexpected error occurred",
		},
	})
}

// RequestLogger logs one line per request through slog. Query strings are
// left out since they may carry stream identifiers chosen by callers.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req := c.Request()
			slog.Info("request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", c.Response().Status,
				"bytes_out", c.Response().Size,
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			)
			return nil
		}
	}
}
