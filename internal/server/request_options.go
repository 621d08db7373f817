package server

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"piigate/config"
	"piigate/internal/core"
	"piigate/internal/redact"
	"piigate/internal/streamparse"
)

type contextKey string

const streamOptionsKey contextKey = "streamOptions"

// StreamOptions resolves the stream settings of a redaction request from its
// query parameters over the configured defaults, and propagates the request
// ID. Invalid parameters are rejected before the body is read.
//
//	format       csv | ndjson
//	stream_id    identifier used in telemetry and audit entries
//	header       whether the first CSV row names the columns
//	id_column    CSV column holding the record ID
//	data_column  CSV column holding the JSON payload
func StreamOptions(defaults config.StreamConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			opts, err := resolveStreamOptions(c, defaults)
			if err != nil {
				return handleError(c, err)
			}
			c.Set(string(streamOptionsKey), opts)

			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = c.Request().Header.Get(echo.HeaderXRequestID)
			}
			ctx := core.WithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

func resolveStreamOptions(c echo.Context, defaults config.StreamConfig) (redact.StreamOptions, error) {
	formatName := firstNonEmpty(
		c.QueryParam("format"),
		contentTypeFormat(c.Request().Header.Get(echo.HeaderContentType)),
		defaults.Format,
		"ndjson",
	)
	format, err := streamparse.ParseFormat(formatName)
	if err != nil {
		return redact.StreamOptions{}, core.NewInvalidRequestError("invalid format: "+formatName, err)
	}

	parser := streamparse.DefaultOptions(format)
	parser.CSVHeader = defaults.CSVHeader
	if v := c.QueryParam("header"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return redact.StreamOptions{}, core.NewInvalidRequestError("invalid header flag: "+v, err)
		}
		parser.CSVHeader = b
	}
	parser.IDColumn = firstNonEmpty(c.QueryParam("id_column"), defaults.IDColumn, streamparse.DefaultIDColumn)
	parser.DataColumn = firstNonEmpty(c.QueryParam("data_column"), defaults.DataColumn, streamparse.DefaultDataColumn)
	if defaults.MaxRecordBytes > 0 {
		parser.MaxRecordBytes = defaults.MaxRecordBytes
	}
	if defaults.MaxDepth > 0 {
		parser.MaxDepth = defaults.MaxDepth
	}

	streamID := c.QueryParam("stream_id")
	if len(streamID) > 128 {
		return redact.StreamOptions{}, core.NewInvalidRequestError("stream_id is longer than 128 characters", nil)
	}

	return redact.StreamOptions{
		ID:            streamID,
		Parser:        parser,
		MaxValueBytes: defaults.MaxValueBytes,
	}, nil
}

// contentTypeFormat maps a CSV or NDJSON media type to its format name.
// Other media types return "".
func contentTypeFormat(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	switch strings.TrimSpace(strings.ToLower(mediaType)) {
	case "text/csv":
		return "csv"
	case "application/x-ndjson", "application/jsonl":
		return "ndjson"
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// streamOptionsFrom returns the options set by StreamOptions for this request.
func streamOptionsFrom(c echo.Context) (redact.StreamOptions, bool) {
	opts, ok := c.Get(string(streamOptionsKey)).(redact.StreamOptions)
	return opts, ok
}
