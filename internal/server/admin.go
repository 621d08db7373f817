package server

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"piigate/internal/auditlog"
	"piigate/internal/core"
	"piigate/internal/ruleset"
)

// rulesetInfo describes the active ruleset. Salt secrets are never included.
type rulesetInfo struct {
	Name            string                     `json:"name"`
	Version         string                     `json:"version"`
	LoadedAt        time.Time                  `json:"loaded_at"`
	DevelopmentSalt bool                       `json:"development_salt"`
	Strategies      []ruleset.CategoryStrategy `json:"strategies"`
	Document        ruleset.Document           `json:"document"`
}

func describe(s *ruleset.Snapshot) rulesetInfo {
	return rulesetInfo{
		Name:            s.Name(),
		Version:         s.Version(),
		LoadedAt:        s.LoadedAt(),
		DevelopmentSalt: s.DevelopmentSalt(),
		Strategies:      s.Strategies(),
		Document:        s.Document(),
	}
}

// Reload handles POST /admin/reload
//
// An empty body re-reads the configured ruleset file. A YAML body is
// validated and installed in its place. A rejected ruleset leaves the active
// one in service.
//
//	@Summary	Reload the detection ruleset
//	@Tags		admin
//	@Accept		plain
//	@Produce	json
//	@Success	200	{object}	rulesetInfo
//	@Failure	422	{object}	map[string]any
//	@Router		/admin/reload [post]
func (h *Handler) Reload(c echo.Context) error {
	if h.rulesets == nil {
		return handleError(c, core.NewUnavailableError("ruleset reloading is not configured", nil))
	}

	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return handleError(c, core.NewInvalidRequestError("failed to read request body", err))
	}

	ctx := c.Request().Context()
	var snap *ruleset.Snapshot
	if len(raw) == 0 {
		snap, err = h.rulesets.Reload(ctx)
	} else {
		snap, err = h.rulesets.Install(ctx, raw)
	}
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, describe(snap))
}

// Ruleset handles GET /admin/ruleset
//
//	@Summary	Show the active ruleset
//	@Tags		admin
//	@Produce	json
//	@Success	200	{object}	rulesetInfo
//	@Router		/admin/ruleset [get]
func (h *Handler) Ruleset(c echo.Context) error {
	return c.JSON(http.StatusOK, describe(h.engine.Snapshot()))
}

// ListAudit handles GET /admin/audit
//
//	@Summary	List audit entries, newest first
//	@Tags		admin
//	@Produce	json
//	@Param		stream_id		query	string	false	"stream filter"
//	@Param		record_id		query	string	false	"record filter"
//	@Param		ruleset_version	query	string	false	"ruleset version filter"
//	@Param		is_pii			query	bool	false	"PII filter"
//	@Param		failed			query	bool	false	"failed record filter"
//	@Param		start_date		query	string	false	"YYYY-MM-DD"
//	@Param		end_date		query	string	false	"YYYY-MM-DD, inclusive"
//	@Param		limit			query	int		false	"page size (default 25, max 100)"
//	@Param		offset			query	int		false	"page offset"
//	@Success	200	{object}	auditlog.RecordListResult
//	@Failure	503	{object}	map[string]any
//	@Router		/admin/audit [get]
func (h *Handler) ListAudit(c echo.Context) error {
	if h.audit == nil {
		return handleError(c, auditDisabled())
	}
	params, err := parseRecordQuery(c)
	if err != nil {
		return handleError(c, err)
	}
	result, err := h.audit.GetRecords(c.Request().Context(), params)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// GetAudit handles GET /admin/audit/:id
//
//	@Summary	Get one audit entry
//	@Tags		admin
//	@Produce	json
//	@Param		id	path	string	true	"entry ID"
//	@Success	200	{object}	auditlog.LogEntry
//	@Failure	404	{object}	map[string]any
//	@Router		/admin/audit/{id} [get]
func (h *Handler) GetAudit(c echo.Context) error {
	if h.audit == nil {
		return handleError(c, auditDisabled())
	}
	entry, err := h.audit.GetRecordByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return handleError(c, err)
	}
	if entry == nil {
		return handleError(c, core.NewNotFoundError("audit entry not found"))
	}
	return c.JSON(http.StatusOK, entry)
}

// GetAuditStream handles GET /admin/audit/streams/:stream_id
//
//	@Summary	Get the audit entries of one stream in input order
//	@Tags		admin
//	@Produce	json
//	@Param		stream_id	path	string	true	"stream ID"
//	@Param		limit		query	int		false	"max entries (default 100, max 1000)"
//	@Success	200	{object}	auditlog.StreamResult
//	@Router		/admin/audit/streams/{stream_id} [get]
func (h *Handler) GetAuditStream(c echo.Context) error {
	if h.audit == nil {
		return handleError(c, auditDisabled())
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return handleError(c, err)
	}
	result, err := h.audit.GetStream(c.Request().Context(), c.Param("stream_id"), limit)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func auditDisabled() *core.APIError {
	return core.NewUnavailableError("audit logging is disabled", nil)
}

func parseRecordQuery(c echo.Context) (auditlog.RecordQueryParams, error) {
	var params auditlog.RecordQueryParams
	var err error

	params.StreamID = c.QueryParam("stream_id")
	params.RecordID = c.QueryParam("record_id")
	params.RulesetVersion = c.QueryParam("ruleset_version")

	if params.IsPII, err = queryBool(c, "is_pii"); err != nil {
		return params, err
	}
	if params.Failed, err = queryBool(c, "failed"); err != nil {
		return params, err
	}
	if params.StartDate, err = queryDate(c, "start_date"); err != nil {
		return params, err
	}
	if params.EndDate, err = queryDate(c, "end_date"); err != nil {
		return params, err
	}
	if params.Limit, err = queryInt(c, "limit"); err != nil {
		return params, err
	}
	if params.Offset, err = queryInt(c, "offset"); err != nil {
		return params, err
	}
	return params, nil
}

func queryBool(c echo.Context, name string) (*bool, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, core.NewInvalidRequestError("invalid "+name+": "+v, err)
	}
	return &b, nil
}

func queryInt(c echo.Context, name string) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, core.NewInvalidRequestError("invalid "+name+": "+v, err)
	}
	return n, nil
}

func queryDate(c echo.Context, name string) (time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, core.NewInvalidRequestError("invalid "+name+", expected YYYY-MM-DD: "+v, err)
	}
	return t, nil
}
