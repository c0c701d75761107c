// Package api exposes the operator surface over HTTP: bot lifecycle, health
// and emergency controls, trade history and bounded per-bot logs.
package api

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/models"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/repository"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/emergency"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/health"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/supervisor"
	xhttp "github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/http"
	xlogger "github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/logger"
)

// BotHandler serves the bot orchestration API.
type BotHandler struct {
	log       *xlogger.Logger
	sup       *supervisor.Supervisor
	health    *health.Monitor
	emergency *emergency.System
	archive   repository.TradeArchive
}

func NewBotHandler(log *xlogger.Logger, sup *supervisor.Supervisor, hm *health.Monitor, em *emergency.System, archive repository.TradeArchive) *BotHandler {
	return &BotHandler{log: log, sup: sup, health: hm, emergency: em, archive: archive}
}

func (h *BotHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")

	g.GET("/bots", h.List)
	g.POST("/bots", h.Start)
	g.GET("/bots/:id", h.Get)
	g.POST("/bots/:id/stop", h.Stop)
	g.POST("/bots/:id/restart", h.Restart)
	g.POST("/bots/:id/risk/ack", h.AckRisk)
	g.GET("/bots/:id/logs", h.Logs)
	g.GET("/bots/:id/trades", h.Trades)

	g.GET("/health", h.Health)

	g.GET("/emergency", h.EmergencyEvents)
	g.POST("/emergency/stop", h.EmergencyStop)
	g.POST("/emergency/:id/resolve", h.EmergencyResolve)
	g.POST("/emergency/resume", h.Resume)
}

func (h *BotHandler) List(c echo.Context) error {
	bots := h.sup.List()
	return xhttp.ListResponse(c, bots, int64(len(bots)))
}

func (h *BotHandler) Start(c echo.Context) error {
	req := &models.StartBotRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	id, err := h.sup.Start(c.Request().Context(), &req.Config)
	if err != nil {
		h.log.Error("bot start rejected", xlogger.Error(err))
		return xhttp.BadRequestResponse(c, err.Error())
	}
	view, err := h.sup.Get(id)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, view)
}

func (h *BotHandler) Get(c echo.Context) error {
	view, err := h.sup.Get(c.Param("id"))
	if err != nil {
		return xhttp.NotFoundResponse(c, err.Error())
	}
	return xhttp.SuccessResponse(c, view)
}

func (h *BotHandler) Stop(c echo.Context) error {
	id := c.Param("id")
	if err := h.sup.Stop(c.Request().Context(), id); err != nil {
		return xhttp.NotFoundResponse(c, err.Error())
	}
	h.log.Info("bot stopped via api", xlogger.String("bot_id", id))
	return xhttp.NoContentResponse(c)
}

func (h *BotHandler) Restart(c echo.Context) error {
	id := c.Param("id")
	if err := h.sup.Restart(c.Request().Context(), id); err != nil {
		h.log.Error("bot restart failed", xlogger.String("bot_id", id), xlogger.Error(err))
		return xhttp.BadRequestResponse(c, err.Error())
	}
	view, err := h.sup.Get(id)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, view)
}

func (h *BotHandler) AckRisk(c echo.Context) error {
	if err := h.sup.AckRisk(c.Param("id")); err != nil {
		return xhttp.NotFoundResponse(c, err.Error())
	}
	return xhttp.NoContentResponse(c)
}

func (h *BotHandler) Logs(c echo.Context) error {
	req := &models.BotLogsQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	entries, err := h.sup.Logs(c.Param("id"), req.Limit)
	if err != nil {
		return xhttp.NotFoundResponse(c, err.Error())
	}
	return xhttp.ListResponse(c, entries, int64(len(entries)))
}

// Trades reads the closed trade archive. from/to accept RFC3339 or unix
// seconds; the default window is the last 24 hours.
func (h *BotHandler) Trades(c echo.Context) error {
	now := time.Now().UTC()
	from := xhttp.ParseTimeDefault(c.QueryParam("from"), now.Add(-24*time.Hour))
	to := xhttp.ParseTimeDefault(c.QueryParam("to"), now)
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 100)

	recs, err := h.archive.Query(c.Request().Context(), c.Param("id"), from, to, limit)
	if err != nil {
		h.log.Error("trade archive query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("trade history unavailable").WithError(err))
	}
	return xhttp.ListResponse(c, recs, int64(len(recs)))
}

func (h *BotHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.health.Overview())
}

func (h *BotHandler) EmergencyEvents(c echo.Context) error {
	return xhttp.SuccessResponse(c, echo.Map{
		"active": h.emergency.Active(),
		"events": h.emergency.Events(),
	})
}

func (h *BotHandler) EmergencyStop(c echo.Context) error {
	req := &models.EmergencyStopRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ev := h.emergency.Trigger(models.TriggerManual, req.Reason, req.BotIDs)
	h.log.Error("emergency stop requested via api",
		xlogger.String("event", ev.ID),
		xlogger.String("reason", req.Reason))
	return xhttp.CreatedResponse(c, ev)
}

func (h *BotHandler) EmergencyResolve(c echo.Context) error {
	if err := h.emergency.Resolve(c.Param("id")); err != nil {
		return xhttp.NotFoundResponse(c, err.Error())
	}
	return xhttp.NoContentResponse(c)
}

// Resume clears worker suspension once the operator has resolved the cause.
func (h *BotHandler) Resume(c echo.Context) error {
	req := &models.ResumeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	h.sup.Resume(req.BotIDs)
	return xhttp.NoContentResponse(c)
}
