package api

import (
	"errors"
	"net/http"

	"BarPull/internal/domain/repository"
	"BarPull/internal/errs"
	"BarPull/internal/index"
	"BarPull/internal/usecase"
	xhttp "BarPull/pkg/http"
	xlogger "BarPull/pkg/logger"

	"github.com/labstack/echo/v4"
)

// DataEchoHandler exposes the read-only inspection surface: what is cached,
// which partitions exist, which fetches ran. It never triggers a remote
// fetch.
type DataEchoHandler struct {
	logger  *xlogger.Logger
	idx     *index.AvailabilityIndex
	store   repository.BarStore
	journal *usecase.RequestJournal
}

func NewDataEchoHandler(logger *xlogger.Logger, idx *index.AvailabilityIndex, store repository.BarStore, journal *usecase.RequestJournal) *DataEchoHandler {
	return &DataEchoHandler{logger: logger, idx: idx, store: store, journal: journal}
}

func (h *DataEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/availability", h.Availability)
	g.GET("/partitions", h.Partitions)
	g.GET("/requests", h.Requests)
	g.GET("/instruments/:id", h.Instrument)
	e.GET("/healthz", h.Health)
}

type availabilityListRequest struct {
	Instrument string `query:"instrument"`
}

func (h *DataEchoHandler) Availability(c echo.Context) error {
	req := &availabilityListRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	records := h.idx.Snapshot()
	if req.Instrument != "" {
		filtered := records[:0]
		for _, r := range records {
			if r.InstrumentID == req.Instrument {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}
	return xhttp.ListResponse(c, records, int64(len(records)))
}

func (h *DataEchoHandler) Partitions(c echo.Context) error {
	metas, err := h.store.ScanPartitions(c.Request().Context())
	if err != nil {
		h.logger.Error("partition scan failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, metas, int64(len(metas)))
}

func (h *DataEchoHandler) Requests(c echo.Context) error {
	reqs := h.journal.List()
	return xhttp.ListResponse(c, reqs, int64(len(reqs)))
}

func (h *DataEchoHandler) Instrument(c echo.Context) error {
	id := c.Param("id")
	d, err := h.store.LoadDescriptor(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, errs.ErrDescriptorNotFound) {
			return xhttp.NotFoundResponse(c, "no descriptor for "+id)
		}
		h.logger.Error("descriptor load failed", xlogger.String("instrument", id), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, d)
}

func (h *DataEchoHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
