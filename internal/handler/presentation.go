package handler

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"aina-notebook/internal/export"
	"aina-notebook/internal/generator"
	"aina-notebook/internal/metrics"
	"aina-notebook/internal/model"
	"aina-notebook/internal/service"
	"aina-notebook/internal/storage"
	"aina-notebook/internal/utils"
	"aina-notebook/pkg/logger"

	"github.com/gin-gonic/gin"
)

const DefaultHeartbeat = 30 * time.Second

type PresentationHandler struct {
	generation  *service.GenerationService
	store       storage.HistoryStore
	exporter    *export.PDFExporter
	defaultLang model.Language
	heartbeat   time.Duration
}

func NewPresentationHandler(generation *service.GenerationService, store storage.HistoryStore, exporter *export.PDFExporter, defaultLang model.Language) *PresentationHandler {
	return &PresentationHandler{
		generation:  generation,
		store:       store,
		exporter:    exporter,
		defaultLang: defaultLang,
		heartbeat:   DefaultHeartbeat,
	}
}

// WithHeartbeat changes the SSE keep-alive interval.
func (h *PresentationHandler) WithHeartbeat(d time.Duration) *PresentationHandler {
	h.heartbeat = d
	return h
}

type catalogResponse struct {
	Styles   []model.Style   `json:"styles"`
	AgeBands []model.AgeBand `json:"age_bands"`
}

func (h *PresentationHandler) Styles(c *gin.Context) {
	bands := make([]model.AgeBand, 0, len(model.AgeBands))
	for _, b := range model.AgeBands {
		bands = append(bands, b)
	}
	sort.Slice(bands, func(i, j int) bool { return bands[i].MinSlides < bands[j].MinSlides })

	c.JSON(http.StatusOK, catalogResponse{Styles: model.Styles, AgeBands: bands})
}

// Generate starts a run and streams its events. The run keeps going if the
// client leaves; its result still lands in the history.
func (h *PresentationHandler) Generate(c *gin.Context) {
	var req model.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithMessage(c, http.StatusBadRequest, msgInvalidRequest, requestLanguage(c, h.defaultLang))
		return
	}

	lang := h.defaultLang
	if req.Language != "" {
		lang = model.ParseLanguage(req.Language)
	}

	job, err := h.generation.NewJob(req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyTopic):
			abortWithMessage(c, http.StatusBadRequest, msgEmptyTopic, lang)
		case errors.Is(err, service.ErrUnknownStyle):
			abortWithMessage(c, http.StatusBadRequest, msgUnknownStyle, lang)
		default:
			abortWithMessage(c, http.StatusBadRequest, msgInvalidRequest, lang)
		}
		return
	}

	events, err := h.generation.Start(c.Request.Context(), job)
	if err != nil {
		if errors.Is(err, service.ErrBusy) {
			abortWithMessage(c, http.StatusConflict, msgBusy, lang)
			return
		}
		logger.Errorf("Failed to start generation: %v", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, model.ErrorResponse{Error: generator.UserMessage(err, lang)})
		return
	}

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	logger.WithFields(map[string]interface{}{
		"topic":    job.Topic,
		"style":    job.Style.Name,
		"language": job.Language,
	}).Info("Generation stream opened")

	sse := utils.NewSSEWriter(c.Writer)
	c.Status(http.StatusOK)

	h.stream(c.Request.Context(), sse, events)
}

// stream forwards events until the channel closes. After the client goes
// away or a write fails, events are still drained so the run can finish.
func (h *PresentationHandler) stream(ctx context.Context, sse *utils.SSEWriter, events <-chan model.GenerationEvent) {
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	writing := true
	gone := ctx.Done()

	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			if !writing {
				continue
			}
			if err := sse.WriteJSON(e.Type, e); err != nil {
				logger.Warnf("Stopped streaming events: %v", err)
				writing = false
			}

		case <-heartbeat.C:
			if !writing {
				continue
			}
			if err := sse.Comment("heartbeat"); err != nil {
				logger.Warnf("Heartbeat failed: %v", err)
				writing = false
			}

		case <-gone:
			logger.Info("Client left the generation stream, draining in background")
			writing = false
			gone = nil
		}
	}
}

func (h *PresentationHandler) List(c *gin.Context) {
	list, err := h.store.List(c.Request.Context())
	if err != nil {
		logger.Errorf("Failed to list presentations: %v", err)
		abortWithMessage(c, http.StatusInternalServerError, msgStorage, requestLanguage(c, h.defaultLang))
		return
	}
	if list == nil {
		list = []*model.Presentation{}
	}
	c.JSON(http.StatusOK, list)
}

// Events streams the whole history every time it changes.
func (h *PresentationHandler) Events(c *gin.Context) {
	ctx := c.Request.Context()

	// Only the newest history matters, so a pending stale one is replaced.
	latest := make(chan []*model.Presentation, 1)
	unsubscribe, err := h.store.Subscribe(ctx, func(list []*model.Presentation) {
		for {
			select {
			case latest <- list:
				return
			default:
			}
			select {
			case <-latest:
			default:
			}
		}
	})
	if err != nil {
		logger.Errorf("Failed to subscribe to history: %v", err)
		abortWithMessage(c, http.StatusInternalServerError, msgStorage, requestLanguage(c, h.defaultLang))
		return
	}
	defer unsubscribe()

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	sse := utils.NewSSEWriter(c.Writer)
	c.Status(http.StatusOK)

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case list := <-latest:
			if list == nil {
				list = []*model.Presentation{}
			}
			if err := sse.WriteJSON("history", list); err != nil {
				return
			}
		case <-heartbeat.C:
			if err := sse.Comment("heartbeat"); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *PresentationHandler) Get(c *gin.Context) {
	p, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *PresentationHandler) Clear(c *gin.Context) {
	err := h.store.Clear(c.Request.Context())
	metrics.HistoryWritesTotal.WithLabelValues("clear", metrics.Status(err)).Inc()
	if err != nil {
		logger.Errorf("Failed to clear history: %v", err)
		abortWithMessage(c, http.StatusInternalServerError, msgStorage, requestLanguage(c, h.defaultLang))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PresentationHandler) RetrySlide(c *gin.Context) {
	lang := requestLanguage(c, h.defaultLang)

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		abortWithMessage(c, http.StatusBadRequest, msgSlideOutOfRange, lang)
		return
	}

	result, err := h.generation.RetrySlide(c.Request.Context(), c.Param("id"), index)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBusy):
			abortWithMessage(c, http.StatusConflict, msgBusy, lang)
		case errors.Is(err, storage.ErrPresentationNotFound):
			abortWithMessage(c, http.StatusNotFound, msgNotFound, lang)
		case errors.Is(err, service.ErrSlideOutOfRange):
			abortWithMessage(c, http.StatusBadRequest, msgSlideOutOfRange, lang)
		case errors.Is(err, service.ErrSlideHasImage):
			abortWithMessage(c, http.StatusConflict, msgSlideHasImage, lang)
		default:
			kind := generator.KindOf(err)
			if kind == generator.KindUnknown {
				logger.Errorf("Slide retry failed: %v", err)
				abortWithMessage(c, http.StatusInternalServerError, msgStorage, lang)
				return
			}
			c.AbortWithStatusJSON(http.StatusBadGateway, model.ErrorResponse{
				Error: generator.UserMessage(err, lang),
				Kind:  string(kind),
			})
		}
		return
	}

	c.JSON(http.StatusOK, model.RetryResponse{
		Presentation: result.Presentation,
		Warning:      result.Warning,
	})
}

func (h *PresentationHandler) PDF(c *gin.Context) {
	p, ok := h.load(c)
	if !ok {
		return
	}

	data, err := h.exporter.Export(p)
	if err != nil {
		logger.Errorf("Failed to export presentation %s: %v", p.ID, err)
		abortWithMessage(c, http.StatusInternalServerError, msgExport, p.Language)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+export.Filename(p)+`"`)
	c.Data(http.StatusOK, "application/pdf", data)
}

func (h *PresentationHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.generation.Status())
}

func (h *PresentationHandler) load(c *gin.Context) (*model.Presentation, bool) {
	lang := requestLanguage(c, h.defaultLang)

	p, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrPresentationNotFound) {
			abortWithMessage(c, http.StatusNotFound, msgNotFound, lang)
		} else {
			logger.Errorf("Failed to load presentation: %v", err)
			abortWithMessage(c, http.StatusInternalServerError, msgStorage, lang)
		}
		return nil, false
	}
	return p, true
}
