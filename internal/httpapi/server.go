// Package httpapi serves the speech service over HTTP. Route names follow the
// VOICEVOX engine so existing clients can point at it.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/dgnsrekt/vvtts/internal/bus"
	"github.com/dgnsrekt/vvtts/internal/speech"
	"github.com/dgnsrekt/vvtts/voicevox"
)

// Service is the speech service the routes drive. *speech.Service satisfies it.
type Service interface {
	bus.Speaker
	Query(ctx context.Context, text string, speakerID uint32, kana bool) (*voicevox.AudioQuery, error)
}

var _ Service = (*speech.Service)(nil)

// Catalog answers metadata requests. *voicevox.Core satisfies it.
type Catalog interface {
	Version() (string, error)
	Metas() ([]voicevox.SpeakerMeta, error)
	SupportedDevices() (voicevox.SupportedDevices, error)
}

var _ Catalog = (*voicevox.Core)(nil)

type handler struct {
	svc     Service
	catalog Catalog
	timeout time.Duration
}

// New builds the HTTP app. A zero timeout leaves requests unbounded.
func New(svc Service, catalog Catalog, timeout time.Duration) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "vvtts",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	h := &handler{svc: svc, catalog: catalog, timeout: timeout}
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/version", h.version)
	app.Get("/speakers", h.speakers)
	app.Get("/supported_devices", h.supportedDevices)
	app.Post("/audio_query", h.audioQuery)
	app.Post("/synthesis", h.synthesis)
	app.Post("/tts", h.tts)
	return app
}

// MountMetrics serves a Prometheus scrape handler on GET /metrics.
func MountMetrics(app *fiber.App, h http.Handler) {
	app.Get("/metrics", adaptor.HTTPHandler(h))
}

// Serve runs app on addr until ctx is cancelled.
func Serve(ctx context.Context, app *fiber.App, addr string) error {
	errc := make(chan error, 1)
	go func() {
		log.Info("HTTP API listening", "addr", addr)
		errc <- app.Listen(addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info("Shutting down HTTP API")
		return app.ShutdownWithContext(shutdownCtx)
	}
}

func (h *handler) context(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	if h.timeout > 0 {
		return context.WithTimeout(c.UserContext(), h.timeout)
	}
	return context.WithCancel(c.UserContext())
}

func (h *handler) version(c *fiber.Ctx) error {
	v, err := h.catalog.Version()
	if err != nil {
		return err
	}
	return c.JSON(v)
}

func (h *handler) speakers(c *fiber.Ctx) error {
	metas, err := h.catalog.Metas()
	if err != nil {
		return err
	}
	return c.JSON(metas)
}

func (h *handler) supportedDevices(c *fiber.Ctx) error {
	d, err := h.catalog.SupportedDevices()
	if err != nil {
		return err
	}
	return c.JSON(d)
}

func speakerParam(c *fiber.Ctx) (uint32, error) {
	raw := c.Query("speaker")
	if raw == "" {
		return 0, fiber.NewError(fiber.StatusBadRequest, "speaker is required")
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "speaker must be an unsigned integer")
	}
	return uint32(id), nil
}

func (h *handler) audioQuery(c *fiber.Ctx) error {
	id, err := speakerParam(c)
	if err != nil {
		return err
	}
	ctx, cancel := h.context(c)
	defer cancel()

	q, err := h.svc.Query(ctx, c.Query("text"), id, c.QueryBool("kana", false))
	if err != nil {
		return err
	}
	return c.JSON(q)
}

func (h *handler) synthesis(c *fiber.Ctx) error {
	id, err := speakerParam(c)
	if err != nil {
		return err
	}
	q, err := voicevox.DecodeAudioQuery(c.Body())
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	ctx, cancel := h.context(c)
	defer cancel()

	res, err := h.svc.Render(ctx, q, id, c.QueryBool("enable_interrogative_upspeak", true), "http")
	if err != nil {
		return err
	}
	return sendWAV(c, res)
}

func (h *handler) tts(c *fiber.Ctx) error {
	var req bus.Request
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	ctx, cancel := h.context(c)
	defer cancel()

	res, err := bus.Dispatch(ctx, h.svc, req, "http")
	if err != nil {
		return err
	}
	return sendWAV(c, res)
}

func sendWAV(c *fiber.Ctx, res *speech.Result) error {
	c.Set(fiber.HeaderContentType, "audio/wav")
	c.Set(bus.HeaderCacheHit, strconv.FormatBool(res.CacheHit))
	c.Set(bus.HeaderDuration, strconv.FormatInt(res.Info.Duration.Milliseconds(), 10))
	return c.Send(res.WAV)
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}

	code := bus.ErrorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case "BAD_REQUEST", "INVALID_TEXT":
		status = http.StatusBadRequest
	case "TIMEOUT":
		status = http.StatusGatewayTimeout
	case "UNAVAILABLE":
		status = http.StatusServiceUnavailable
	case voicevox.ResultInvalidSpeakerID.String(), voicevox.ResultParseKana.String(), voicevox.ResultInvalidUTF8Input.String():
		status = http.StatusUnprocessableEntity
	}
	log.Warn("HTTP request failed", "path", c.Path(), "status", status, "error", err)
	c.Set(bus.HeaderErrorCode, code)
	return c.Status(status).JSON(fiber.Map{"error": err.Error(), "code": code})
}
