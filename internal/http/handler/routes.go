package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"pasteapi/internal/ident"
	"pasteapi/internal/model"
	"pasteapi/internal/service"
	"pasteapi/internal/storage"
)

// LanguageHeader carries the paste's language tag on upload and plain retrieval.
const LanguageHeader = "X-Language"

// pasteView is the JSON rendering of a paste.
type pasteView struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Meta    string `json:"meta"`
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, backend storage.Backend, svc service.PasteService, idLength int) {
	app.Get("/health", HealthCheck(backend))
	app.Get("/healthz", LivenessProbe())

	create := CreatePaste(svc)
	app.Post("/api/create", create)
	app.Post("/create", create)

	get := GetPaste(svc, idLength)
	app.Get("/api/:id/raw", GetPasteRaw(svc, idLength))
	app.Get("/api/:id", get)
	app.Get("/b/:id", get)
}

// HealthCheck godoc
// @Summary  Storage health
// @Tags     health
// @Produce  json
// @Success  200 {object} map[string]string
// @Failure  503 {object} errorPayload
// @Router   /health [get]
func HealthCheck(backend storage.Backend) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := backend.(storage.Pinger)
		if !ok {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			setError(c, err)
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe answers 200 as long as the process serves requests.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// CreatePaste godoc
// @Summary  Create a paste
// @Tags     pastes
// @Accept   plain
// @Produce  plain
// @Param    X-Language header string false "Language tag" default(plaintext)
// @Param    body body string true "Raw paste content"
// @Success  201 {string} string "<id> <bytes>"
// @Failure  400 {object} errorPayload
// @Failure  413 {object} errorPayload
// @Failure  422 {object} errorPayload
// @Failure  503 {object} errorPayload
// @Router   /api/create [post]
func CreatePaste(svc service.PasteService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		body, size := requestBody(c)

		res, err := svc.Create(c.UserContext(), service.CreateInput{
			Body: body,
			Meta: c.Get(LanguageHeader),
			Size: size,
		})
		if err != nil {
			return writeServiceError(c, err)
		}

		c.Location("/api/" + res.ID)
		c.Type("txt", "utf-8")
		return c.Status(fiber.StatusCreated).SendString(fmt.Sprintf("%s %d", res.ID, res.Bytes))
	}
}

// GetPaste godoc
// @Summary  Retrieve a paste
// @Description Responds with raw bytes for Accept: text/plain, JSON otherwise.
// @Tags     pastes
// @Produce  json,plain
// @Param    id path string true "Paste id"
// @Success  200 {object} pasteView
// @Failure  400 {object} errorPayload
// @Failure  404 {object} errorPayload
// @Router   /api/{id} [get]
func GetPaste(svc service.PasteService, idLength int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := lookup(c, svc, idLength)
		if err != nil || p == nil {
			return err
		}

		if c.Accepts(fiber.MIMEApplicationJSON, fiber.MIMETextPlain) == fiber.MIMETextPlain {
			return sendRaw(c, p)
		}
		return c.JSON(pasteView{
			ID:      p.ID,
			Content: strings.ToValidUTF8(string(p.Content), "\uFFFD"),
			Meta:    p.Meta,
		})
	}
}

// GetPasteRaw godoc
// @Summary  Retrieve raw paste content
// @Tags     pastes
// @Produce  plain
// @Param    id path string true "Paste id"
// @Success  200 {string} string
// @Failure  404 {object} errorPayload
// @Router   /api/{id}/raw [get]
func GetPasteRaw(svc service.PasteService, idLength int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := lookup(c, svc, idLength)
		if err != nil || p == nil {
			return err
		}
		return sendRaw(c, p)
	}
}

// lookup validates the id and fetches the paste. A nil paste with a nil
// error means the error response has already been written.
func lookup(c *fiber.Ctx, svc service.PasteService, idLength int) (*model.Paste, error) {
	id := c.Params("id")
	if !ident.Valid(id, idLength) {
		return nil, writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
	}
	p, err := svc.Get(c.UserContext(), id)
	if err != nil {
		return nil, writeServiceError(c, err)
	}
	return p, nil
}

func sendRaw(c *fiber.Ctx, p *model.Paste) error {
	c.Set(LanguageHeader, p.Meta)
	c.Type("txt", "utf-8")
	return c.Status(fiber.StatusOK).Send(p.Content)
}

// requestBody prefers the streamed body when the server runs with
// StreamRequestBody. size is -1 when the client sent no Content-Length.
func requestBody(c *fiber.Ctx) (io.Reader, int64) {
	size := int64(c.Request().Header.ContentLength())
	if size < 0 {
		size = -1
	}
	if s := c.Context().RequestBodyStream(); s != nil {
		return s, size
	}
	body := c.Body()
	return bytes.NewReader(body), int64(len(body))
}
