package server

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/log"

	"github.com/loreleibot/lorelei/gateway"
)

// Server exposes a small HTTP status surface over the live session:
// liveness, connection state and cache sizes.
type Server struct {
	router  *fiber.App
	session *gateway.Session
}

func NewServer(session *gateway.Session) *Server {
	return &Server{
		router:  fiber.New(),
		session: session,
	}
}

func (server *Server) setupRouter() {
	router := fiber.New()
	router.Get("/healthz", func(c fiber.Ctx) error {
		return c.SendString("ok")
	})
	router.Get("/status", func(c fiber.Ctx) error {
		guilds, channels, threads := server.session.Store().Counts()
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     server.session.Status(),
			"latency_ms": server.session.Latency().Milliseconds(),
			"guilds":     guilds,
			"channels":   channels,
			"threads":    threads,
		})
	})
	server.router = router
}

func (server *Server) StartServer(ctx context.Context, addr string) {
	log.Info("status server start at ", addr)
	server.setupRouter()
	server.router.Listen(addr, fiber.ListenConfig{
		GracefulContext: ctx,
		OnShutdownSuccess: func() {
			log.Info("status server stopped.")
		},
	})
}
