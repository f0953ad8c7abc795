package delivery

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"messenger-ws/internal/config"
	redismirror "messenger-ws/internal/infrastructure/redis"
)

type Server struct {
	config  *config.Config
	gateway *Gateway
	mirror  *redismirror.MirrorClient
}

func NewServer(config *config.Config, gateway *Gateway, mirror *redismirror.MirrorClient) *Server {
	return &Server{
		config:  config,
		gateway: gateway,
		mirror:  mirror,
	}
}

func (s *Server) Start() error {
	app := fiber.New(fiber.Config{
		AppName: "Messenger Presence & Room Coordination Server",
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} ${latency}\n",
	}))

	corsConfig := cors.Config{
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Requested-With,Access-Control-Request-Method,Access-Control-Request-Headers",
		ExposeHeaders:    "Content-Length,Access-Control-Allow-Origin,Access-Control-Allow-Headers,Content-Type",
		AllowCredentials: s.config.AllowCredentials,
		MaxAge:           86400,
	}

	if s.config.IsProduction() {
		corsConfig.AllowOrigins = s.config.GetCORSOrigins()
		log.Printf("CORS configured for production with origins: %s", corsConfig.AllowOrigins)
	} else {
		corsConfig.AllowOrigins = "*"
		// Never allow credentials with a wildcard origin
		corsConfig.AllowCredentials = false
		log.Printf("CORS configured for development with wildcard origin")
	}

	app.Use(cors.New(corsConfig))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":      "ok",
			"message":     "Messenger coordination server is running",
			"port":        s.config.Port,
			"environment": s.config.Environment,
		})
	})

	// REST API routes
	api := app.Group("/api")
	api.Get("/users/:user_id/presence", s.handleGetUserPresence)
	api.Get("/rooms/:room/members", s.handleGetRoomMembers)
	api.Get("/conversations/:conversation_id/typing", s.handleGetTypingUsers)

	// WebSocket middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// The auth collaborator verifies the token upstream and rewrites the
	// path with the bound user ID before the request reaches this route.
	app.Get("/ws/:session_id/:user_id", websocket.New(func(c *websocket.Conn) {
		sessionID, userID := c.Params("session_id"), c.Params("user_id")
		s.gateway.HandleConnection(c, sessionID, userID)
	}))

	log.Printf("Messenger coordination server starting on port %s", s.config.Port)
	return app.Listen(":" + s.config.Port)
}
