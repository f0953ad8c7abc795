package delivery

import (
	"github.com/gofiber/fiber/v2"
)

// handleGetUserPresence reports a user's aggregate presence: the in-memory
// aggregator when this instance has sessions for the user, the Redis mirror
// otherwise.
func (s *Server) handleGetUserPresence(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Missing user ID",
		})
	}

	if s.gateway.Presence().IsOnline(userID) {
		return c.JSON(fiber.Map{
			"success": true,
			"data": fiber.Map{
				"user_id":         userID,
				"online":          true,
				"active_sessions": s.gateway.Presence().ActiveSessionCount(userID),
			},
		})
	}

	if s.mirror == nil {
		return c.JSON(fiber.Map{
			"success": true,
			"data":    fiber.Map{"user_id": userID, "online": false},
		})
	}

	presence, err := s.mirror.UserPresence(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to read presence",
			"error":   err.Error(),
		})
	}
	presence["user_id"] = userID
	return c.JSON(fiber.Map{
		"success": true,
		"data":    presence,
	})
}

// handleGetRoomMembers returns the mirrored membership of a room. The room
// parameter uses the broadcast key form: "global" or "conversation:<id>".
func (s *Server) handleGetRoomMembers(c *fiber.Ctx) error {
	room := c.Params("room")
	if s.mirror == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"message": "Membership mirror is not configured",
		})
	}

	members, err := s.mirror.RoomMembers(c.Context(), room)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to read room members",
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    members,
	})
}

// handleGetTypingUsers returns the users mirrored as currently typing in a
// conversation.
func (s *Server) handleGetTypingUsers(c *fiber.Ctx) error {
	conversationID := c.Params("conversation_id")
	if s.mirror == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"message": "Typing mirror is not configured",
		})
	}

	users, err := s.mirror.TypingUsers(c.Context(), conversationID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to read typing users",
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"conversation_id": conversationID,
			"typing_users":    users,
		},
	})
}
