package delivery

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"messenger-ws/internal/config"
	"messenger-ws/internal/core"
	"messenger-ws/internal/domain"
	"messenger-ws/internal/infrastructure/redis"
)

// ClientConn is the transport surface the gateway drives: read one event,
// write one event, enforce a liveness deadline. *websocket.Conn satisfies it.
type ClientConn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// Gateway owns the coordination components and runs the per-connection event
// loop. It is constructed once at server start and torn down at shutdown; no
// ambient singletons.
type Gateway struct {
	cfg       *config.Config
	registry  *core.Registry
	rooms     *core.RoomManager
	presence  *core.Presence
	scheduler *core.StatusScheduler
	dispatch  *core.Dispatcher
	typing    *core.TypingNotifier
	mirror    *redis.MirrorClient // optional
	relay     core.EventRelay     // optional
}

func NewGateway(cfg *config.Config, store domain.Storage, mirror *redis.MirrorClient, relay core.EventRelay) *Gateway {
	g := &Gateway{cfg: cfg, mirror: mirror, relay: relay}

	g.registry = core.NewRegistry()
	g.rooms = core.NewRoomManager(g.registry, store)
	g.presence = core.NewPresence(store, g.announcePresence)
	g.scheduler = core.NewStatusScheduler(core.StatusDelays{
		DeliveredMin: cfg.DeliveredDelayMin,
		DeliveredMax: cfg.DeliveredDelayMax,
		ReadMin:      cfg.ReadDelayMin,
		ReadMax:      cfg.ReadDelayMax,
	})
	g.dispatch = core.NewDispatcher(g.registry, g.rooms, store, g.scheduler, relay)

	var typingMirror core.TypingMirror
	if mirror != nil {
		typingMirror = mirror
	}
	g.typing = core.NewTypingNotifier(g.registry, g.rooms, typingMirror, relay)
	return g
}

// Close cancels every pending status transition. Live connections drain on
// their own when the server stops accepting.
func (g *Gateway) Close() {
	g.scheduler.Close()
}

// Registry exposes the connection registry for the REST surface.
func (g *Gateway) Registry() *core.Registry {
	return g.registry
}

// Presence exposes the aggregator for the REST surface.
func (g *Gateway) Presence() *core.Presence {
	return g.presence
}

// HandleConnection runs the event loop for one authenticated connection. The
// user identity arrives already verified (the auth collaborator runs before
// this layer); the session identity is client-chosen per tab.
func (g *Gateway) HandleConnection(c ClientConn, sessionID, userID string) {
	defer c.Close()

	ctx := context.Background()

	if _, err := uuid.Parse(sessionID); err != nil {
		log.Printf("Rejecting connection with malformed session ID %q", sessionID)
		g.sendError(c, domain.NewError(domain.ErrValidation, "malformed session ID"))
		return
	}

	connID := uuid.NewString()
	conn, err := g.registry.Register(connID, sessionID, userID, c)
	if err != nil {
		log.Printf("Rejecting connection for session %s: %v", sessionID, err)
		g.sendError(c, registerError(err))
		return
	}

	defer func() {
		joined := g.registry.Rooms(sessionID)
		sid, uid, released := g.registry.Release(connID)
		if !released {
			// A reconnect already superseded this transport; nothing to
			// recompute.
			return
		}
		g.presence.OnSessionEnd(ctx, uid, sid)
		if g.mirror != nil {
			for _, room := range joined {
				if err := g.mirror.RemoveRoomMember(ctx, room.String(), sid); err != nil {
					log.Printf("Failed to drop mirrored membership of %s: %v", room, err)
				}
			}
		}
		log.Printf("Connection %s closed (session %s, user %s)", connID, sid, uid)
	}()

	g.presence.OnSessionStart(ctx, userID, sessionID)

	if err := conn.Send(domain.NewServerEvent(domain.EventConnected, map[string]interface{}{
		"session_id": sessionID,
		"user_id":    userID,
	})); err != nil {
		log.Printf("Failed to send connected event to session %s: %v", sessionID, err)
	}

	// Heartbeat: any inbound event (ping included) refreshes the deadline. A
	// connection silent past the window is judged dead and falls out of the
	// read loop.
	for {
		if err := c.SetReadDeadline(time.Now().Add(g.cfg.HeartbeatTimeout)); err != nil {
			log.Printf("Failed to set read deadline for session %s: %v", sessionID, err)
		}

		var ev domain.ClientEvent
		if err := c.ReadJSON(&ev); err != nil {
			log.Printf("Read error for session %s: %v", sessionID, err)
			break
		}
		if g.handleEvent(ctx, conn, ev) {
			break
		}
	}
}

// handleEvent processes one inbound event. It reports whether the connection
// should be torn down (an explicit goOffline destroys the session the same
// way a disconnect does).
func (g *Gateway) handleEvent(ctx context.Context, conn *core.Connection, ev domain.ClientEvent) (closeConn bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic handling %s event: %v", ev.Type, r)
		}
	}()

	switch ev.Type {
	case domain.EventJoinGlobal:
		var p domain.JoinGlobalPayload
		if errp := domain.DecodePayload(ev, &p); errp != nil {
			g.sendErrorTo(conn, errp)
			return
		}
		if p.UserID != conn.UserID {
			g.sendErrorTo(conn, domain.NewError(domain.ErrAuth, "user_id does not match the session's user"))
			return
		}
		room, err := g.rooms.JoinGlobal(ctx, conn.SessionID, conn.UserID)
		if err != nil {
			log.Printf("Global join failed for session %s: %v", conn.SessionID, err)
			g.sendErrorTo(conn, domain.NewError(domain.ErrJoin, "failed to join global room"))
			return
		}
		g.mirrorJoin(ctx, room, conn)

	case domain.EventJoinPrivate:
		var p domain.JoinPrivatePayload
		if errp := domain.DecodePayload(ev, &p); errp != nil {
			g.sendErrorTo(conn, errp)
			return
		}
		room, err := g.rooms.JoinPrivate(ctx, conn.SessionID, conn.UserID, p.ConversationID)
		if err != nil {
			log.Printf("Join failed for session %s, conversation %s: %v", conn.SessionID, p.ConversationID, err)
			if errors.Is(err, domain.ErrConversationNotFound) {
				g.sendErrorTo(conn, domain.NewError(domain.ErrJoin, "conversation does not exist"))
			} else {
				g.sendErrorTo(conn, domain.NewError(domain.ErrJoin, "failed to join conversation"))
			}
			return
		}
		g.mirrorJoin(ctx, room, conn)

	case domain.EventSendMessage:
		var p domain.SendMessagePayload
		if errp := domain.DecodePayload(ev, &p); errp != nil {
			g.sendErrorTo(conn, errp)
			return
		}
		if _, errp := g.dispatch.Send(ctx, conn.SessionID, p); errp != nil {
			g.sendErrorTo(conn, errp)
		}

	case domain.EventTyping:
		var p domain.TypingPayload
		if errp := domain.DecodePayload(ev, &p); errp != nil {
			g.sendErrorTo(conn, errp)
			return
		}
		g.typing.Start(ctx, conn.SessionID, domain.TypingSignal{
			ConversationID: p.ConversationID,
			UserID:         p.UserID,
			Name:           p.Name,
		})

	case domain.EventStopTyping:
		var p domain.TypingPayload
		if errp := domain.DecodePayload(ev, &p); errp != nil {
			g.sendErrorTo(conn, errp)
			return
		}
		g.typing.Stop(ctx, conn.SessionID, domain.TypingSignal{
			ConversationID: p.ConversationID,
			UserID:         p.UserID,
		})

	case domain.EventGoOffline:
		var p domain.GoOfflinePayload
		if errp := domain.DecodePayload(ev, &p); errp != nil {
			g.sendErrorTo(conn, errp)
			return
		}
		if p.UserID != conn.UserID {
			g.sendErrorTo(conn, domain.NewError(domain.ErrAuth, "user_id does not match the session's user"))
			return
		}
		// Tear the connection down; the session and its room bindings are
		// destroyed by the same path a disconnect takes.
		return true

	case domain.EventPing:
		if err := conn.Send(domain.NewServerEvent(domain.EventPong, nil)); err != nil {
			log.Printf("Failed to send pong to session %s: %v", conn.SessionID, err)
		}

	default:
		log.Printf("Unrecognized event type %q from session %s", ev.Type, conn.SessionID)
		g.sendErrorTo(conn, domain.NewError(domain.ErrValidation, "unrecognized event type: "+ev.Type))
	}
	return
}

func (g *Gateway) mirrorJoin(ctx context.Context, room domain.RoomKey, conn *core.Connection) {
	if g.mirror == nil {
		return
	}
	if err := g.mirror.AddRoomMember(ctx, room.String(), conn.UserID, conn.SessionID); err != nil {
		log.Printf("Failed to mirror membership of %s: %v", room, err)
	}
}

// announcePresence broadcasts a boundary presence flip to every connection,
// mirrors it, and relays it to other instances.
func (g *Gateway) announcePresence(st domain.UserStatus) {
	ev := domain.NewServerEvent(domain.EventUserStatus, st)
	for _, conn := range g.registry.Connections() {
		if err := conn.Send(ev); err != nil {
			log.Printf("Failed to send userStatus to connection %s: %v", conn.ID, err)
		}
	}

	ctx := context.Background()
	if g.mirror != nil {
		if err := g.mirror.SetUserPresence(ctx, st.UserID, st.Online); err != nil {
			log.Printf("Failed to mirror presence of user %s: %v", st.UserID, err)
		}
	}
	if g.relay != nil {
		if err := g.relay.RelayUserStatus(ctx, st); err != nil {
			log.Printf("Failed to relay presence of user %s: %v", st.UserID, err)
		}
	}
}

func (g *Gateway) sendError(c ClientConn, errp *domain.ErrorPayload) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic sending error event: %v", r)
		}
	}()
	if err := c.WriteJSON(domain.NewServerEvent(domain.EventError, errp)); err != nil {
		log.Printf("Failed to send error event: %v", err)
	}
}

func (g *Gateway) sendErrorTo(conn *core.Connection, errp *domain.ErrorPayload) {
	if err := conn.Send(domain.NewServerEvent(domain.EventError, errp)); err != nil {
		log.Printf("Failed to send error event to session %s: %v", conn.SessionID, err)
	}
}

func registerError(err error) *domain.ErrorPayload {
	if errors.Is(err, core.ErrIdentityMismatch) {
		return domain.NewError(domain.ErrAuth, "session is bound to a different user")
	}
	return domain.NewError(domain.ErrValidation, "connection is missing its identity")
}
