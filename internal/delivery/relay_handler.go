package delivery

import (
	"log"

	"messenger-ws/internal/domain"
)

// The gateway doubles as the Kafka relay handler: events published by other
// instances are re-broadcast into this instance's local rooms. Presence and
// membership remain authoritative only in-process; the relay just widens
// event visibility.

func (g *Gateway) HandleRemoteMessage(msg domain.Message) {
	defer recoverRelay("message")

	room := g.rooms.RoomForConversation(msg.ConversationID)
	sent := g.rooms.Broadcast(room, domain.NewServerEvent(domain.EventMessage, &msg))
	if sent > 0 {
		log.Printf("Re-broadcast relayed message %s to %d local subscribers", msg.ID, sent)
	}
}

func (g *Gateway) HandleRemoteStatus(st domain.MessageStatus) {
	defer recoverRelay("status")

	room := g.rooms.RoomForConversation(st.ConversationID)
	g.rooms.Broadcast(room, domain.NewServerEvent(domain.EventMessageStatus, st))
}

func (g *Gateway) HandleRemoteTyping(sig domain.TypingSignal, stopped bool) {
	defer recoverRelay("typing")

	eventType := domain.EventUserTyping
	if stopped {
		eventType = domain.EventUserStoppedTyping
	}
	room := g.rooms.RoomForConversation(sig.ConversationID)
	g.rooms.Broadcast(room, domain.NewServerEvent(eventType, sig))
}

func (g *Gateway) HandleRemoteUserStatus(st domain.UserStatus) {
	defer recoverRelay("user status")

	ev := domain.NewServerEvent(domain.EventUserStatus, st)
	for _, conn := range g.registry.Connections() {
		if err := conn.Send(ev); err != nil {
			log.Printf("Failed to forward relayed userStatus to connection %s: %v", conn.ID, err)
		}
	}
}

func recoverRelay(kind string) {
	if r := recover(); r != nil {
		log.Printf("Recovered from panic handling relayed %s event: %v", kind, r)
	}
}
