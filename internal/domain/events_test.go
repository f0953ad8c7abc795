package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodePayload_ValidSendMessage(t *testing.T) {
	req := require.New(t)
	ev := ClientEvent{
		Type: EventSendMessage,
		Data: json.RawMessage(`{"conversation_id":"c1","sender_id":"u1","content":"hi","temp_id":"t1"}`),
	}

	var p SendMessagePayload
	req.Nil(DecodePayload(ev, &p))
	req.Equal("c1", p.ConversationID)
	req.Equal("u1", p.SenderID)
	req.Equal("hi", p.Content)
	req.Equal("t1", p.TempID)
}

func TestDecodePayload_MissingPayload(t *testing.T) {
	req := require.New(t)
	var p JoinGlobalPayload
	errp := DecodePayload(ClientEvent{Type: EventJoinGlobal}, &p)
	req.NotNil(errp)
	req.Equal(ErrValidation, errp.Type)
}

func TestDecodePayload_MalformedJSON(t *testing.T) {
	req := require.New(t)
	var p JoinPrivatePayload
	errp := DecodePayload(ClientEvent{Type: EventJoinPrivate, Data: json.RawMessage(`{"conversation_id"`)}, &p)
	req.NotNil(errp)
	req.Equal(ErrValidation, errp.Type)
}

func TestDecodePayload_MissingRequiredField(t *testing.T) {
	req := require.New(t)
	var p SendMessagePayload
	errp := DecodePayload(ClientEvent{
		Type: EventSendMessage,
		Data: json.RawMessage(`{"conversation_id":"c1","sender_id":"u1"}`),
	}, &p)
	req.NotNil(errp)
	req.Equal(ErrValidation, errp.Type)
}

func TestDeliveryStatus_Ordering(t *testing.T) {
	req := require.New(t)
	req.True(StatusDelivered.After(StatusSent))
	req.True(StatusRead.After(StatusDelivered))
	req.True(StatusRead.After(StatusSent))
	req.False(StatusSent.After(StatusDelivered))
	req.False(StatusSent.After(StatusSent))
}

func TestRoomKey_String(t *testing.T) {
	req := require.New(t)
	req.Equal("global", GlobalRoom().String())
	req.Equal("conversation:c1", ConversationRoom("c1").String())
	req.True(GlobalRoom().IsGlobal())
	req.False(ConversationRoom("c1").IsGlobal())

	// Room keys are comparable membership keys
	req.Equal(ConversationRoom("c1"), ConversationRoom("c1"))
	req.NotEqual(GlobalRoom(), ConversationRoom("c1"))
}
