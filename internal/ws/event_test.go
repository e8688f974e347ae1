package ws

import (
	"encoding/json"
	"testing"
)

func TestEventEncode(t *testing.T) {
	payload, err := Event{
		Name: EventNewMessage,
		Data: map[string]interface{}{"conversationId": 7},
	}.Encode()
	if err != nil {
		t.Fatal(err)
	}

	var decoded struct {
		Event string                 `json:"event"`
		Data  map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Event != "newMessage" {
		t.Errorf("event: got %q", decoded.Event)
	}
	if decoded.Data["conversationId"].(float64) != 7 {
		t.Errorf("data: %+v", decoded.Data)
	}
}

func TestErrorEvent(t *testing.T) {
	event := ErrorEvent("authentication required")
	if event.Name != EventError {
		t.Errorf("name: got %q", event.Name)
	}
	data, ok := event.Data.(map[string]string)
	if !ok || data["message"] != "authentication required" {
		t.Errorf("data: %+v", event.Data)
	}
}

func TestChannelNames(t *testing.T) {
	if got := ConversationChannel(42); got != "conversation:42" {
		t.Errorf("conversation channel: got %q", got)
	}
	if got := UserChannel(7); got != "user:7" {
		t.Errorf("user channel: got %q", got)
	}
}
