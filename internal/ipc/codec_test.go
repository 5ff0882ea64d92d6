package ipc

import (
	"strings"
	"testing"
)

func frame(s string) string { return s + "\x00" }

func TestDecodeSingleChunk(t *testing.T) {
	var d Decoder
	events := d.Write([]byte(frame(`{"type":"starting"}`) + frame(`{"type":"pong"}`)))
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != EventStarting || events[1].Type != EventPong {
		t.Fatalf("unexpected types: %s, %s", events[0].Type, events[1].Type)
	}
	if d.Pending() != 0 {
		t.Fatalf("expected empty buffer, %d bytes pending", d.Pending())
	}
}

func TestReassemblyAcrossArbitraryChunks(t *testing.T) {
	stream := frame(`{"type":"connected","data":{"user":{"id":"1555@s.whatsapp.net"}}}`) +
		frame(`{"type":"message","data":{"messageId":"m1","chatId":"c1","senderId":"s1","text":"hello","timestamp":1717320000,"isGroup":false,"isSelf":false}}`) +
		frame(`{"type":"send_result","data":{"success":true,"jid":"c1","messageId":"m2"}}`)

	decodeAll := func(chunks []string) []Event {
		var d Decoder
		var events []Event
		for _, chunk := range chunks {
			events = append(events, d.Write([]byte(chunk))...)
		}
		return events
	}

	whole := decodeAll([]string{stream})

	// Split points chosen to land inside records, not on delimiters.
	for _, cut := range [][2]int{{10, 90}, {1, len(stream) - 1}, {40, 41}} {
		parts := []string{stream[:cut[0]], stream[cut[0]:cut[1]], stream[cut[1]:]}
		got := decodeAll(parts)
		if len(got) != len(whole) {
			t.Fatalf("cut %v: expected %d events, got %d", cut, len(whole), len(got))
		}
		for i := range got {
			if got[i].Type != whole[i].Type {
				t.Fatalf("cut %v: event %d type %s != %s", cut, i, got[i].Type, whole[i].Type)
			}
		}
	}

	if whole[1].Message == nil || whole[1].Message.Text != "hello" {
		t.Fatalf("message payload lost: %+v", whole[1])
	}
	if whole[2].SendResult == nil || !whole[2].SendResult.Success {
		t.Fatalf("send_result payload lost: %+v", whole[2])
	}
}

func TestMalformedRecordBecomesErrorEventAndStreamContinues(t *testing.T) {
	var d Decoder
	events := d.Write([]byte(frame(`{not json`) + frame(`{"type":"pong"}`)))
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != EventError {
		t.Fatalf("expected error event first, got %s", events[0].Type)
	}
	if events[0].Err == nil || !strings.Contains(events[0].Err.Raw, "{not json") {
		t.Fatalf("error event should carry the raw record: %+v", events[0].Err)
	}
	if events[1].Type != EventPong {
		t.Fatalf("stream should continue after malformed record, got %s", events[1].Type)
	}
}

func TestPartialTrailingRecordStaysBuffered(t *testing.T) {
	var d Decoder
	events := d.Write([]byte(`{"type":"star`))
	if len(events) != 0 {
		t.Fatalf("no delimiter seen, expected no events, got %d", len(events))
	}
	if d.Pending() == 0 {
		t.Fatal("partial record should remain buffered")
	}
	events = d.Write([]byte("ting\"}\x00"))
	if len(events) != 1 || events[0].Type != EventStarting {
		t.Fatalf("expected completed starting event, got %+v", events)
	}
}

func TestEmptyRecordsAreSkipped(t *testing.T) {
	var d Decoder
	events := d.Write([]byte("\x00 \x00" + frame(`{"type":"pong"}`)))
	if len(events) != 1 || events[0].Type != EventPong {
		t.Fatalf("expected only the pong, got %+v", events)
	}
}

func TestMessagePayloadTime(t *testing.T) {
	p := MessagePayload{Timestamp: 1717320000}
	if got := p.Time().Unix(); got != 1717320000 {
		t.Fatalf("expected unix 1717320000, got %d", got)
	}
	if (MessagePayload{}).Time().IsZero() {
		t.Fatal("missing timestamp should fall back to now")
	}
}

func TestQuotedMessageDecodes(t *testing.T) {
	var d Decoder
	events := d.Write([]byte(frame(`{"type":"message","data":{"messageId":"m","chatId":"c","senderId":"s","text":"t","quotedMessage":{"senderId":"me@s.whatsapp.net","text":"orig"}}}`)))
	if len(events) != 1 || events[0].Message == nil {
		t.Fatalf("unexpected events: %+v", events)
	}
	q := events[0].Message.Quoted
	if q == nil || q.SenderID != "me@s.whatsapp.net" {
		t.Fatalf("quoted message lost: %+v", q)
	}
}

func TestEncodeCommand(t *testing.T) {
	data, err := EncodeCommand(SendMessage("c1", "hi", "id-1"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if data[len(data)-1] != 0 {
		t.Fatal("command frame must end with NUL")
	}
	body := string(data[:len(data)-1])
	for _, want := range []string{`"action":"send_message"`, `"jid":"c1"`, `"messageId":"id-1"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("frame missing %s: %s", want, body)
		}
	}

	if _, err := EncodeCommand(Command{Action: "reboot"}); err == nil {
		t.Fatal("unknown action should be rejected, not serialized")
	}
}
