package transfer

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	serrors "github.com/trueLoving/Stationuli/internal/errors"
)

func TestEncodeWireFormat(t *testing.T) {
	b, err := Encode(StartTransfer{FileName: "a.txt", FileSize: 12, TotalChunks: 1})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := map[string]any{
		"type":         "start_transfer",
		"file_name":    "a.txt",
		"file_size":    float64(12),
		"total_chunks": float64(1),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v; want %v", got, want)
	}

	b, err = Encode(Complete{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(b) != `{"type":"complete"}` {
		t.Errorf("complete encodes as %s", b)
	}

	b, err = Encode(Chunk{ChunkID: 2, Data: []byte("hi")})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(b) != `{"type":"chunk","chunk_id":2,"data":"aGk="}` {
		t.Errorf("chunk encodes as %s", b)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	msgs := []Message{
		StartTransfer{FileName: "x", FileSize: 3, TotalChunks: 1},
		Chunk{ChunkID: 0, Data: []byte{1, 2, 3}},
		Complete{},
		ErrorMessage{Message: "disk full"},
	}

	for _, m := range msgs {
		b, err := Encode(m)
		if err != nil {
			t.Fatalf("Encode(%T): %v", m, err)
		}
		got, err := Decode(b)
		if err != nil {
			t.Fatalf("Decode(%s): %v", b, err)
		}
		if !reflect.DeepEqual(got, m) {
			t.Errorf("got %#v; want %#v", got, m)
		}
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"ping"}`))
	if !errors.Is(err, serrors.ErrUnknownMessage) {
		t.Fatalf("got %v; want ErrUnknownMessage", err)
	}
	if !serrors.IsProtocol(err) {
		t.Errorf("expected ProtocolError, got %T", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, in := range []string{``, `not json`, `{"type":"chunk","chunk_id":"x"}`} {
		if _, err := Decode([]byte(in)); !serrors.IsProtocol(err) {
			t.Errorf("Decode(%q) = %v; want ProtocolError", in, err)
		}
	}
}
