package internal

import (
	"bytes"
	"testing"

	"github.com/driftfs/itemcache/itemcache"
	"github.com/driftfs/itemcache/key"
)

func TestCommandSerializeRoundTrip(t *testing.T) {
	c := Command{
		Type:           CommandTRelease,
		Start:          key.Key{Major: 5},
		End:            key.Key{Major: 50},
		Mode:           itemcache.Write,
		TimeoutSeconds: 30,
		OwnerID:        []byte{1, 2, 3, 4, 5, 6, 7, 8},
	}
	data := c.Serialize()
	if len(data) != c.SizeBytes() {
		t.Fatalf("len(data) = %d, want SizeBytes() = %d", len(data), c.SizeBytes())
	}

	var got Command
	if err := got.Deserialize(data); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got.Type != c.Type || key.Compare(got.Start, c.Start) != 0 || key.Compare(got.End, c.End) != 0 ||
		got.Mode != c.Mode || got.TimeoutSeconds != c.TimeoutSeconds || !bytes.Equal(got.OwnerID, c.OwnerID) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, c)
	}
}

func TestCommandDeserializeRejectsShortData(t *testing.T) {
	var c Command
	if err := c.Deserialize([]byte{1, 2, 3}); err == nil {
		t.Fatalf("Deserialize of short data should fail")
	}
}

func TestResultSerializeRoundTrip(t *testing.T) {
	r := Result{Ok: true, OwnerID: []byte{9, 9, 9}}
	data := r.Serialize()

	var got Result
	if err := got.Deserialize(data); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got.Ok != r.Ok || !bytes.Equal(got.OwnerID, r.OwnerID) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, r)
	}
}
