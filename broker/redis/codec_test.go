package redis

import (
	"testing"

	"github.com/assaka/daino-sub010/broker"
	"github.com/assaka/daino-sub010/id"
)

func TestRefCodec(t *testing.T) {
	ref := broker.Ref{JobID: id.NewJobID(), Type: "import:products"}

	data, err := encodeRef(ref)
	if err != nil {
		t.Fatal(err)
	}
	got, err := decodeRef(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.JobID.String() != ref.JobID.String() || got.Type != ref.Type {
		t.Errorf("decoded %+v, want %+v", got, ref)
	}
}

func TestDecodeRefRejectsGarbage(t *testing.T) {
	if _, err := decodeRef([]byte("not msgpack")); err == nil {
		t.Error("expected error for garbage input")
	}
	data, _ := encodeRef(broker.Ref{Type: "x"})
	if _, err := decodeRef(data); err == nil {
		t.Error("expected error for a ref without a job id")
	}
}

func TestStreamKey(t *testing.T) {
	if got := streamKey("email:notify"); got != "dispatch:jobs:email:notify" {
		t.Errorf("streamKey = %q", got)
	}
}
