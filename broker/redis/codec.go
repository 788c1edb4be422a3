package redis

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/assaka/daino-sub010/broker"
	"github.com/assaka/daino-sub010/id"
)

// refField is the stream entry field holding the encoded Ref.
const refField = "ref"

// wireRef is the MessagePack form of broker.Ref.
type wireRef struct {
	JobID string `msgpack:"job_id"`
	Type  string `msgpack:"type"`
}

func encodeRef(ref broker.Ref) ([]byte, error) {
	return msgpack.Marshal(wireRef{JobID: ref.JobID.String(), Type: ref.Type})
}

func decodeRef(data []byte) (broker.Ref, error) {
	var w wireRef
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return broker.Ref{}, fmt.Errorf("decode ref: %w", err)
	}
	jobID, err := id.ParseJobID(w.JobID)
	if err != nil {
		return broker.Ref{}, fmt.Errorf("decode ref: %w", err)
	}
	return broker.Ref{JobID: jobID, Type: w.Type}, nil
}

// streamKey returns the stream for a job type: dispatch:jobs:{type}
func streamKey(jobType string) string { return "dispatch:jobs:" + jobType }
