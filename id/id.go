// Package id provides the TypeID identifiers used for jobs, cron
// definitions, execution records, workers and job claims.
//
// An ID renders as "prefix_suffix" where the suffix is a UUIDv7 encoded in
// base32, so IDs of one kind sort by creation time.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix is the entity tag carried by an ID.
type Prefix string

const (
	PrefixJob       Prefix = "job"
	PrefixCron      Prefix = "cron"
	PrefixExecution Prefix = "exec"
	PrefixWorker    Prefix = "wkr"
	PrefixClaim     Prefix = "clm"
)

// ID is a prefix-qualified identifier. The zero value is Nil and stores as
// SQL NULL.
//
//nolint:recvcheck // UnmarshalText and Scan need pointer receivers.
type ID struct {
	tid   typeid.TypeID
	valid bool
}

// Nil is the empty ID.
var Nil ID

// JobID identifies a job record.
type JobID = ID

// CronID identifies a cron definition.
type CronID = ID

// ExecutionID identifies an execution history record.
type ExecutionID = ID

// WorkerID identifies a poller or broker worker process.
type WorkerID = ID

// ClaimID identifies one claim on a job. Every claim gets a fresh one, so
// a holder whose claim was revoked cannot write to a later claim of the
// same job even from the same process.
type ClaimID = ID

// New generates an ID with the given prefix. An invalid prefix is a
// programming error and panics.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: generate %q: %v", prefix, err))
	}
	return ID{tid: tid, valid: true}
}

func NewJobID() ID       { return New(PrefixJob) }
func NewCronID() ID      { return New(PrefixCron) }
func NewExecutionID() ID { return New(PrefixExecution) }
func NewWorkerID() ID    { return New(PrefixWorker) }
func NewClaimID() ID     { return New(PrefixClaim) }

// Parse decodes any TypeID string.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse: empty string")
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{tid: tid, valid: true}, nil
}

// ParseWithPrefix decodes s and rejects it unless it carries want.
func ParseWithPrefix(s string, want Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if got := parsed.Prefix(); got != want {
		return Nil, fmt.Errorf("id: parse %q: prefix %q, want %q", s, got, want)
	}
	return parsed, nil
}

// MustParse panics when s is not a valid ID. Intended for fixtures.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return parsed
}

func ParseJobID(s string) (ID, error)       { return ParseWithPrefix(s, PrefixJob) }
func ParseCronID(s string) (ID, error)      { return ParseWithPrefix(s, PrefixCron) }
func ParseExecutionID(s string) (ID, error) { return ParseWithPrefix(s, PrefixExecution) }
func ParseWorkerID(s string) (ID, error)    { return ParseWithPrefix(s, PrefixWorker) }
func ParseClaimID(s string) (ID, error)     { return ParseWithPrefix(s, PrefixClaim) }

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.tid.String()
}

// Prefix returns the entity tag, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.tid.Prefix())
}

// IsNil reports whether i is the zero value.
func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields Nil.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // NULL for optional references
	}
	return i.tid.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T", src)
	}
}
