package entity

import "time"

type IdempotencyState string

const (
	IdempotencyInProgress IdempotencyState = "IN_PROGRESS"
	IdempotencySuccess    IdempotencyState = "SUCCESS"
	IdempotencyFailed     IdempotencyState = "FAILED"
)

// IdempotencyRecord is keyed by the client-supplied idempotency key.
// ResponseData and StatusCode are only populated once State is SUCCESS.
type IdempotencyRecord struct {
	Key          string           `db:"key"`
	State        IdempotencyState `db:"state"`
	RequestHash  string           `db:"request_hash"`
	ResponseData []byte           `db:"response_data"`
	StatusCode   *int             `db:"status_code"`
	CreatedAt    time.Time        `db:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at"`
	ExpiresAt    time.Time        `db:"expires_at"`
}

// Terminal reports whether the record has been finalized.
func (r *IdempotencyRecord) Terminal() bool {
	return r.State == IdempotencySuccess || r.State == IdempotencyFailed
}
