package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusAmbiguous ExecutionStatus = "ambiguous"
)

var (
	// ErrExecutionNotFound is returned when no status entry exists for an action id
	ErrExecutionNotFound = errors.New("execution not found")
	// ErrActionInFlight is returned when claiming an action id that is pending or finished
	ErrActionInFlight = errors.New("action already submitted")
)

// ExecutionCache is the short-lived status entry of an action. It is claimed before
// submission so that one action id is never submitted twice concurrently.
type ExecutionCache struct {
	ActionID        string          `json:"action_id"`
	ChainID         int64           `json:"chain_id"`
	Status          ExecutionStatus `json:"status"`
	Path            ExecutionPath   `json:"path,omitempty"`
	TransactionHash string          `json:"transaction_hash,omitempty"`
	UserOpHash      string          `json:"user_op_hash,omitempty"`
	ErrorKind       string          `json:"error_kind,omitempty"`
	Error           string          `json:"error,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Claimable reports whether a new submission may take over this action id
func (c *ExecutionCache) Claimable() bool {
	return c == nil || c.Status == ExecutionStatusFailed
}

// ExecutionRecord is the persisted history entry of one Execute call
type ExecutionRecord struct {
	ID              uuid.UUID       `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ActionID        string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"actionId"`
	OwnerAddress    string          `gorm:"type:varchar(42);not null" json:"ownerAddress"`
	AccountAddress  string          `gorm:"type:varchar(42)" json:"accountAddress,omitempty"`
	ChainID         int64           `gorm:"not null" json:"chainId"`
	Status          ExecutionStatus `gorm:"type:varchar(16);not null" json:"status"`
	Path            ExecutionPath   `gorm:"type:varchar(16)" json:"path,omitempty"`
	Calls           json.RawMessage `gorm:"type:jsonb;not null" json:"calls"`
	TransactionHash string          `gorm:"type:varchar(66)" json:"transactionHash,omitempty"`
	UserOpHash      string          `gorm:"type:varchar(66)" json:"userOpHash,omitempty"`
	GasUsed         uint64          `json:"gasUsed"`
	FallbackReason  string          `gorm:"type:varchar(64)" json:"fallbackReason,omitempty"`
	ErrorKind       string          `gorm:"type:varchar(64)" json:"errorKind,omitempty"`
	ErrMsg          string          `gorm:"type:text" json:"errMsg,omitempty"`
	CreatedAt       time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt       time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (ExecutionRecord) TableName() string {
	return "executions"
}

// GetCalls returns the stored batch as typed calls
func (r *ExecutionRecord) GetCalls() ([]CallRequest, error) {
	var calls []CallRequest
	if err := json.Unmarshal(r.Calls, &calls); err != nil {
		return nil, fmt.Errorf("failed to unmarshal calls: %w", err)
	}
	return calls, nil
}
