package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	CalibrationID ID
	BatchID       ID
)

func (id CalibrationID) String() string { return ID(id).String() }
func (id BatchID) String() string       { return ID(id).String() }

// NewCalibrationID creates an identifier for one calibration search
func NewCalibrationID() CalibrationID { return CalibrationID(NewID()) }

// NewBatchID creates an identifier for one operating-characteristics batch
func NewBatchID() BatchID { return BatchID(NewID()) }

// ParseCalibrationID parses a string into CalibrationID
func ParseCalibrationID(s string) (CalibrationID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("calibration ID cannot be empty")
	}
	return CalibrationID(s), nil
}
