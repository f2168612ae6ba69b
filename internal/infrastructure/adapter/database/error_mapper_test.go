package database

import (
	"errors"
	"testing"

	domainErr "github.com/amirhossein-jamali/tx-coordinator/internal/domain/error"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestErrorMapper_MapError(t *testing.T) {
	mapper := NewErrorMapper()

	testCases := []struct {
		name     string
		err      error
		expected error
	}{
		{"NilPassesThrough", nil, nil},
		{"RecordNotFound", gorm.ErrRecordNotFound, domainErr.ErrNotFound},
		{"ConnectionRefused", errors.New("dial tcp: connection refused"), domainErr.ErrDatabaseConnection},
		{"ConnectionReset", errors.New("read: connection reset by peer"), domainErr.ErrDatabaseConnection},
		{"Timeout", errors.New("context deadline exceeded"), domainErr.ErrDatabaseConnection},
		{"UnknownDriverError", errors.New("constraint violation"), domainErr.ErrInternalServer},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := mapper.MapError(tc.err, "test operation")
			if tc.expected == nil {
				assert.NoError(t, mapped)
				return
			}
			assert.ErrorIs(t, mapped, tc.expected)
		})
	}
}

func TestErrorMapper_KeepsOperationContext(t *testing.T) {
	mapper := NewErrorMapper()

	mapped := mapper.MapError(gorm.ErrRecordNotFound, "get order ord-9")
	assert.ErrorIs(t, mapped, domainErr.ErrNotFound)
	assert.Contains(t, mapped.Error(), "get order ord-9")
}
