package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ProductID string `validate:"required"`
	Quantity  int    `validate:"gte=1,lte=100"`
	BaseURL   string `validate:"omitempty,url"`
}

func TestValidate_OK(t *testing.T) {
	err := Validate(sample{ProductID: "p-1", Quantity: 2})
	assert.NoError(t, err)
}

func TestValidate_MissingRequired(t *testing.T) {
	err := Validate(sample{Quantity: 1})
	require.Error(t, err)

	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Contains(t, valErr.Fields(), "ProductID")
	assert.Equal(t, "is required", valErr.Fields()["ProductID"])
}

func TestValidate_RangeViolations(t *testing.T) {
	err := Validate(sample{ProductID: "p-1", Quantity: 0})
	require.Error(t, err)

	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Contains(t, valErr.Error(), "Quantity")
	assert.Contains(t, valErr.Error(), "greater than or equal to 1")
}

func TestValidate_URLTag(t *testing.T) {
	err := Validate(sample{ProductID: "p-1", Quantity: 1, BaseURL: "not a url"})
	require.Error(t, err)

	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, "must be a valid URL", valErr.Fields()["BaseURL"])
}
