package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type statusRequest struct {
	Status string `validate:"required,oneof=sent accepted rejected"`
	Notes  string `validate:"max=10"`
}

func TestStruct(t *testing.T) {
	val := New()

	assert.NoError(t, val.Struct(statusRequest{Status: "sent"}))
	assert.Error(t, val.Struct(statusRequest{Status: "uploaded"}))
	assert.Error(t, val.Struct(statusRequest{}))
	assert.Error(t, val.Struct(statusRequest{Status: "sent", Notes: "far too long for the limit"}))
}
