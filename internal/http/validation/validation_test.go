package validation

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

type sample struct {
	Reason   string `json:"reason" validate:"required"`
	LeadType string `json:"leadType" validate:"oneof=system_lead hes_request"`
	Question string `form:"question" validate:"max=3"`
}

func TestFromBindErrorUsesTagNames(t *testing.T) {
	v := validator.New()
	err := v.Struct(sample{LeadType: "roof", Question: "toolong"})

	fe := FromBindError(err, &sample{})
	assert.Equal(t, "required", fe["reason"])
	assert.Equal(t, "must be one of: system_lead hes_request", fe["leadType"])
	assert.Equal(t, "must be at most 3 characters", fe["question"])
}

func TestFromBindErrorOther(t *testing.T) {
	fe := FromBindError(errors.New("unexpected EOF"), &sample{})
	assert.Equal(t, FieldErrors{"_": "Request body is invalid."}, fe)
	assert.Equal(t, "invalid", string(BindError(errors.New("x"), &sample{}).Kind))
}
