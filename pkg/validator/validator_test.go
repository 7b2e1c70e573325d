package validator_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/coachgate/pkg/validator"
)

type chatInput struct {
	Message string `json:"message" validate:"required,max=1000"`
	Kind    string `json:"responseType,omitempty" validate:"omitempty,oneof=quick deep"`
	History []struct {
		Role string `json:"role" validate:"required,oneof=user assistant"`
	} `json:"history" validate:"max=20,dive"`
}

func TestStruct(t *testing.T) {
	t.Parallel()

	v := validator.New()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, v.Struct(chatInput{Message: "hello"}))
	})

	t.Run("required and oneof", func(t *testing.T) {
		t.Parallel()
		err := v.Struct(chatInput{Kind: "long"})
		require.Error(t, err)

		var verrs validator.Errors
		require.ErrorAs(t, err, &verrs)
		assert.Equal(t, "is required", verrs.Get("message"))
		assert.Equal(t, "must be one of: quick deep", verrs.Get("responseType"))
	})

	t.Run("max length", func(t *testing.T) {
		t.Parallel()
		err := v.Struct(chatInput{Message: strings.Repeat("a", 1001)})

		var verrs validator.Errors
		require.ErrorAs(t, err, &verrs)
		assert.Equal(t, "must be at most 1000 characters", verrs.Get("message"))
	})

	t.Run("nested fields use json path", func(t *testing.T) {
		t.Parallel()
		in := chatInput{Message: "hi"}
		in.History = append(in.History, struct {
			Role string `json:"role" validate:"required,oneof=user assistant"`
		}{Role: "system"})

		var verrs validator.Errors
		require.ErrorAs(t, v.Struct(in), &verrs)
		assert.True(t, verrs.Has("history[0].role"))
	})
}

func TestErrorsMessage(t *testing.T) {
	t.Parallel()

	e := validator.Errors{}
	assert.Equal(t, "validation failed", e.Error())

	e.Add("b", "is required")
	e.Add("a", "is invalid")
	assert.Equal(t, "validation failed: a: is invalid, b: is required", e.Error())
}
