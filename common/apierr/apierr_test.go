package apierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_MessageIncludesDetailOnlyWhenPresent(t *testing.T) {
	withDetail := New(BadRequest, "bad shape", "missing name")
	assert.Equal(t, "bad_request: bad shape (missing name)", withDetail.Error())

	withoutDetail := New(NotFound, "no such workflow", "")
	assert.Equal(t, "not_found: no such workflow", withoutDetail.Error())
}

func TestWrap_CarriesCauseForUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := NewTransport("node unreachable", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause.Error(), err.Detail)
}

func TestKindOf_UnwrapsThroughFmtErrorf(t *testing.T) {
	err := fmt.Errorf("while placing: %w", NewCapacity("no eligible node", "all nodes full"))
	assert.Equal(t, Capacity, KindOf(err))
}

func TestKindOf_DefaultsToInternalForPlainErrors(t *testing.T) {
	assert.Equal(t, Internal, KindOf(errors.New("boom")))
}

func TestToResponse_PlainErrorFallsBackToErrorString(t *testing.T) {
	resp := ToResponse(errors.New("unexpected"))
	assert.Equal(t, "unexpected", resp.Summary)
	assert.Empty(t, resp.Detail)
}

func TestToResponse_ApierrCarriesSummaryAndDetail(t *testing.T) {
	resp := ToResponse(NewRuntime("sandbox rejected instance", "oom-killed"))
	assert.Equal(t, "sandbox rejected instance", resp.Summary)
	assert.Equal(t, "oom-killed", resp.Detail)
}

func TestConstructors_SetExpectedKind(t *testing.T) {
	assert.Equal(t, BadRequest, NewBadRequest("x", "y").Kind)
	assert.Equal(t, NotFound, NewNotFound("x").Kind)
	assert.Equal(t, Capacity, NewCapacity("x", "y").Kind)
	assert.Equal(t, Runtime, NewRuntime("x", "y").Kind)
	assert.Equal(t, Internal, NewInternal("x", errors.New("y")).Kind)
}
