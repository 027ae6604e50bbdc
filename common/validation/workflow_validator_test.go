package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edgeless-project/edgeless/pkg/api"
)

func validRequest() *api.WorkflowRequest {
	return &api.WorkflowRequest{
		Functions: []api.WorkflowFunction{
			{
				Name:          "f1",
				Class:         api.ClassSpecification{Format: "RUST_WASM"},
				OutputMapping: map[string]string{"out": "f2"},
			},
			{Name: "f2", Class: api.ClassSpecification{Format: "RUST_WASM"}},
		},
		Resources: []api.WorkflowResource{
			{Name: "log", ClassType: "file-log"},
		},
	}
}

func TestValidate_AcceptsWellFormedRequest(t *testing.T) {
	v := NewWorkflowValidator()
	assert.NoError(t, v.Validate(validRequest()))
}

func TestValidate_RejectsEmptyFunctionName(t *testing.T) {
	req := validRequest()
	req.Functions[0].Name = ""
	assert.Error(t, NewWorkflowValidator().Validate(req))
}

func TestValidate_RejectsDuplicateNameAcrossFunctionsAndResources(t *testing.T) {
	req := validRequest()
	req.Resources[0].Name = "f1"
	assert.Error(t, NewWorkflowValidator().Validate(req))
}

func TestValidate_RejectsEmptyFunctionFormat(t *testing.T) {
	req := validRequest()
	req.Functions[1].Class.Format = ""
	assert.Error(t, NewWorkflowValidator().Validate(req))
}

func TestValidate_RejectsEmptyResourceClassType(t *testing.T) {
	req := validRequest()
	req.Resources[0].ClassType = ""
	assert.Error(t, NewWorkflowValidator().Validate(req))
}

func TestValidate_RejectsDanglingFunctionOutputMapping(t *testing.T) {
	req := validRequest()
	req.Functions[0].OutputMapping["out"] = "does-not-exist"
	assert.Error(t, NewWorkflowValidator().Validate(req))
}

func TestValidate_RejectsDanglingResourceOutputMapping(t *testing.T) {
	req := validRequest()
	req.Resources[0].OutputMapping = map[string]string{"out": "does-not-exist"}
	assert.Error(t, NewWorkflowValidator().Validate(req))
}
