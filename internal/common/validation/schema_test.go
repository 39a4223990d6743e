package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `{
  "type": "object",
  "required": ["kind", "orderId"],
  "properties": {
    "kind": {"type": "string", "enum": ["confirmation", "status"]},
    "orderId": {"type": "integer", "minimum": 1}
  }
}`

func TestSchema_Validate(t *testing.T) {
	s, err := Compile("test", testSchema)
	require.NoError(t, err)

	tests := []struct {
		name      string
		input     map[string]interface{}
		wantValid bool
		wantField string
	}{
		{"valid", map[string]interface{}{"kind": "status", "orderId": 7}, true, ""},
		{"missing order", map[string]interface{}{"kind": "status"}, false, "(root)"},
		{"bad kind", map[string]interface{}{"kind": "x", "orderId": 7}, false, "kind"},
		{"zero order", map[string]interface{}{"kind": "status", "orderId": 0}, false, "orderId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Validate(tt.input)
			assert.Equal(t, tt.wantValid, res.Valid)
			if !tt.wantValid {
				require.NotEmpty(t, res.Errors)
				assert.Equal(t, tt.wantField, res.Errors[0].Field)
				assert.NotEmpty(t, res.Summary())
			}
		})
	}
}

func TestCompile_InvalidSchema(t *testing.T) {
	_, err := Compile("broken", `{"type": 12}`)
	assert.Error(t, err)
}
