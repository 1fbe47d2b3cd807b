package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRubricJSON(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{"rubric", `{"is_rubric":true,"confidence":0.9,"rubric_name":"T","dimensions":[{"name":"C","weight":100,"levels":[{"name":"L","score_min":0,"score_max":10}]}]}`, false},
		{"not a rubric", `{"is_rubric":false,"confidence":0.8,"reason":"essay"}`, false},
		{"missing is_rubric", `{"dimensions":[]}`, true},
		{"rubric without dimensions", `{"is_rubric":true}`, true},
		{"is_rubric as string", `{"is_rubric":"yes"}`, true},
		{"weight as word", `{"is_rubric":true,"dimensions":[{"name":"C","weight":"forty","levels":[]}]}`, true},
		{"null weight passes shape check", `{"is_rubric":true,"dimensions":[{"name":"C","weight":null,"levels":[]}]}`, false},
		{"dimensions not array", `{"is_rubric":true,"dimensions":{}}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRubricJSON([]byte(tt.doc))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
