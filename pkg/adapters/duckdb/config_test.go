package duckdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	tests := []struct {
		name      string
		input     map[string]any
		want      *Params
		errSubstr string
	}{
		{name: "nil", want: &Params{}},
		{
			name: "trace bucket setup",
			input: map[string]any{
				"extensions": []any{"httpfs"},
				"settings":   map[string]any{"threads": 4, "memory_limit": "2GB"},
				"secrets": []any{map[string]any{
					"type":     "s3",
					"provider": "credential_chain",
					"scope":    "s3://traces",
					"use_ssl":  "false",
				}},
			},
			want: &Params{
				Extensions: []string{"httpfs"},
				Settings:   map[string]string{"threads": "4", "memory_limit": "2GB"},
				Secrets: []SecretConfig{{
					Type:     "s3",
					Provider: "credential_chain",
					Scope:    "s3://traces",
					UseSSL:   new(bool),
				}},
			},
		},
		{name: "unknown key", input: map[string]any{"extension": "httpfs"}, errSubstr: "invalid duckdb params"},
		{name: "wrong shape", input: map[string]any{"settings": []any{"threads"}}, errSubstr: "invalid duckdb params"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseParams(tt.input)
			if tt.errSubstr != "" {
				assert.ErrorContains(t, err, tt.errSubstr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
