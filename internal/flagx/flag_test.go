package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{
			name:    "separate value",
			args:    []string{"-d", "sqlite", "-x", "ignored"},
			allowed: []string{"-d"},
			want:    []string{"-d", "sqlite"},
		},
		{
			name:    "equals form",
			args:    []string{"--dsn=file.db", "-other=1"},
			allowed: []string{"--dsn"},
			want:    []string{"--dsn=file.db"},
		},
		{
			name:    "flag followed by another flag keeps no value",
			args:    []string{"-v", "-d", "pg"},
			allowed: []string{"-v"},
			want:    []string{"-v"},
		},
		{
			name:    "nothing allowed",
			args:    []string{"-a", "b"},
			allowed: nil,
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowed))
		})
	}
}

func TestPositionalArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "subcommand before flags",
			args: []string{"sync", "-d", "sqlite"},
			want: []string{"sync"},
		},
		{
			name: "flag value not positional",
			args: []string{"-d", "sqlite", "status"},
			want: []string{"status"},
		},
		{
			name: "equals form consumes nothing",
			args: []string{"-dsn=file.db", "cleanup"},
			want: []string{"cleanup"},
		},
		{
			name: "only flags",
			args: []string{"-v", "-d", "pg"},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PositionalArgs(tt.args))
		})
	}
}
