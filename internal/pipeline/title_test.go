package pipeline_test

import (
	"testing"

	"storybook-server/internal/pipeline"

	"github.com/stretchr/testify/assert"
)

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "Moonlit Garden Friends", "Moonlit Garden Friends"},
		{"quoted", "\"Moonlit Garden Friends\"", "Moonlit Garden Friends"},
		{"smart quotes and period", "“Moonlit Garden Friends.”", "Moonlit Garden Friends"},
		{"prefix", "Title: Moonlit Garden Friends", "Moonlit Garden Friends"},
		{"markdown", "**Moonlit Garden Friends**", "Moonlit Garden Friends"},
		{"multiline", "\n  Moonlit Garden Friends\nThis title fits the story.", "Moonlit Garden Friends"},
		{"inner spaces", "Moonlit   Garden  Friends", "Moonlit Garden Friends"},
		{"empty", "  \n ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pipeline.CleanTitle(tt.raw))
		})
	}
}
