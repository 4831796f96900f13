package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Decision
	}{
		{"bare json", `{"sendNotification":true,"title":"Bedtime soon","body":"Wind down 🌙"}`,
			Decision{ShouldSend: true, Title: "Bedtime soon", Body: "Wind down 🌙"}},
		{"fenced", "```json\n{\"sendNotification\":false}\n```", Decision{}},
		{"embedded in prose", `Sure! {"sendNotification":true,"title":"Hi","body":"There"} hope that helps`,
			Decision{ShouldSend: true, Title: "Hi", Body: "There"}},
		{"send without body is a skip", `{"sendNotification":true,"title":"Hi"}`,
			Decision{Title: "Hi"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseDecision(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseDecision_Garbage(t *testing.T) {
	_, err := parseDecision("")
	assert.Error(t, err)
	_, err = parseDecision("no json here")
	assert.Error(t, err)
}
