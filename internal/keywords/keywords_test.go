package keywords

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", []string{}},
		{"stopwords and short words", "the DB is not up", []string{}},
		{"punctuation stripped", "Logger: not working!!", []string{"logger", "working"}},
		{"hyphen splits", "react-hooks useEffect loop", []string{"react", "hooks", "useeffect", "loop"}},
		{"duplicates collapsed", "timeout timeout TIMEOUT", []string{"timeout"}},
		{"digits kept", "http 500 error", []string{"http", "500", "error"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.text))
		})
	}
}

func TestExtractDeterministic(t *testing.T) {
	text := "Sentry logger not working properly after config reload"
	assert.Equal(t, Extract(text), Extract(text))
}

func TestIsStopword(t *testing.T) {
	assert.True(t, IsStopword("the"))
	assert.False(t, IsStopword("database"))
}
