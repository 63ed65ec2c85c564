package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

func TestExpandEnv(t *testing.T) {
	tests := []struct {
		name  string
		input string
		env   map[string]string
		want  string
	}{
		{
			name:  "simple substitution with {{.VAR}}",
			input: "api_key: {{.API_KEY}}",
			env:   map[string]string{"API_KEY": "secret123"},
			want:  "api_key: secret123",
		},
		{
			name:  "cashtag keywords are not expanded",
			input: "keywords: [$BTC, $NVDA]",
			env:   map[string]string{"BTC": "oops"},
			want:  "keywords: [$BTC, $NVDA]",
		},
		{
			name:  "regex with dollar anchor passes through",
			input: "pattern: '[0-9]{4,}$'",
			env:   map[string]string{},
			want:  "pattern: '[0-9]{4,}$'",
		},
		{
			name:  "multiple substitutions in one line",
			input: "dsn: postgres://{{.DB_USER}}@{{.DB_HOST}}/tideline",
			env: map[string]string{
				"DB_USER": "svc",
				"DB_HOST": "db.internal",
			},
			want: "dsn: postgres://svc@db.internal/tideline",
		},
		{
			name:  "missing variable expands to empty",
			input: "endpoint: {{.MISSING_VAR}}",
			env:   map[string]string{},
			want:  "endpoint: ",
		},
		{
			name:  "malformed template passes through unchanged",
			input: "broken: {{.UNCLOSED",
			env:   map[string]string{},
			want:  "broken: {{.UNCLOSED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			got := ExpandEnv([]byte(tt.input))
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestExpandEnvResultStaysValidYAML(t *testing.T) {
	t.Setenv("PROXY_KEY_ENV", "SCRAPING_PROXY_API_KEY")

	input := `
enrich:
  scraping_proxy_key_env: {{.PROXY_KEY_ENV}}
  skip_hosts:
    - x.com
    - t.co
`
	expanded := ExpandEnv([]byte(input))

	var out map[string]any
	err := yaml.Unmarshal(expanded, &out)
	assert.NoError(t, err)

	enrich, ok := out["enrich"].(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "SCRAPING_PROXY_API_KEY", enrich["scraping_proxy_key_env"])
}
