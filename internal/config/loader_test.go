package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("KBEXT_TEST_HOST", "es.internal")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"set variable", "http://${KBEXT_TEST_HOST}:9200", "http://es.internal:9200"},
		{"set variable ignores default", "${KBEXT_TEST_HOST:fallback}", "es.internal"},
		{"unset with default", "${KBEXT_TEST_UNSET:localhost}", "localhost"},
		{"unset with empty default", "${KBEXT_TEST_UNSET:}", ""},
		{"unset without default keeps placeholder", "${KBEXT_TEST_UNSET}", "${KBEXT_TEST_UNSET}"},
		{"multiple placeholders", "${KBEXT_TEST_HOST}:${KBEXT_TEST_PORT:9200}", "es.internal:9200"},
		{"no placeholder", "plain-value", "plain-value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, expandEnv(tt.in))
		})
	}
}
