package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderURLPolicy(t *testing.T) {
	strict := ProviderURLPolicy{}
	local := ProviderURLPolicy{AllowLocal: true}

	cases := []struct {
		url      string
		strictOK bool
		localOK  bool
	}{
		{"https://api.openai.com/v1", true, true},
		{"https://api.x.ai/v1", true, true},
		{"http://api.openai.com/v1", false, true},
		{"http://127.0.0.1:11434/v1", false, true},
		{"https://localhost/v1", false, true},
		{"https://10.0.0.8/v1", false, true},
		{"https://[fe80::1%25eth0]/", false, true},
		{"https://0.0.0.0/", false, false},
		{"ftp://example.com/", false, false},
		{"https:///nohost", false, false},
	}
	for _, c := range cases {
		t.Run(c.url, func(t *testing.T) {
			assert.Equal(t, c.strictOK, strict.Check(c.url) == nil)
			assert.Equal(t, c.localOK, local.Check(c.url) == nil)
		})
	}
}
