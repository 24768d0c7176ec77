package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPRules(t *testing.T) {
	tests := []struct {
		name  string
		rule  string
		hits  []string
		miss  []string
	}{
		{
			name: "exact",
			rule: "10.0.0.1",
			hits: []string{"10.0.0.1"},
			miss: []string{"10.0.0.2", "10.0.0.10", ""},
		},
		{
			name: "cidr slash 24 uses string prefix",
			rule: "192.168.1.0/24",
			hits: []string{"192.168.1.1", "192.168.1.254"},
			miss: []string{"192.168.2.1", "192.168.10.1"},
		},
		{
			name: "cidr slash 16",
			rule: "10.20.0.0/16",
			hits: []string{"10.20.0.1", "10.20.255.254"},
			miss: []string{"10.21.0.1", "110.20.0.1"},
		},
		{
			name: "cidr slash 8",
			rule: "10.0.0.0/8",
			hits: []string{"10.1.2.3"},
			miss: []string{"110.1.2.3", "11.0.0.1"},
		},
		{
			name: "cidr odd mask",
			rule: "172.16.0.0/12",
			hits: []string{"172.16.0.1", "172.31.255.254"},
			miss: []string{"172.32.0.1", "not-an-ip"},
		},
		{
			name: "dash range",
			rule: "10.0.0.5-10.0.0.9",
			hits: []string{"10.0.0.5", "10.0.0.7", "10.0.0.9"},
			miss: []string{"10.0.0.4", "10.0.0.10", "garbage"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := parseIPRule(tt.rule)
			require.NoError(t, err)
			for _, s := range tt.hits {
				assert.True(t, r.matches(s), "%q should match %q", tt.rule, s)
			}
			for _, s := range tt.miss {
				assert.False(t, r.matches(s), "%q should not match %q", tt.rule, s)
			}
		})
	}
}

// The /24 fast path must not cross octet boundaries by accident: the prefix
// ends with a dot, so "192.168.1." never matches "192.168.10.x".
// /24 快速路径以点号结尾，"192.168.1." 不会误匹配 "192.168.10.x"。
func TestIPRule_PrefixDotBoundary(t *testing.T) {
	r, err := parseIPRule("192.168.1.0/24")
	require.NoError(t, err)
	assert.Equal(t, ipPrefix, r.kind)
	assert.Equal(t, "192.168.1.", r.prefix)
	assert.False(t, r.matches("192.168.10.5"))
}

func TestParseIPRule_Invalid(t *testing.T) {
	for _, bad := range []string{"10.0.0.0/999", "1.2.3.4-not-ip", "1.2.3/8/8"} {
		_, err := parseIPRule(bad)
		assert.Error(t, err, bad)
	}
}

func TestIPMatcher(t *testing.T) {
	m, err := newIPMatcher([]string{"10.0.0.1", "192.168.0.0/16"})
	require.NoError(t, err)
	assert.True(t, m.matches("10.0.0.1"))
	assert.True(t, m.matches("192.168.44.5"))
	assert.False(t, m.matches("172.16.0.1"))

	empty, err := newIPMatcher([]string{"", "  "})
	require.NoError(t, err)
	assert.True(t, empty.matches("anything"))
}

func TestMatchWildcard(t *testing.T) {
	tests := []struct {
		pattern string
		input   string
		want    bool
	}{
		{"example.com", "example.com", true},
		{"example.com", "www.example.com", false},
		{"*.example.com", "example.com", true},
		{"*.example.com", "www.example.com", true},
		{"*.example.com", "a.b.example.com", true},
		{"*.example.com", "badexample.com", false},
		{"*.example.com", "example.com.evil.io", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchWildcard(tt.pattern, tt.input),
			"pattern=%q input=%q", tt.pattern, tt.input)
	}
}
