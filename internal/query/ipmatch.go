package query

import (
	"fmt"
	"net/netip"
	"strings"

	lqerrors "github.com/fanzha/logquery/pkg/errors"
)

type ipRuleKind int

const (
	ipExact ipRuleKind = iota
	ipPrefix
	ipCIDR
	ipRange
)

// ipRule matches one IP specification: exact address, CIDR, dash range, or a
// string-prefix fast path for /8, /16 and /24 IPv4 networks that avoids
// per-record address parsing entirely.
// ipRule 匹配一条 IP 规则：精确地址、CIDR、区间，
// 或 /8、/16、/24 IPv4 网段的字符串前缀快速路径（无需逐记录解析地址）。
type ipRule struct {
	kind   ipRuleKind
	exact  string
	prefix string
	cidr   netip.Prefix
	lo, hi netip.Addr
}

func parseIPRule(input string) (ipRule, error) {
	input = strings.TrimSpace(input)

	if strings.Contains(input, "/") {
		p, err := netip.ParsePrefix(input)
		if err != nil {
			return ipRule{}, fmt.Errorf("%w: ip rule %q: %v", lqerrors.ErrConfigInvalid, input, err)
		}
		p = p.Masked()
		if p.Addr().Is4() {
			o := p.Addr().As4()
			switch p.Bits() {
			case 24:
				return ipRule{kind: ipPrefix, prefix: fmt.Sprintf("%d.%d.%d.", o[0], o[1], o[2])}, nil
			case 16:
				return ipRule{kind: ipPrefix, prefix: fmt.Sprintf("%d.%d.", o[0], o[1])}, nil
			case 8:
				return ipRule{kind: ipPrefix, prefix: fmt.Sprintf("%d.", o[0])}, nil
			}
		}
		return ipRule{kind: ipCIDR, cidr: p}, nil
	}

	if strings.Contains(input, "-") {
		parts := strings.SplitN(input, "-", 2)
		lo, err1 := netip.ParseAddr(strings.TrimSpace(parts[0]))
		hi, err2 := netip.ParseAddr(strings.TrimSpace(parts[1]))
		if err1 != nil || err2 != nil {
			return ipRule{}, fmt.Errorf("%w: ip range %q", lqerrors.ErrConfigInvalid, input)
		}
		return ipRule{kind: ipRange, lo: lo, hi: hi}, nil
	}

	return ipRule{kind: ipExact, exact: input}, nil
}

func (r ipRule) matches(s string) bool {
	switch r.kind {
	case ipExact:
		return s == r.exact
	case ipPrefix:
		return strings.HasPrefix(s, r.prefix)
	case ipCIDR:
		addr, err := netip.ParseAddr(s)
		return err == nil && r.cidr.Contains(addr)
	case ipRange:
		addr, err := netip.ParseAddr(s)
		return err == nil && r.lo.Compare(addr) <= 0 && addr.Compare(r.hi) <= 0
	}
	return false
}

// ipMatcher is the disjunction of its rules. An empty rule list matches
// every value.
// ipMatcher 对其规则取或。空规则列表匹配所有值。
type ipMatcher struct {
	rules []ipRule
}

func newIPMatcher(inputs []string) (*ipMatcher, error) {
	m := &ipMatcher{}
	for _, in := range inputs {
		if strings.TrimSpace(in) == "" {
			continue
		}
		r, err := parseIPRule(in)
		if err != nil {
			return nil, err
		}
		m.rules = append(m.rules, r)
	}
	return m, nil
}

func (m *ipMatcher) matches(s string) bool {
	if len(m.rules) == 0 {
		return true
	}
	for _, r := range m.rules {
		if r.matches(s) {
			return true
		}
	}
	return false
}

// matchWildcard implements exact and "*.suffix" domain patterns. A wildcard
// matches the bare suffix itself and any label-delimited subdomain.
// matchWildcard 实现精确匹配和 "*.suffix" 域名通配：
// 通配符匹配裸后缀本身及任何以点分隔的子域。
func matchWildcard(pattern, s string) bool {
	if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
		return s == suffix || strings.HasSuffix(s, "."+suffix)
	}
	return s == pattern
}
