package ipfilter

import (
	"strconv"
	"strings"
)

// Package ipfilter matches IPv4 addresses against allow-list rules. A rule is
// an exact address ("203.0.113.7"), a CIDR block ("10.0.0.0/8"), or a
// wildcard-octet pattern ("192.168.1.*"). Malformed input never panics or
// returns an error; it simply fails to match.

// Matches reports whether ip matches a single rule.
func Matches(ip, rule string) bool {
	ipOctets, ok := parseIPv4(ip)
	if !ok {
		return false
	}

	if strings.Contains(rule, "/") {
		network, prefixLen, ok := parseCIDR(rule)
		if !ok {
			return false
		}
		mask := prefixMask(prefixLen)
		return ipToUint32(ipOctets)&mask == network&mask
	}

	if strings.Contains(rule, "*") {
		return matchWildcard(ipOctets, rule)
	}

	ruleOctets, ok := parseIPv4(rule)
	if !ok {
		return false
	}
	return ipOctets == ruleOctets
}

// IsAllowed reports whether ip matches any rule. An empty rule list allows
// everything: absence of rules means no restriction, a deliberate fail-open
// policy rather than an omission.
func IsAllowed(ip string, rules []string) bool {
	if len(rules) == 0 {
		return true
	}
	for _, rule := range rules {
		if Matches(ip, strings.TrimSpace(rule)) {
			return true
		}
	}
	return false
}

// IsValidRule reports whether rule is a well-formed exact address, CIDR
// block, or wildcard pattern.
func IsValidRule(rule string) bool {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return false
	}

	if strings.Contains(rule, "/") {
		_, _, ok := parseCIDR(rule)
		return ok
	}

	if strings.Contains(rule, "*") {
		parts := strings.Split(rule, ".")
		if len(parts) != 4 {
			return false
		}
		for _, part := range parts {
			if part == "*" {
				continue
			}
			if !validOctet(part) {
				return false
			}
		}
		return true
	}

	_, ok := parseIPv4(rule)
	return ok
}

func matchWildcard(ip [4]uint8, rule string) bool {
	parts := strings.Split(rule, ".")
	if len(parts) != 4 {
		return false
	}
	for i, part := range parts {
		if part == "*" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 255 || hasLeadingZero(part) {
			return false
		}
		if uint8(n) != ip[i] {
			return false
		}
	}
	return true
}

func parseCIDR(rule string) (network uint32, prefixLen int, ok bool) {
	idx := strings.IndexByte(rule, '/')
	if idx < 0 {
		return 0, 0, false
	}

	octets, ok := parseIPv4(rule[:idx])
	if !ok {
		return 0, 0, false
	}

	prefix := rule[idx+1:]
	n, err := strconv.Atoi(prefix)
	if err != nil || n < 0 || n > 32 || hasLeadingZero(prefix) {
		return 0, 0, false
	}

	return ipToUint32(octets), n, true
}

func parseIPv4(s string) ([4]uint8, bool) {
	var octets [4]uint8
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return octets, false
	}
	for i, part := range parts {
		if !validOctet(part) {
			return octets, false
		}
		n, _ := strconv.Atoi(part)
		octets[i] = uint8(n)
	}
	return octets, true
}

func validOctet(s string) bool {
	if s == "" || len(s) > 3 || hasLeadingZero(s) {
		return false
	}
	n, err := strconv.Atoi(s)
	return err == nil && n >= 0 && n <= 255
}

// hasLeadingZero rejects forms like "01" that strconv accepts but dotted-quad
// notation does not.
func hasLeadingZero(s string) bool {
	return len(s) > 1 && s[0] == '0'
}

func ipToUint32(octets [4]uint8) uint32 {
	return uint32(octets[0])<<24 | uint32(octets[1])<<16 | uint32(octets[2])<<8 | uint32(octets[3])
}

// prefixMask returns the network mask for a prefix length; length 0 yields a
// zero mask, which matches everything.
func prefixMask(prefixLen int) uint32 {
	if prefixLen <= 0 {
		return 0
	}
	if prefixLen >= 32 {
		return 0xFFFFFFFF
	}
	return ^uint32(0) << (32 - prefixLen)
}
