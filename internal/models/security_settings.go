package models

import "time"

// SecuritySettings holds the IP allow-list configuration. The core validates
// and matches rules; storage is owned by the settings store.
type SecuritySettings struct {
	AllowListEnabled bool
	// AllowListRules are exact IPs, CIDR blocks, or wildcard-octet patterns.
	// An empty list with the gate enabled means no restriction (fail-open).
	AllowListRules []string
	UpdatedAt      time.Time
}
