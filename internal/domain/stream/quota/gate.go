// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package quota decides whether an owner may start a new stream.
//
// The gate is pure: it never mutates counters. The registry increments the
// live counter only once a session is confirmed Live.
package quota

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ManuGH/restream/internal/domain/stream/model"
)

// DefaultFreeCeiling is the cumulative live count a free account may reach.
const DefaultFreeCeiling = 7

// DefaultPremiumTiers are quality tiers reserved for premium accounts.
var DefaultPremiumTiers = []string{"2k", "4k"}

// Policy is the configurable part of the gate.
type Policy struct {
	FreeCeiling  int
	PremiumTiers []string
}

// DefaultPolicy returns the built-in limits.
func DefaultPolicy() Policy {
	return Policy{
		FreeCeiling:  DefaultFreeCeiling,
		PremiumTiers: append([]string(nil), DefaultPremiumTiers...),
	}
}

// IsPremiumTier reports whether tier requires a premium account.
func (p Policy) IsPremiumTier(tier string) bool {
	for _, t := range p.PremiumTiers {
		if strings.EqualFold(t, tier) {
			return true
		}
	}
	return false
}

// Account is the snapshot of owner state the gate decides on.
type Account struct {
	Premium bool
	// LiveCount is cumulative usage, not concurrency.
	LiveCount int
	// Active is the number of the owner's sessions in a slot-occupying state.
	Active int
}

// Decision is the gate's verdict.
type Decision struct {
	Allowed bool
	Kind    model.Kind
	Reason  string
}

// Err converts a denial into a typed error. It returns nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return model.NewError(d.Kind, d.Reason, nil)
}

func allow() Decision { return Decision{Allowed: true} }

func deny(kind model.Kind, reason string) Decision {
	return Decision{Kind: kind, Reason: reason}
}

// CanStart evaluates, in order: duplicate session, free quota, premium tier.
func CanStart(p Policy, acct Account, tier string) Decision {
	if acct.Active > 0 {
		return deny(model.KindDuplicateActiveSession, "a stream is already active for this account")
	}
	if !acct.Premium && acct.LiveCount >= p.FreeCeiling {
		return deny(model.KindQuotaExceeded,
			fmt.Sprintf("free accounts are limited to %d streams", p.FreeCeiling))
	}
	if !acct.Premium && p.IsPremiumTier(tier) {
		tiers := append([]string(nil), p.PremiumTiers...)
		sort.Strings(tiers)
		return deny(model.KindResolutionNotAllowed,
			fmt.Sprintf("quality %s requires a premium account (premium tiers: %s)", tier, strings.Join(tiers, ", ")))
	}
	return allow()
}
