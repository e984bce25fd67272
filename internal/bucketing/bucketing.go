// Package bucketing maps visitors onto experiment variants.
//
// Everything here is a pure function of its inputs: the same experiment
// definition and identifier always yield the same eligibility outcome and the
// same variant, in every process and across restarts.
//
// The hash is the classic Java/JavaScript string hash: for each UTF-16 code
// unit, h = h*31 + unit in wrapping signed 32-bit arithmetic, then the
// absolute value taken in 64 bits. A JavaScript client computing
//
//	hash = ((hash << 5) - hash) + s.charCodeAt(i); hash |= 0;
//	Math.abs(hash)
//
// gets identical buckets, so browser and server agree on assignments.
package bucketing

import (
	"strings"
	"unicode/utf16"

	"github.com/w3bsuki/strike-ab/internal/store"
)

// Buckets is the number of traffic buckets identifiers are spread over.
const Buckets = 100

// Attributes describe the visitor for targeting predicates.
type Attributes struct {
	Device   string   // e.g. "mobile", "desktop"
	Country  string   // ISO 3166 code
	Segments []string // e.g. "vip", "returning"
}

// Hash returns the non-negative 32-bit string hash of s.
func Hash(s string) int64 {
	var h int32
	for _, unit := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(unit)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}

// Bucket returns Hash(s) mod 100.
func Bucket(s string) int {
	return int(Hash(s) % Buckets)
}

// Identifier picks the bucketing key: the user id when known, else the
// session id.
func Identifier(userID, sessionID string) string {
	if userID != "" {
		return userID
	}
	return sessionID
}

// Eligible reports whether identifier may take part in exp. Only running
// experiments are eligible; the traffic gate and the targeting predicates are
// ANDed, and a predicate with nothing declared lets everyone through.
func Eligible(exp *store.Experiment, identifier string, attrs Attributes) bool {
	if exp == nil || exp.Status != store.StatusRunning || identifier == "" {
		return false
	}
	if Bucket(identifier) >= exp.Targeting.TrafficPercentage {
		return false
	}
	if !matchesOne(exp.Targeting.DeviceTypes, attrs.Device) {
		return false
	}
	if !matchesOne(exp.Targeting.GeoTargeting, attrs.Country) {
		return false
	}
	if !matchesAny(exp.Targeting.UserSegments, attrs.Segments) {
		return false
	}
	return true
}

// Allocate deterministically picks a variant for identifier. Variants are
// walked in declaration order and the weights are normalized by their sum.
// It returns nil when exp has no variants.
func Allocate(exp *store.Experiment, identifier string) *store.Variant {
	if exp == nil || len(exp.Variants) == 0 {
		return nil
	}

	random := Bucket(exp.ID+":"+identifier) + 1 // 1..100

	total := 0
	for _, v := range exp.Variants {
		total += v.Weight
	}

	// random/100 <= cumulative/total, kept in integers so a 100 total
	// behaves exactly like random <= cumulative.
	cumulative := 0
	for i := range exp.Variants {
		cumulative += exp.Variants[i].Weight
		if total > 0 && random*total <= cumulative*Buckets {
			return &exp.Variants[i]
		}
	}

	return &exp.Variants[0]
}

func matchesOne(declared []string, value string) bool {
	if len(declared) == 0 {
		return true
	}
	for _, d := range declared {
		if strings.EqualFold(d, value) {
			return true
		}
	}
	return false
}

func matchesAny(declared []string, values []string) bool {
	if len(declared) == 0 {
		return true
	}
	for _, v := range values {
		if v != "" && matchesOne(declared, v) {
			return true
		}
	}
	return false
}
