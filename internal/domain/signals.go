package domain

import (
	"regexp"
	"strconv"
	"strings"
)

// Text-signal extraction for alerts with no storm-report matches: hail sizes,
// wind speeds, and damage language pulled from headline/description/instruction
// with fixed patterns. Regex only, no inference.

type hailSizeName struct {
	re     *regexp.Regexp
	inches float64
}

// hailSizeNames map common size descriptions to approximate inches. Named
// sizes run before numeric extraction so "golf ball" beats a stray "1 in".
var hailSizeNames = []hailSizeName{
	{regexp.MustCompile(`(?i)\b(quarter|pea)\s*(?:size|sized)?\b`), 1},
	{regexp.MustCompile(`(?i)\b(penny|dime|mothball)\s*(?:size|sized)?\b`), 0.75},
	{regexp.MustCompile(`(?i)\bnickel\s*(?:size|sized)?\b`), 0.88},
	{regexp.MustCompile(`(?i)\bhalf\s*dollar\b`), 1.25},
	{regexp.MustCompile(`(?i)\bgolf\s*ball\b`), 1.75},
	{regexp.MustCompile(`(?i)\bhen\s*egg\b`), 2},
	{regexp.MustCompile(`(?i)\btennis\s*ball\b`), 2.5},
	{regexp.MustCompile(`(?i)\bbaseball\b`), 2.75},
}

var (
	hailNumericRe = regexp.MustCompile(`(?i)\b(\d+\.?\d*)\s*(?:inch|in\.?)\s*(?:hail|diameter)?`)
	windTextRe    = regexp.MustCompile(`(?i)\b(?:winds?\s+(?:to\s+)?|gusts?\s+(?:to\s+)?|up\s+to\s+)?(\d{2,3})\s*(?:mph|miles?\s*per\s*hour)\b`)
	damageRe      = regexp.MustCompile(`(?i)\b(damage|damaged|destroyed|destruction|trees?\s+down|power\s+lines?\s+down|roof|structural|flood|injury|injuries|reported|confirmed|observed|spotter\s+report|law\s+enforcement\s+report)\b`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// TextSignals are magnitude and damage-language signals extracted from alert text.
type TextSignals struct {
	HailInches        *float64
	WindMPH           *float64
	DamageKeywordHits int
}

// ParseHailFromText returns the largest hail size found in the text, nil if none.
func ParseHailFromText(text string) *float64 {
	if text == "" {
		return nil
	}
	t := whitespaceRe.ReplaceAllString(text, " ")
	var best *float64
	for _, name := range hailSizeNames {
		if name.re.MatchString(t) && (best == nil || name.inches > *best) {
			v := name.inches
			best = &v
		}
	}
	for _, m := range hailNumericRe.FindAllStringSubmatch(t, 20) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if best == nil || v > *best {
			best = &v
		}
	}
	return best
}

// ParseWindFromText returns the highest wind speed found in the text, nil if none.
func ParseWindFromText(text string) *float64 {
	if text == "" {
		return nil
	}
	var best *float64
	for _, m := range windTextRe.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if best == nil || v > *best {
			best = &v
		}
	}
	return best
}

// CountDamageKeywords counts damage/observed language hits in the text.
func CountDamageKeywords(text string) int {
	if text == "" {
		return 0
	}
	return len(damageRe.FindAllString(text, -1))
}

// ExtractTextSignals combines headline, description, and instruction and
// extracts all signals from the joined text.
func ExtractTextSignals(headline, description, instruction string) TextSignals {
	parts := make([]string, 0, 3)
	for _, p := range []string{headline, description, instruction} {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	combined := strings.Join(parts, " ")
	return TextSignals{
		HailInches:        ParseHailFromText(combined),
		WindMPH:           ParseWindFromText(combined),
		DamageKeywordHits: CountDamageKeywords(combined),
	}
}
