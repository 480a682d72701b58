package domain

import (
	"regexp"
	"sort"
	"strings"
)

var (
	warningRe   = regexp.MustCompile(`(?i)Warning\b`)
	watchRe     = regexp.MustCompile(`(?i)Watch\b`)
	advisoryRe  = regexp.MustCompile(`(?i)Advisory\b`)
	statementRe = regexp.MustCompile(`(?i)Statement\b`)
)

// knownRegions are the two-letter codes accepted when deriving regions from
// UGC prefixes: the 50 states, DC, and the marine/territory codes the feed uses.
var knownRegions = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true, "CO": true,
	"CT": true, "DE": true, "FL": true, "GA": true, "HI": true, "ID": true,
	"IL": true, "IN": true, "IA": true, "KS": true, "KY": true, "LA": true,
	"ME": true, "MD": true, "MA": true, "MI": true, "MN": true, "MS": true,
	"MO": true, "MT": true, "NE": true, "NV": true, "NH": true, "NJ": true,
	"NM": true, "NY": true, "NC": true, "ND": true, "OH": true, "OK": true,
	"OR": true, "PA": true, "RI": true, "SC": true, "SD": true, "TN": true,
	"TX": true, "UT": true, "VT": true, "VA": true, "WA": true, "WV": true,
	"WI": true, "WY": true, "DC": true, "PR": true, "VI": true, "GU": true,
	"AS": true, "MP": true,
}

// fipsToRegion maps the first two digits of a county FIPS code to its state code.
var fipsToRegion = map[string]string{
	"01": "AL", "02": "AK", "04": "AZ", "05": "AR", "06": "CA", "08": "CO",
	"09": "CT", "10": "DE", "11": "DC", "12": "FL", "13": "GA", "15": "HI",
	"16": "ID", "17": "IL", "18": "IN", "19": "IA", "20": "KS", "21": "KY",
	"22": "LA", "23": "ME", "24": "MD", "25": "MA", "26": "MI", "27": "MN",
	"28": "MS", "29": "MO", "30": "MT", "31": "NE", "32": "NV", "33": "NH",
	"34": "NJ", "35": "NM", "36": "NY", "37": "NC", "38": "ND", "39": "OH",
	"40": "OK", "41": "OR", "42": "PA", "44": "RI", "45": "SC", "46": "SD",
	"47": "TN", "48": "TX", "49": "UT", "50": "VT", "51": "VA", "53": "WA",
	"54": "WV", "55": "WI", "56": "WY", "72": "PR", "78": "VI", "66": "GU",
	"60": "AS", "69": "MP",
}

// DeriveAlertClass classifies an event name by suffix keywords. Classification
// is purely lexical; no external lookup.
func DeriveAlertClass(event string) AlertClass {
	e := strings.TrimSpace(event)
	if e == "" {
		return ClassOther
	}
	switch {
	case warningRe.MatchString(e):
		return ClassWarning
	case watchRe.MatchString(e):
		return ClassWatch
	case advisoryRe.MatchString(e):
		return ClassAdvisory
	case statementRe.MatchString(e):
		return ClassStatement
	default:
		return ClassOther
	}
}

// DeriveGeoMethod describes the geographic input shape of an alert: polygon
// when geometry is present, else zone/county by UGC code type. The result does
// not depend on whether ZIP resolution through the fallback chain succeeded.
func DeriveGeoMethod(geomPresent bool, ugcCodes []string) GeoMethod {
	if geomPresent {
		return GeoMethodPolygon
	}
	if len(ugcCodes) == 0 {
		return GeoMethodUnknown
	}
	hasZone, hasCounty := false, false
	for _, c := range ugcCodes {
		u := strings.ToUpper(c)
		if len(u) >= 3 {
			switch u[2] {
			case 'Z':
				hasZone = true
			case 'C':
				hasCounty = true
			}
			continue
		}
		if strings.Contains(u, "Z") {
			hasZone = true
		}
		if strings.Contains(u, "C") {
			hasCounty = true
		}
	}
	switch {
	case hasZone:
		return GeoMethodZone
	case hasCounty:
		return GeoMethodCounty
	default:
		return GeoMethodUnknown
	}
}

// DeriveZipInferenceMethod records polygon_intersect only when geometry was
// present and the intersection actually produced ZIPs.
func DeriveZipInferenceMethod(geomPresent bool, zipCount int) ZipInferenceMethod {
	if geomPresent && zipCount > 0 {
		return ZipInferencePolygon
	}
	return ZipInferenceNone
}

// ZipDensity is zip count per square mile, nil when area is unknown or zero.
func ZipDensity(zipCount int, areaSqMiles *float64) *float64 {
	if areaSqMiles == nil || *areaSqMiles <= 0 {
		return nil
	}
	d := float64(zipCount) / *areaSqMiles
	return &d
}

// RegionsFromGeocode derives state-level region codes from the feed's own
// geocoding metadata: the first two letters of each UGC code (validated
// against the known-region set) unioned with the FIPS prefix of each SAME
// code. The result is deduplicated and sorted.
func RegionsFromGeocode(ugcCodes, sameCodes []string) []string {
	set := make(map[string]bool)
	for _, c := range ugcCodes {
		u := strings.ToUpper(strings.TrimSpace(c))
		if len(u) < 2 {
			continue
		}
		if prefix := u[:2]; knownRegions[prefix] {
			set[prefix] = true
		}
	}
	for _, c := range sameCodes {
		s := strings.TrimSpace(c)
		// SAME codes are 6 digits: a leading 0 then the 5-digit county FIPS.
		if len(s) == 6 && s[0] == '0' {
			s = s[1:]
		}
		if len(s) < 2 {
			continue
		}
		if region, ok := fipsToRegion[s[:2]]; ok {
			set[region] = true
		}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
