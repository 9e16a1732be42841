// Package extract turns free-form part descriptions into canonical 590/591
// codes ("590-08060", "591-67890B").
//
// The extraction is an ordered cascade of independent rules. Each rule either
// fires and returns the canonical code, or declines; the first rule that fires
// wins. Order is load-bearing: the short zero-padded rules must run before the
// bare 5-digit fallback, and the prefixed rules before everything else.
package extract

import (
	"regexp"
	"strings"
)

// Method tags the tier that produced a Result.
type Method string

const (
	MethodEmptyInput        Method = "empty_input"
	MethodNoMatch           Method = "no_match"
	MethodDirectFormat      Method = "direct_format"
	MethodPatternExtraction Method = "pattern_extraction" // reserved; see Normalize
	MethodComplexExtraction Method = "complex_extraction"
)

// Result is the outcome of normalizing one value.
type Result struct {
	Extracted  string `json:"extracted"`
	Confidence int    `json:"confidence"`
	Method     Method `json:"method"`
	Original   string `json:"original"`
	// Rule names the cascade rule that fired; empty when nothing fired.
	Rule string `json:"rule,omitempty"`
}

// Matched reports whether the cascade changed the input.
func (r Result) Matched() bool { return r.Confidence > 0 }

const padWidth = 5

var (
	reExact         = regexp.MustCompile(`^(59[01])-(\d+)([A-Za-z]*)$`)
	rePrefixed      = regexp.MustCompile(`(59[01])-(\d+)([A-Za-z]*)`)
	reLeadShort     = regexp.MustCompile(`^(\d{3,4})([A-Za-z]*):`)
	reWordShort     = regexp.MustCompile(`\b(\d{3,4})\b`)
	reLeadLong      = regexp.MustCompile(`^(\d{4,5}):`)
	reIDMarker      = regexp.MustCompile(`(?i)ID[#\s]*590-(\d+)`)
	reBracketed     = regexp.MustCompile(`[(\[].*?590-(\d+).*?[)\]]`)
	reEmbedded590   = regexp.MustCompile(`590-(\d+)`)
	reBareLong      = regexp.MustCompile(`^(\d{4,5})$`)
	reLoosePrefix   = regexp.MustCompile(`\b(59[01])[-\s]*(\d+)([A-Za-z]*)\b`)
	reOEMMarker     = regexp.MustCompile(`(?i)OEM[#\s]*.*?590-(\d+)`)
	reEngineMarker  = regexp.MustCompile(`(?i)engine compartment.*?590-(\d+)`)
	reAnyPrefixed   = regexp.MustCompile(`59[01]-\d`)
	reFiveDigits    = regexp.MustCompile(`\b(\d{5})\b`)
	reTokenSplitter = regexp.MustCompile(`[\s,;:]+`)
	reCanonical590  = regexp.MustCompile(`^590-\d+$`)
)

type rule struct {
	name  string
	apply func(s string) (string, bool)
}

// cascade is evaluated top to bottom; see the package doc for why the order
// must not change.
var cascade = []rule{
	{"direct_prefix", directPrefix},
	{"prefix_anywhere", prefixAnywhere},
	{"leading_short_colon", leadingShortColon},
	{"standalone_short", standaloneShort},
	{"leading_long_colon", leadingLongColon},
	{"id_marker", markerRule(reIDMarker)},
	{"bracketed", markerRule(reBracketed)},
	{"comma_parts", commaParts},
	{"semicolon_parts", semicolonParts},
	{"loose_prefix", loosePrefix},
	{"oem_marker", markerRule(reOEMMarker)},
	{"engine_compartment", markerRule(reEngineMarker)},
	{"bare_five_digit", bareFiveDigit},
}

// Rules returns the cascade rule names in evaluation order.
func Rules() []string {
	out := make([]string, len(cascade))
	for i, r := range cascade {
		out[i] = r.name
	}
	return out
}

// Clean runs the cascade and returns the canonical code, or the input
// unchanged when no rule fires. The input is trimmed before matching.
func Clean(input string) string {
	out, _ := clean(input)
	return out
}

func clean(input string) (string, string) {
	if input == "" {
		return input, ""
	}
	s := strings.TrimSpace(input)
	for _, r := range cascade {
		if out, ok := r.apply(s); ok {
			return out, r.name
		}
	}
	return input, ""
}

// Normalize runs the cascade and scores the result. It never fails: an
// unmatched value is returned unchanged with confidence 0.
func Normalize(input string) Result {
	if strings.TrimSpace(input) == "" {
		return Result{Extracted: input, Method: MethodEmptyInput, Original: input}
	}

	extracted, ruleName := clean(input)
	res := Result{
		Extracted: extracted,
		Method:    MethodNoMatch,
		Original:  input,
	}
	if extracted == input {
		return res
	}

	res.Rule = ruleName
	// MethodPatternExtraction (85) is never assigned: its condition is the
	// same as direct_format's, so the higher tier always wins.
	if reCanonical590.MatchString(extracted) {
		res.Confidence = 100
		res.Method = MethodDirectFormat
	} else {
		res.Confidence = 70
		res.Method = MethodComplexExtraction
	}
	return res
}

func directPrefix(s string) (string, bool) {
	if reExact.MatchString(s) {
		return s, true
	}
	return "", false
}

func prefixAnywhere(s string) (string, bool) {
	m := rePrefixed.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1] + "-" + m[2] + m[3], true
}

func leadingShortColon(s string) (string, bool) {
	m := reLeadShort.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return "590-" + zeroPad(m[1]) + m[2], true
}

// standaloneShort only takes bare digit words; "2500rpm" or "350Z" are not
// codes.
func standaloneShort(s string) (string, bool) {
	m := reWordShort.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return "590-" + zeroPad(m[1]), true
}

func leadingLongColon(s string) (string, bool) {
	m := reLeadLong.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return "590-" + m[1], true
}

// markerRule builds a rule from a pattern whose first group is the digit run
// following "590-".
func markerRule(re *regexp.Regexp) func(string) (string, bool) {
	return func(s string) (string, bool) {
		m := re.FindStringSubmatch(s)
		if m == nil {
			return "", false
		}
		return "590-" + m[1], true
	}
}

func commaParts(s string) (string, bool) {
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if m := reEmbedded590.FindStringSubmatch(part); m != nil {
			return "590-" + m[1], true
		}
		if m := reBareLong.FindStringSubmatch(part); m != nil {
			return "590-" + m[1], true
		}
	}
	return "", false
}

func semicolonParts(s string) (string, bool) {
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if m := reEmbedded590.FindStringSubmatch(part); m != nil {
			return "590-" + m[1], true
		}
	}
	return "", false
}

func loosePrefix(s string) (string, bool) {
	m := reLoosePrefix.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1] + "-" + m[2] + m[3], true
}

// bareFiveDigit is the last resort. It stays silent when the text already
// carries a prefixed code so that a clean prefixed value is never replaced
// by an unrelated number.
func bareFiveDigit(s string) (string, bool) {
	if reAnyPrefixed.MatchString(s) {
		return "", false
	}
	var tokens map[string]struct{}
	for _, m := range reFiveDigits.FindAllStringSubmatch(s, -1) {
		n := m[1]
		if strings.HasPrefix(s, n+":") {
			return "590-" + n, true
		}
		if tokens == nil {
			tokens = make(map[string]struct{})
			for _, tok := range reTokenSplitter.Split(s, -1) {
				tokens[tok] = struct{}{}
			}
		}
		if _, ok := tokens[n]; ok {
			return "590-" + n, true
		}
	}
	return "", false
}

// zeroPad left-pads digits with zeros to padWidth. Longer input is returned
// as is.
func zeroPad(digits string) string {
	if len(digits) >= padWidth {
		return digits
	}
	return strings.Repeat("0", padWidth-len(digits)) + digits
}
