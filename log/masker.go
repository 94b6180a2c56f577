package log

import (
	"regexp"
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// Mask is used to mask a secret in strings.
type Mask struct {
	RegExp *regexp.Regexp
	Mask   string
}

func NewMask(cfg MaskConfig) Mask {
	return Mask{regexp.MustCompile(cfg.RegExp), cfg.Mask}
}

// FieldMasker is used to mask a field in different formats.
type FieldMasker struct {
	Field string // Field is a name of a field used in RegExp, must be lowercase
	Masks []Mask
}

func NewFieldMasker(cfg MaskingRuleConfig) FieldMasker {
	fMask := FieldMasker{Field: strings.ToLower(cfg.Field), Masks: make([]Mask, 0, len(cfg.Masks))}

	for _, repCfg := range cfg.Masks {
		fMask.Masks = append(fMask.Masks, NewMask(repCfg))
	}
	for _, format := range cfg.Formats {
		switch format {
		case FieldMaskFormatHTTPHeader:
			fMask.Masks = append(fMask.Masks, NewMask(MaskConfig{`(?i)` + cfg.Field + `: .+?\r\n`, cfg.Field + ": ***\r\n"}))
		case FieldMaskFormatJSON:
			fMask.Masks = append(fMask.Masks, NewMask(MaskConfig{`(?i)"` + cfg.Field + `"\s*:\s*".*?[^\\]"`, `"` + cfg.Field + `": "***"`}))
		case FieldMaskFormatURLEncoded:
			fMask.Masks = append(fMask.Masks, NewMask(MaskConfig{`(?i)` + cfg.Field + `\s*=\s*[^&\s]+`, cfg.Field + "=***"}))
		}
	}
	return fMask
}

// Masker is used to mask various secrets in strings.
// Field names of all rules are combined into a single Aho-Corasick matcher,
// so the check which rules may apply to a string is done in one pass over it.
type Masker struct {
	fieldMasks []FieldMasker

	fieldMatcher *ahocorasick.Matcher
	rulesByField [][]int // indices in fieldMasks per matcher dictionary entry
	alwaysRules  []int   // rules without a field name, applied on every call
}

func NewMasker(rules []MaskingRuleConfig) *Masker {
	r := &Masker{fieldMasks: make([]FieldMasker, 0, len(rules))}
	var fields []string
	fieldIdx := make(map[string]int)
	for i, rule := range rules {
		fMask := NewFieldMasker(rule)
		r.fieldMasks = append(r.fieldMasks, fMask)
		if fMask.Field == "" {
			r.alwaysRules = append(r.alwaysRules, i)
			continue
		}
		// Rules may share a field name (e.g. a custom rule on top of the default one),
		// the matcher dictionary keeps each field once.
		idx, ok := fieldIdx[fMask.Field]
		if !ok {
			idx = len(fields)
			fieldIdx[fMask.Field] = idx
			fields = append(fields, fMask.Field)
			r.rulesByField = append(r.rulesByField, nil)
		}
		r.rulesByField[idx] = append(r.rulesByField[idx], i)
	}
	r.fieldMatcher = ahocorasick.NewStringMatcher(fields)
	return r
}

func (r *Masker) Mask(s string) string {
	if len(r.fieldMasks) == 0 {
		return s
	}
	matched := make(map[int]struct{}, len(r.alwaysRules))
	for _, i := range r.alwaysRules {
		matched[i] = struct{}{}
	}
	for _, hit := range r.fieldMatcher.MatchThreadSafe([]byte(strings.ToLower(s))) {
		for _, i := range r.rulesByField[hit] {
			matched[i] = struct{}{}
		}
	}
	if len(matched) == 0 {
		return s
	}
	// Apply the matched rules in their original order.
	for i := range r.fieldMasks {
		if _, ok := matched[i]; !ok {
			continue
		}
		for _, rep := range r.fieldMasks[i].Masks {
			s = rep.RegExp.ReplaceAllString(s, rep.Mask)
		}
	}
	return s
}

var DefaultMasks = []MaskingRuleConfig{
	{
		Field:   "Authorization",
		Formats: []FieldMaskFormat{FieldMaskFormatHTTPHeader},
	},
	{
		Field:   "password",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "client_secret",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "access_token",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "refresh_token",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "id_token",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "assertion",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "api_key",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
}
