package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/wwwzy/PumpCPQ/internal/model"
)

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	// 电话：允许空格、横线、括号、点分隔，数字总数不少于 10 位
	phoneRe  = regexp.MustCompile(`\+?\(?\d[\d\s().\-]{8,}\d`)
	numberRe = regexp.MustCompile(`\d+(?:\.\d+)?`)

	gpmRe  = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:gpm|gallons?\s+(?:per|a|/)\s*min(?:ute)?|g/min)`)
	headRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:ft|feet|foot)\b`)

	nameIntroRe    = regexp.MustCompile(`(?i)\b(?:my name is|my name's|name is|i am|i'm|im|this is|call me)\s+([A-Za-z][A-Za-z .'\-]{0,40})`)
	companyIntroRe = regexp.MustCompile(`(?i)\b(?:company is|i work (?:at|for)|we are|we're|from|with|at)\s+([A-Za-z0-9][A-Za-z0-9 &.,'\-]{0,60})`)
)

// Heuristic 是确定性的兜底策略，只依赖正则和固定词表。
type Heuristic struct{}

func (Heuristic) Name() string { return "heuristic" }

func (Heuristic) Extract(_ context.Context, req Request) (model.Patch, error) {
	var p model.Patch
	msg := strings.TrimSpace(req.Message)

	extractContact(&p.Customer, msg)
	switch req.Asked {
	case model.FieldName:
		if v, ok := guessName(msg); ok {
			p.Customer.Name = &v
		}
	case model.FieldCompany:
		if v, ok := guessCompany(msg); ok {
			p.Customer.Company = &v
		}
	}

	extractRequirements(&p.Requirements, req, msg)
	return p, nil
}

func extractContact(c *model.CustomerPatch, msg string) {
	if m := emailRe.FindString(msg); m != "" {
		c.Email = model.Ptr(strings.TrimRight(m, "."))
	}
	withoutEmail := emailRe.ReplaceAllString(msg, " ")
	for _, m := range phoneRe.FindAllString(withoutEmail, -1) {
		if countDigits(m) >= 10 {
			c.Phone = model.Ptr(strings.TrimSpace(m))
			break
		}
	}
}

func extractRequirements(r *model.RequirementsPatch, req Request, msg string) {
	msg = stripContact(msg)
	lower := strings.ToLower(msg)

	if m := gpmRe.FindStringSubmatch(msg); m != nil {
		r.GPM = parsePositive(m[1])
	}
	if m := headRe.FindStringSubmatch(msg); m != nil {
		r.HeadFt = parsePositive(m[1])
	}

	// 没有单位的裸数字只在询问流量/扬程时使用
	nums := bareNumbers(msg)
	switch req.Asked {
	case model.FieldGPM:
		if r.GPM == nil && len(nums) > 0 {
			r.GPM = parsePositive(nums[0])
			nums = nums[1:]
		}
		if r.HeadFt == nil && len(nums) > 0 {
			r.HeadFt = parsePositive(nums[0])
		}
	case model.FieldHeadFt:
		if r.HeadFt == nil && len(nums) > 0 {
			idx := 0
			// 同时复述了流量时取第二个数字
			if len(nums) > 1 && req.Requirements.GPM > 0 && parseFloat(nums[0]) == req.Requirements.GPM {
				idx = 1
			}
			r.HeadFt = parsePositive(nums[idx])
		}
	}

	if v, ok := MatchFluid(lower); ok {
		r.Fluid = &v
	} else if req.Asked == model.FieldFluid && looksLikeShortAnswer(msg, 4) && !isNoPreference(lower) {
		r.Fluid = model.Ptr(strings.ToLower(strings.Trim(msg, " .!")))
	}
	if v, ok := MatchPower(lower, req.Asked == model.FieldPower); ok {
		r.PowerAvailable = &v
	}
	if v, ok := MatchEnvironment(lower, req.Asked == model.FieldEnvironment); ok {
		r.Environment = &v
	}
	if v, ok := MatchMaterial(lower, req.Asked == model.FieldMaterial); ok {
		r.MaterialPref = &v
	}
	if v, ok := MatchMaintenance(lower, req.Asked == model.FieldMaintenance); ok {
		r.MaintenanceBias = &v
	}
}

// stripContact 去掉邮箱和电话，避免其中的数字被当成流量、扬程或电压。
func stripContact(msg string) string {
	msg = emailRe.ReplaceAllString(msg, " ")
	return phoneRe.ReplaceAllStringFunc(msg, func(s string) string {
		if countDigits(s) >= 10 {
			return " "
		}
		return s
	})
}

// bareNumbers 返回没有单位后缀的数字；带 gpm/ft 的已由单位正则处理，
// 带电压、功率、百分比后缀的不是流量或扬程。
func bareNumbers(msg string) []string {
	lower := strings.ToLower(msg)
	var out []string
	for _, loc := range numberRe.FindAllStringIndex(lower, -1) {
		rest := strings.TrimLeft(lower[loc[1]:], " ")
		if hasAnyPrefix(rest, "gpm", "gal", "g/min", "ft", "feet", "foot",
			"v", "volt", "hp", "horse", "%", "ph", "phase", "-phase") {
			continue
		}
		out = append(out, lower[loc[0]:loc[1]])
	}
	return out
}

func guessName(msg string) (string, bool) {
	if m := nameIntroRe.FindStringSubmatch(msg); m != nil {
		name := trimName(m[1])
		if name != "" && len(strings.Fields(name)) <= 3 && !notAName[strings.ToLower(strings.Fields(name)[0])] {
			return name, true
		}
	}
	lower := strings.ToLower(msg)
	if isSkip(lower) || mentionsRequirement(lower) {
		return "", false
	}
	if looksLikeShortAnswer(msg, 3) && !strings.ContainsAny(msg, "@0123456789") {
		return trimName(msg), true
	}
	return "", false
}

var notAName = map[string]bool{
	"looking": true, "interested": true, "trying": true, "here": true, "fine": true,
	"good": true, "not": true, "just": true, "a": true, "the": true, "sure": true,
}

// trimName 去掉姓名后面跟着的从句，例如 "Dana and I need a pump"。
func trimName(s string) string {
	s = strings.TrimSpace(s)
	for _, sep := range []string{",", ".", "!", " and ", " from ", " at ", " with ", " i ", " we "} {
		if i := strings.Index(strings.ToLower(s), sep); i > 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}

func guessCompany(msg string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(msg))
	if lower == "" || isSkip(lower) || IsPersonalUse(lower) {
		return "", true
	}
	if m := companyIntroRe.FindStringSubmatch(msg); m != nil {
		v := strings.TrimSpace(strings.TrimRight(m[1], " .!"))
		if v != "" {
			return v, true
		}
	}
	if looksLikeShortAnswer(msg, 6) && !strings.Contains(msg, "@") {
		return strings.TrimSpace(strings.TrimRight(msg, " .!")), true
	}
	return "", false
}

var skipAnswers = map[string]bool{
	"skip": true, "none": true, "no": true, "nope": true, "n/a": true, "na": true, "-": true,
	"no company": true, "not applicable": true, "pass": true, "prefer not to say": true,
	"rather not say": true, "nothing": true, "individual": true, "myself": true, "just me": true,
}

func isSkip(lower string) bool {
	return skipAnswers[strings.Trim(strings.TrimSpace(lower), ".!")]
}

var personalUsePhrases = []string{
	"personal use", "for personal", "for my home", "my home", "at home", "my house",
	"my own use", "private use", "homeowner", "residential", "my garden", "my backyard",
	"my basement", "my well", "not a business", "no business", "for myself",
}

// IsPersonalUse 判断回复是否明显表明私人/家庭用途。
func IsPersonalUse(msg string) bool {
	lower := strings.ToLower(msg)
	for _, p := range personalUsePhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func looksLikeShortAnswer(msg string, maxWords int) bool {
	words := strings.Fields(msg)
	return len(words) > 0 && len(words) <= maxWords
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parsePositive(s string) *float64 {
	v := parseFloat(s)
	if v <= 0 {
		return nil
	}
	return &v
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
