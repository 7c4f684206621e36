package extract

import (
	"regexp"
	"strings"

	"github.com/wwwzy/PumpCPQ/internal/model"
)

var wordRe = regexp.MustCompile(`[a-z0-9]+`)

// fluidVocab 顺序敏感：wastewater 必须排在 water 前面。
var fluidVocab = []struct {
	keywords []string
	fluid    string
}{
	{[]string{"wastewater", "waste water", "sewage", "effluent", "grey water", "gray water"}, "wastewater"},
	{[]string{"slurry", "sludge", "mud"}, "slurry"},
	{[]string{"diesel", "gasoline", "petrol", "fuel", "kerosene"}, "fuel"},
	{[]string{"oil", "lubricant", "hydraulic"}, "oil"},
	{[]string{"chemical", "acid", "caustic", "solvent", "glycol"}, "chemical"},
	{[]string{"water", "h2o", "potable", "irrigation", "groundwater"}, "water"},
}

// MatchFluid 按固定词表识别介质类别。
func MatchFluid(lower string) (string, bool) {
	for _, entry := range fluidVocab {
		for _, kw := range entry.keywords {
			if containsWord(lower, kw) {
				return entry.fluid, true
			}
		}
	}
	return "", false
}

var (
	// 电压必须带单位，流量、扬程里的 "2300"、"240 ft" 不能被当成电压
	power460Re = regexp.MustCompile(`\b(460|480)\s*(v|volts?|vac)\b`)
	power230Re = regexp.MustCompile(`\b(220|230|240)\s*(v|volts?|vac)\b`)
	bare460Re  = regexp.MustCompile(`^\D*\b(460|480)\b\D*$`)
	bare230Re  = regexp.MustCompile(`^\D*\b(220|230|240)\b\D*$`)
)

// MatchPower 识别电源：230V/单相 或 460V(480V)/三相。
// asked 为 true 时（正在询问电源）也接受只有一个裸电压数字的回答，例如 "460"。
func MatchPower(lower string, asked bool) (model.PowerSupply, bool) {
	switch {
	case power460Re.MatchString(lower) ||
		containsWord(lower, "three phase") || strings.Contains(lower, "three-phase") ||
		strings.Contains(lower, "3-phase") || containsWord(lower, "3 phase") || strings.Contains(lower, "3ph"):
		return model.Power460V3Ph, true
	case power230Re.MatchString(lower) ||
		containsWord(lower, "single phase") || strings.Contains(lower, "single-phase") ||
		strings.Contains(lower, "1-phase") || containsWord(lower, "1 phase") || strings.Contains(lower, "1ph"):
		return model.Power230V1Ph, true
	}
	if asked {
		switch {
		case bare460Re.MatchString(lower):
			return model.Power460V3Ph, true
		case bare230Re.MatchString(lower):
			return model.Power230V1Ph, true
		}
	}
	return "", false
}

var (
	nonATEXPhrases = []string{
		"non-atex", "non atex", "nonatex", "not atex", "no atex", "not an atex", "safe area",
		"non-hazardous", "non hazardous", "not hazardous", "not explosive", "non-explosive",
		"no explosive", "not flammable", "ordinary", "standard environment",
	}
	atexPhrases = []string{"atex", "explosive", "hazardous", "flammable", "zone 1", "zone 2", "ex-proof", "explosion"}
)

// MatchEnvironment 识别安装环境。先判断否定说法，避免 "non-ATEX" 被识别为 ATEX。
// asked 为 true 时（正在询问环境）简单的 yes/no 也被接受。
func MatchEnvironment(lower string, asked bool) (model.Environment, bool) {
	for _, p := range nonATEXPhrases {
		if strings.Contains(lower, p) {
			return model.EnvNonATEX, true
		}
	}
	for _, p := range atexPhrases {
		if strings.Contains(lower, p) {
			return model.EnvATEX, true
		}
	}
	if asked {
		switch firstWord(lower) {
		case "no", "nope", "nah", "normal", "standard", "indoor", "outdoor":
			return model.EnvNonATEX, true
		case "yes", "yep", "yeah":
			return model.EnvATEX, true
		}
	}
	return "", false
}

// MatchMaterial 识别材质偏好；询问材质时 "no preference" 取更便宜的铸铁。
func MatchMaterial(lower string, asked bool) (model.Material, bool) {
	switch {
	case containsWord(lower, "stainless") || containsWord(lower, "ss") ||
		containsWord(lower, "316") || containsWord(lower, "304") || containsWord(lower, "inox"):
		return model.MaterialStainless, true
	case containsWord(lower, "cast iron") || containsWord(lower, "castiron") ||
		containsWord(lower, "iron") || containsWord(lower, "ci"):
		return model.MaterialCastIron, true
	}
	if asked && isNoPreference(lower) {
		return model.MaterialCastIron, true
	}
	return "", false
}

// MatchMaintenance 识别维护偏好；询问时 "no preference" 取预算优先。
func MatchMaintenance(lower string, asked bool) (model.MaintenanceBias, bool) {
	switch {
	case strings.Contains(lower, "low maintenance") || strings.Contains(lower, "low-maintenance") ||
		strings.Contains(lower, "minimal maintenance") || strings.Contains(lower, "less maintenance") ||
		strings.Contains(lower, "reliab") || strings.Contains(lower, "mechanical seal") ||
		strings.Contains(lower, "long life") || strings.Contains(lower, "uptime"):
		return model.MaintenanceLow, true
	case containsWord(lower, "budget") || containsWord(lower, "cheap") || containsWord(lower, "cheapest") ||
		containsWord(lower, "cost") || containsWord(lower, "inexpensive") || containsWord(lower, "price") ||
		containsWord(lower, "economical") || containsWord(lower, "packing"):
		return model.MaintenanceBudget, true
	}
	if asked && isNoPreference(lower) {
		return model.MaintenanceBudget, true
	}
	return "", false
}

var noPreferencePhrases = []string{
	"no preference", "don't care", "dont care", "do not care", "doesn't matter", "does not matter",
	"either", "whatever", "any is fine", "anything", "not sure", "no idea", "you choose", "up to you",
}

func isNoPreference(lower string) bool {
	for _, p := range noPreferencePhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return strings.TrimSpace(lower) == "any"
}

// mentionsRequirement 判断文本是否包含任何选型关键词，用来避免把 "water" 当成姓名。
func mentionsRequirement(lower string) bool {
	if _, ok := MatchFluid(lower); ok {
		return true
	}
	if _, ok := MatchPower(lower, false); ok {
		return true
	}
	if _, ok := MatchEnvironment(lower, false); ok {
		return true
	}
	if _, ok := MatchMaterial(lower, false); ok {
		return true
	}
	_, ok := MatchMaintenance(lower, false)
	return ok
}

// containsWord 按整词匹配，phrase 可以包含空格。
func containsWord(lower, phrase string) bool {
	words := wordRe.FindAllString(lower, -1)
	target := wordRe.FindAllString(phrase, -1)
	if len(target) == 0 {
		return false
	}
	for i := 0; i+len(target) <= len(words); i++ {
		match := true
		for j, w := range target {
			if words[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func firstWord(lower string) string {
	words := wordRe.FindAllString(lower, 1)
	if len(words) == 0 {
		return ""
	}
	return words[0]
}
