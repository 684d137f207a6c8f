package agent

import "strings"

// Script families recognized by DetectLanguage.
const (
	LangKorean   = "korean"
	LangJapanese = "japanese"
	LangChinese  = "chinese"
	LangEnglish  = "english"
)

// scriptThreshold is the proportion of a string's runes that must fall in a
// script's Unicode range before the string is classified as that language.
const scriptThreshold = 0.3

var koreanToEnglish = map[string]string{
	"보잉":    "Boeing",
	"항공기":   "aircraft",
	"비행기":   "airplane",
	"여객기":   "passenger aircraft",
	"드림라이너": "Dreamliner",
	"특징":    "features",
	"성능":    "performance",
	"사양":    "specifications",
	"기술":    "technology",
	"분석":    "analysis",
	"정보":    "information",
	"최신":    "latest",
}

var englishToJapanese = map[string]string{
	"boeing":         "ボーイング",
	"aircraft":       "航空機",
	"airplane":       "飛行機",
	"features":       "特徴",
	"performance":    "性能",
	"specifications": "仕様",
	"technology":     "技術",
	"analysis":       "分析",
	"latest":         "最新",
	"python":         "パイソン",
	"programming":    "プログラミング",
}

// DetectLanguage classifies text by counting runes inside known script
// ranges against a proportional threshold. Korean wins ties with Japanese
// because Hangul is unambiguous while the Kanji range is shared with Chinese.
func DetectLanguage(text string) string {
	runes := []rune(text)
	if len(runes) == 0 {
		return LangEnglish
	}

	var korean, japanese, chinese int
	for _, r := range runes {
		switch {
		case r >= 0xAC00 && r <= 0xD7A3: // Hangul
			korean++
		case r >= 0x3040 && r <= 0x309F: // Hiragana
			japanese++
		case r >= 0x30A0 && r <= 0x30FF: // Katakana
			japanese++
		case r >= 0x4E00 && r <= 0x9FFF: // Kanji / CJK ideographs
			japanese++
			chinese++
		}
	}

	total := float64(len(runes))
	switch {
	case float64(korean) > total*scriptThreshold:
		return LangKorean
	case float64(japanese) > total*scriptThreshold:
		return LangJapanese
	case float64(chinese) > total*scriptThreshold:
		return LangChinese
	default:
		return LangEnglish
	}
}

// GenerateMultilingualBackup produces an alternate-language version of the
// query for the single bounded recovery search. Word-by-word dictionary
// substitution where a table covers the language, a suffix modifier where it
// does not. This is a retrieval heuristic, not translation.
func GenerateMultilingualBackup(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return ""
	}

	switch DetectLanguage(query) {
	case LangKorean:
		words := strings.Fields(query)
		out := make([]string, 0, len(words))
		for _, w := range words {
			out = append(out, substituteContains(w, koreanToEnglish))
		}
		if len(out) == 0 {
			return query + " in English"
		}
		return strings.Join(out, " ")

	case LangEnglish:
		words := strings.Fields(query)
		out := make([]string, 0, len(words))
		translated := false
		for _, w := range words {
			s := substituteFold(w, englishToJapanese)
			if s != w {
				translated = true
			}
			out = append(out, s)
		}
		// Without at least one substitution the "backup" would be the
		// original query again, which defeats the recovery search.
		if !translated {
			return query + " detailed"
		}
		return strings.Join(out, " ")

	case LangJapanese:
		return query + " English version"

	default: // chinese
		return query + " English"
	}
}

func substituteContains(word string, table map[string]string) string {
	for k, v := range table {
		if strings.Contains(word, k) {
			return v
		}
	}
	return word
}

func substituteFold(word string, table map[string]string) string {
	lower := strings.ToLower(word)
	for k, v := range table {
		if strings.Contains(lower, k) {
			return v
		}
	}
	return word
}
