package agent

import (
	"strings"
	"testing"
)

func TestDetectLanguage(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"empty", "", LangEnglish},
		{"plain english", "Boeing 787 features and performance", LangEnglish},
		{"korean", "보잉 787 특징 분석", LangKorean},
		{"hiragana", "これはとてもいいですね", LangJapanese},
		{"katakana", "ボーイング ドリームライナー", LangJapanese},
		{"chinese only kanji", "飞机性能分析报告内容", LangJapanese},
		{"mostly ascii with a few hangul", "the word 한국 appears once in a long english sentence", LangEnglish},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetectLanguage(tc.text); got != tc.want {
				t.Errorf("DetectLanguage(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}

func TestGenerateMultilingualBackupKorean(t *testing.T) {
	got := GenerateMultilingualBackup("보잉 787 특징")
	if !strings.Contains(got, "Boeing") || !strings.Contains(got, "features") {
		t.Errorf("korean query should map known words to english: %q", got)
	}
	if !strings.Contains(got, "787") {
		t.Errorf("unknown tokens pass through unchanged: %q", got)
	}
}

func TestGenerateMultilingualBackupEnglish(t *testing.T) {
	got := GenerateMultilingualBackup("Boeing aircraft performance")
	for _, want := range []string{"ボーイング", "航空機", "性能"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing substitution %q in %q", want, got)
		}
	}
}

func TestGenerateMultilingualBackupNoTableHit(t *testing.T) {
	// Nothing in the table matches, so the fallback modifier keeps the
	// backup distinct from the original query.
	got := GenerateMultilingualBackup("quantum entanglement experiments")
	if got == "quantum entanglement experiments" {
		t.Errorf("backup must differ from the original query")
	}
	if !strings.HasSuffix(got, "detailed") {
		t.Errorf("expected fallback suffix, got %q", got)
	}
}

func TestGenerateMultilingualBackupJapanese(t *testing.T) {
	got := GenerateMultilingualBackup("これはとてもいいですね")
	if !strings.HasSuffix(got, "English version") {
		t.Errorf("japanese fallback: %q", got)
	}
}

func TestGenerateMultilingualBackupEmpty(t *testing.T) {
	if got := GenerateMultilingualBackup("   "); got != "" {
		t.Errorf("blank query should produce no backup, got %q", got)
	}
}
