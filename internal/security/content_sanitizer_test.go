package security

import (
	"strings"
	"testing"
)

// TestSanitize_StripsTags はHTMLタグが除去されテキストのみが残ることを検証する。
func TestSanitize_StripsTags(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "強調タグが除去される",
			input: "<strong>今日は</strong>良い日",
			want:  "今日は良い日",
		},
		{
			name:  "段落タグが除去される",
			input: "<p>散歩した</p>",
			want:  "散歩した",
		},
		{
			name:  "リンクはテキストだけ残る",
			input: `<a href="https://example.com">リンク</a>`,
			want:  "リンク",
		},
		{
			name:  "画像タグは完全に除去される",
			input: `前<img src="https://example.com/a.png">後`,
			want:  "前後",
		},
		{
			name:  "前後の空白が除去される",
			input: "  気分は普通  ",
			want:  "気分は普通",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitize_ForbiddenTags はscript, style, iframeとその内容が除去されることを検証する。
func TestSanitize_ForbiddenTags(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name       string
		input      string
		wantAbsent []string
	}{
		{
			name:       "scriptタグが除去される",
			input:      `<script>alert("xss")</script>本文`,
			wantAbsent: []string{"<script", "alert"},
		},
		{
			name:       "styleタグが除去される",
			input:      `<style>body{color:red}</style>本文`,
			wantAbsent: []string{"<style", "color:red"},
		},
		{
			name:       "iframeタグが除去される",
			input:      `<iframe src="https://evil.example.com"></iframe>本文`,
			wantAbsent: []string{"<iframe", "evil.example.com"},
		},
		{
			name:       "on*イベント属性が除去される",
			input:      `<div onclick="steal()">本文</div>`,
			wantAbsent: []string{"onclick", "steal"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, s := range tt.wantAbsent {
				if strings.Contains(got, s) {
					t.Errorf("Sanitize(%q) = %q, should not contain %q", tt.input, got, s)
				}
			}
			if !strings.Contains(got, "本文") {
				t.Errorf("Sanitize(%q) = %q, want text preserved", tt.input, got)
			}
		})
	}
}

// TestSanitize_PlainText はHTMLを含まないテキストがそのまま返されることを検証する。
func TestSanitize_PlainText(t *testing.T) {
	sanitizer := NewTextSanitizer()

	input := "A & B は \"友達\" と話した"
	if got := sanitizer.Sanitize(input); got != input {
		t.Errorf("Sanitize(%q) = %q, want unchanged", input, got)
	}
}

func TestSanitize_EmptyInput(t *testing.T) {
	sanitizer := NewTextSanitizer()

	if got := sanitizer.Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, want empty", got)
	}
	if got := sanitizer.Sanitize("<b></b>"); got != "" {
		t.Errorf("Sanitize(\"<b></b>\") = %q, want empty", got)
	}
}

// TestSanitize_Idempotent は同一入力に対して常に同一出力（冪等性）を検証する。
func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewTextSanitizer()
	input := `<p>今日は<em>とても</em>楽しかった</p><script>x()</script>`

	result1 := sanitizer.Sanitize(input)
	result2 := sanitizer.Sanitize(input)
	if result1 != result2 {
		t.Errorf("冪等性違反: 1回目=%q, 2回目=%q", result1, result2)
	}
}

func TestSanitizeAll_DropsEmpty(t *testing.T) {
	sanitizer := NewTextSanitizer()

	got := SanitizeAll(sanitizer, []string{"<b>走る</b>", "  ", "<script>x()</script>", "読書"})
	want := []string{"走る", "読書"}
	if len(got) != len(want) {
		t.Fatalf("SanitizeAll = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SanitizeAll[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
