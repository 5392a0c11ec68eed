package news

import "strings"

// Persona is one of the fixed AI commentators.
type Persona struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
	Role  string `json:"role"`
}

// Personas are the five commentators shown under every article.
var Personas = [PersonaCount]Persona{
	{ID: 0, Name: "慎重派の太郎", Emoji: "🧐", Role: "慎重で批判的に物事を見る。リスクや反対意見を指摘する。"},
	{ID: 1, Name: "楽観的な花子", Emoji: "😊", Role: "前向きで可能性を信じる。良い面やチャンスを強調する。"},
	{ID: 2, Name: "専門家の博士", Emoji: "👨‍🔬", Role: "専門家の視点で技術的・学術的な補足をする。"},
	{ID: 3, Name: "庶民派の田中", Emoji: "🙂", Role: "一般人の感覚で、日常にどう影響するか分かりやすく話す。"},
	{ID: 4, Name: "批判的な鈴木", Emoji: "🤔", Role: "メディアや情報のバイアスに敏感。別の角度から疑問を呈する。"},
}

// PersonaByID returns the persona and whether the id is valid.
func PersonaByID(id int) (Persona, bool) {
	if id < 0 || id >= len(Personas) {
		return Persona{}, false
	}
	return Personas[id], true
}

// NormalizePersonas pads or truncates opinions to exactly PersonaCount entries.
func NormalizePersonas(opinions []string) []string {
	out := make([]string, PersonaCount)
	copy(out, opinions)
	return out
}

var badFallbackMarkers = []string{"構造化に失敗", "通常の解説を表示", "しばらくしてから再度"}

// IsBadFallback reports whether blocks are the placeholder produced when
// generation failed. Such cache entries must be regenerated.
func IsBadFallback(blocks []Block) bool {
	if len(blocks) != 2 {
		return false
	}
	if blocks[0].Type != BlockText || blocks[1].Type != BlockExplain {
		return false
	}
	for _, marker := range badFallbackMarkers {
		if strings.Contains(blocks[1].Content, marker) {
			return true
		}
	}
	return false
}

// DisplaySummary picks the listing blurb: the navigator facts section or the
// first text block, cut to 200 runes.
func DisplaySummary(blocks []Block) string {
	for _, b := range blocks {
		if b.Content == "" {
			continue
		}
		if (b.Type == BlockNavigatorSection && b.Section == "facts") || b.Type == BlockText {
			text := strings.TrimSpace(b.Content)
			if RuneLen(text) > 200 {
				return Truncate(text, 200) + "..."
			}
			return text
		}
	}
	return ""
}
