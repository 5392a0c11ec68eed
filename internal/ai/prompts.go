package ai

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/chiripo-news/internal/news"
)

// Placeholder texts rendered when the provider is unavailable.
const (
	MsgExplainNoKey   = "（APIキーが設定されていません。.envにOPENAI_API_KEYを設定してください）"
	MsgNoKey          = "（APIキーが設定されていません）"
	MsgNoKeyShort     = "（APIキー未設定）"
	MsgGenerateFailed = "（生成に失敗しました。しばらくしてから再度お試しください。）"
	MsgStructFailed   = "（構造化に失敗しました。しばらくしてから再度お試しください。）"
	MsgUnavailable    = "（取得できませんでした）"
)

const explainSystem = `あなたは「ミドルマン」というAI解説キャラです。
読者がニュースを読みながら理解できるよう、難しい部分を分かりやすく解説します。
専門用語・背景知識を中学生でも分かる平易な言葉で、読者に語りかける口調で説明してください。`

const middlemanRole = `あなたは「ミドルマン」。友達に教えてあげるような喋り言葉で記事を書く。

■ 口調
・出力は必ず日本語。英語入力でも日本語で。
・記事本文（textブロック）も喋り言葉で書く。「〜なんですよね」「〜ってわけです」「〜みたいです」のように友達に話す口調。堅い書き言葉・体言止め・新聞調は避ける。
・事実は変えない。推測は「〜とみられてます」等。

■ 長さ
・約3分で読める長さ（本文1200字〜2500字。ミドルマンの解説は別）。
・短い入力なら背景・経緯を補足して膨らませる。長い入力は活かして段落分け。

■ やること
1) 記事を読んで内容を把握。
2) 記事本文（textブロック）を喋り言葉で作る。
3) 難しい言葉や「ここ補足あると分かりやすいな」って箇所にミドルマンの解説（explain）を挟む。

重要：
・explainブロック＝記事の内容を補完する形で、噛み砕いて教える。友達が横で「それってさ〜」って説明してくれる感じ。1〜3文で収める。煽らない。事実ベース。
・出力はJSON配列形式のみ。`

const longBubblesRole = `あなたは「ミドルマン」。友達に話しかけるような喋り言葉で記事を書き、ところどころで吹き出し解説を入れてください。

■ 言語と口調
・出力は必ず日本語。英語の入力でも日本語で書く。
・記事本文（textブロック）も喋り言葉で書く。「〜なんですよね」「〜ってわけです」「〜みたいです」のように、友達に教えてあげる口調。ただし事実は変えない。推測は「〜とみられてます」「〜っぽいですね」等。
・堅い書き言葉や体言止め・新聞調は避ける。

■ 長さ
・本文（textブロックの合計）は約3分で読める分量（2500字〜4500字）。
・短い入力なら背景・経緯・関連情報を補足して膨らませる。

■ ブロックの並べ方
・textブロック＝記事本文。喋り言葉の段落。続き物として1つの読み物に。
・explainブロック＝ミドルマンの吹き出し解説。記事の内容を「補完」する形で、読者が分かりにくい部分を噛み砕いて説明する。
  - 専門用語・制度・仕組みを平易に説明する
  - 過去に同じテーマの出来事があれば「前にも〇〇ってありましたよね」のように短く触れる
  - 見出しやラベルは使わない。自然な語り口で。
・重要：各 explain は 1〜3 文・2行前後に収める。一度に長い話をしない。
・記事の流れのどこかで適宜 explain を挟む（3〜6個程度）。

■ 出力
・必ずJSON配列。各要素は {"type": "text" または "explain", "content": "本文"} のみ。
・説明文やマークダウンは出力しない。`

const navigatorRole = `あなたは「理解ナビゲーター」です。ニュース記事を読んで、読者が理解しやすいよう次の5項目で必ず再構成してください。
・何が起きたか（事実）：起きたことの要点を簡潔に。
・なぜ起きたか（背景）：原因・経緯・文脈を分かりやすく。
・誰に影響するか（影響範囲）：どのような人・業界・地域に影響するか。
・次に何が起きそうか（予測）：今後の見通し・想定される動き（不確実な場合は「〜の可能性がある」などと表現）。
・誤解しやすい点（注意）：よくある誤解や注意すべき解釈を簡潔に。
各項目は2〜5文程度。事実に基づき、平易な日本語で。煽らず、推測は「〜とみられる」等で示す。`

const (
	longBubblesPlainSuffix = " 出力はJSONの blocks 配列のみ。余計な説明は不要です。"
	inlinePlainSuffix      = " 指定されたJSON形式のみを出力してください。余計な説明は不要です。"
	navigatorPlainSuffix   = " 出力はJSONのみ。facts, background, impact, prediction, caution の5キーを必ず含めてください。"
)

const quickUnderstandSystem = "あなたはニュース速報の要約者です。以下の記事を3つの視点で各1文（30字以内）にまとめてください。\n\n出力はJSON形式で：\n{\"what\": \"何が起きたか\", \"why\": \"なぜ起きたか\", \"how\": \"今後どうなるか\"}\n\n日本語で、簡潔に。JSONのみ出力。"

const voteSystem = "以下のニュース記事について、読者に問いかける投票質問を1つ作ってください。選択肢は3〜4個。\n\n出力はJSON形式で：\n{\"question\": \"質問文\", \"options\": [{\"id\": \"a\", \"label\": \"選択肢1\"}, {\"id\": \"b\", \"label\": \"選択肢2\"}, ...]}\n\n日本語で。JSONのみ出力。"

const (
	paragraphSystem     = "ニュース記事の難しい部分を簡単に解説するアシスタントです。日本語で簡潔に。"
	rewriteSystem       = "ニュースを日本語で分かりやすく言い換えるアシスタント。元文をコピーせず独自表現で。"
	translateBodySystem = "ニュース記事を日本語に翻訳するアシスタント。自然な日本語で、余計な説明は出力しない。"
	dailyMemoSystem     = "あなたはニュースアナリストです。昨日のニュースを踏まえ、今日どうなるかを100字以内の一言メモにしてください。日本語で。"
)

// NavigatorSections is the fixed order of navigator blocks.
var NavigatorSections = []string{"facts", "background", "impact", "prediction", "caution"}

var blocksSchema = &JSONSchema{
	Name:   "inline_blocks",
	Strict: true,
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"blocks": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"type":    map[string]any{"type": "string", "enum": []string{"text", "explain"}},
						"content": map[string]any{"type": "string"},
					},
					"required":             []string{"type", "content"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"blocks"},
		"additionalProperties": false,
	},
}

var navigatorSchema = &JSONSchema{
	Name:   "navigator_sections",
	Strict: true,
	Schema: func() map[string]any {
		props := make(map[string]any, len(NavigatorSections))
		for _, s := range NavigatorSections {
			props[s] = map[string]any{"type": "string"}
		}
		return map[string]any{
			"type":                 "object",
			"properties":           props,
			"required":             NavigatorSections,
			"additionalProperties": false,
		}
	}(),
}

func explainPrompt(title, content string) string {
	return fmt.Sprintf(`以下のニュース記事を、ミドルマンとして分かりやすく解説してください。

【タイトル】%s

【本文】
%s

---
上記記事について、読者が理解しやすいよう以下を解説してください：
1. 記事の要約（2-3文）
2. 難しい用語・概念の解説
3. 背景知識（なぜこのニュースが重要か）
4. まとめ`, title, news.Truncate(content, 4000))
}

func longBubblesPrompt(title, content string) string {
	return fmt.Sprintf(`以下の記事を、友達に話すような喋り言葉で約3分で読める読み物にして。ところどころミドルマンの吹き出し（explain）も挟んで。

【タイトル】%s
【本文】
%s

■ やること
1) 記事本文を喋り言葉で書く（「〜なんですよね」「〜ってわけです」等の口調）。約3分で読める分量（2500〜4500字）の複数 text ブロックで。短い入力なら背景・経緯を補足して膨らませる。
2) 適宜 explain ブロックでミドルマンが解説。記事の内容を補完するように、難しい部分を噛み砕いて教える。過去の関連事例があれば「前にも〇〇ってありましたよね」みたいに短く触れる。各 explain は1〜3文・2行前後に収め、一度に長い話はしない。
3) blocks 配列のJSONのみ出力。`, title, news.Truncate(content, 20000))
}

func inlinePrompt(title, content string) string {
	return fmt.Sprintf(`以下はRSSで取得した記事（タイトル＋本文）です。これを読んで、読者が約3分で読める記事にしてください。

【タイトル】%s
【RSSで取得した本文】
%s

■ やること
1. 上記の内容を把握する。
2. 記事本文（textブロック）を作る：内容が短い場合は、事実を変えずに背景・経緯・関連情報を補足して、約3分で読める長さ（本文1200字〜2500字程度）に膨らませる。もともと長い場合は過度に要約せず、段落に分けて活かす。
3. 専門用語・固有名詞・略語・背景がある箇所の直後に、ミドルマンの解説（explain）を1つずつ挟む。解説は「人間が喋ってる風」の話し言葉で（です・ます調、親しみやすく）。平易な言葉だけを使い、背景や意味を説明しながら読み進められるようにする。

出力例: [{"type":"text","content":"記事の冒頭〜"},{"type":"explain","content":"○○とは〜です。"},{"type":"text","content":"記事の続き〜"}, ...]

blocks配列のJSONのみ返す。`, title, news.Truncate(content, 20000))
}

func navigatorPrompt(title, content string) string {
	return fmt.Sprintf(`以下の記事を、理解ナビゲーターの5項目で再構成してください。

【タイトル】%s
【本文】
%s

出力は必ずJSONオブジェクトで、次の5つのキーだけを含めてください（日本語で記述）：
facts（何が起きたか・事実）, background（なぜ起きたか・背景）, impact（誰に影響するか・影響範囲）, prediction（次に何が起きそうか・予測）, caution（誤解しやすい点・注意）`, title, news.Truncate(content, 20000))
}

func personaSystem(p news.Persona) string {
	return fmt.Sprintf("あなたは「%s」という人格です。%s\nニュース記事を読んで、この人格として短い意見（3〜5文程度）を述べてください。口語で親しみやすく。", p.Name, p.Role)
}

func personaPrompt(p news.Persona, title, content string) string {
	return fmt.Sprintf("【タイトル】%s\n\n【本文抜粋】\n%s\n\n---\n上記のニュースについて、%sとしての意見を書いてください。", title, news.Truncate(content, 2000), p.Name)
}

func digestPrompt(title, content string) string {
	return fmt.Sprintf("【タイトル】%s\n\n【内容】\n%s", title, news.Truncate(content, 2000))
}

func paragraphPrompt(title, paragraph string) string {
	return fmt.Sprintf("【記事タイトル】%s\n\n【この部分を解説】\n%s", title, news.Truncate(paragraph, 800))
}

func rewritePrompt(title, summary string) string {
	return fmt.Sprintf(`以下の英語ニュースのタイトルと要約を、日本語に訳し、独自の表現で言い直してください。
元の文章をそのまま訳すのではなく、意味を保ちながら別の言い方で書き直してください（著作権配慮）。

■ タイトルは【】で囲んだインパクトのある短い語句から始めてください。
  例：【ついに】〇〇が〇〇に、【なぜ】〇〇は〇〇なのか、【衝撃】〇〇が判明、【速報】〇〇を発表
  ※【】の中は2〜5文字程度の短い語句。内容に合う自然なものにする。

【元タイトル】%s

【元要約】
%s

以下の形式のみで返してください。
%s
（日本語のタイトルを1行で。【○○】から始める）
%s
（日本語の要約を2〜4文で）`, news.Truncate(title, 300), news.Truncate(summary, 800), titleMarker, summaryMarker)
}

func translateBodyPrompt(body string) string {
	return fmt.Sprintf(`以下の英語ニュース記事の本文を、日本語に翻訳してください。
・意味を保ちながら自然な日本語に。著作権に配慮し、独自の表現で言い換えてください。
・専門用語は必要に応じて補足説明を添える。
・翻訳後の本文のみ返し、余計な説明は不要。

【元の本文】
%s
`, news.Truncate(body, maxBodyTranslateRunes))
}

func personaCommentSystem(p news.Persona) string {
	return fmt.Sprintf("あなたは「%s」です。%s\n\n今日のニューストレンドを見て、80字以内で一言コメントしてください。", p.Name, p.Role)
}

func titleList(titles []string) string {
	lines := make([]string, 0, len(titles))
	for _, t := range titles {
		lines = append(lines, "- "+t)
	}
	return strings.Join(lines, "\n")
}
