package contextfilter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wisefido-sos/internal/models"
)

func candidate(t *testing.T, utterance, span, language string, sev models.Severity, cat models.Category) models.MatchCandidate {
	t.Helper()
	start := strings.Index(strings.ToLower(utterance), strings.ToLower(span))
	require.GreaterOrEqual(t, start, 0, "span %q not in %q", span, utterance)
	return models.MatchCandidate{
		PhraseID: "test",
		Language: language,
		Severity: sev,
		Category: cat,
		MatchedSpan: models.MatchedSpan{
			Text:  utterance[start : start+len(span)],
			Start: start,
			End:   start + len(span),
		},
	}
}

func TestFilter_Suppressors(t *testing.T) {
	f := New()

	tests := []struct {
		name      string
		utterance string
		span      string
		language  string
		category  models.Category
		want      []Suppressor
	}{
		// 本人当下自述：保留
		{"first person present", "I think I'm having a heart attack", "heart attack", "en", models.CategoryMedical, nil},
		{"first person fall", "I've fallen and I can't get up", "can't get up", "en", models.CategoryPhysical, nil},
		{"help request", "please help me, my chest hurts", "help me", "en", models.CategoryRequest, nil},
		{"someone in house", "someone is in my house", "someone is in my house", "en", models.CategorySafety, nil},
		{"third party as threat", "there's an intruder, he is breaking in", "breaking in", "en", models.CategorySafety, nil},
		{"first person after third party", "my daughter says I'm having a stroke", "having a stroke", "en", models.CategoryMedical, nil},
		{"third party in earlier clause", "My son is at work. I can't breathe", "can't breathe", "en", models.CategoryMedical, nil},
		{"explain in another clause", "I can't explain it, my chest hurts so much", "chest hurts", "en", models.CategoryMedical, nil},
		{"condition after the match", "I can't breathe, call an ambulance if I pass out", "can't breathe", "en", models.CategoryMedical, nil},
		{"request before trailing condition", "please call an ambulance if I pass out", "call an ambulance", "en", models.CategoryRequest, nil},
		{"past event in earlier clause", "I had a stroke last year and now I'm having a heart attack", "heart attack", "en", models.CategoryMedical, nil},
		{"not used to", "I'm not used to this, I think I'm having a heart attack", "heart attack", "en", models.CategoryMedical, nil},

		// 假设
		{"what if", "what if I had a heart attack while alone", "heart attack", "en", models.CategoryMedical, []Suppressor{SuppressorHypothetical}},
		{"if I", "if I fell down the stairs who would find me", "fell", "en", models.CategoryPhysical, []Suppressor{SuppressorHypothetical}},
		{"imagine", "imagine having a stroke on a plane", "stroke", "en", models.CategoryMedical, []Suppressor{SuppressorHypothetical}},

		// 过去事件
		{"last year", "I had a heart attack last year", "heart attack", "en", models.CategoryMedical, []Suppressor{SuppressorPastEvent}},
		{"years ago", "I fell down three years ago", "fell", "en", models.CategoryPhysical, []Suppressor{SuppressorPastEvent}},
		{"used to", "I used to get chest pain all the time", "chest pain", "en", models.CategoryMedical, []Suppressor{SuppressorPastEvent}},

		// 第三方
		{"my friend", "my friend can't breathe", "can't breathe", "en", models.CategoryMedical, []Suppressor{SuppressorThirdParty}},
		{"she", "she is having a stroke", "stroke", "en", models.CategoryMedical, []Suppressor{SuppressorThirdParty}},
		{"my dad past", "my dad had a heart attack last year", "heart attack", "en", models.CategoryMedical, []Suppressor{SuppressorPastEvent, SuppressorThirdParty}},

		// 科普提问
		{"symptoms of", "what are the symptoms of a heart attack?", "heart attack", "en", models.CategoryMedical, []Suppressor{SuppressorEducational}},
		{"what is a", "what is a stroke?", "stroke", "en", models.CategoryMedical, []Suppressor{SuppressorEducational}},
		{"how do you know", "how do you know if you're having a heart attack", "heart attack", "en", models.CategoryMedical, []Suppressor{SuppressorEducational}},

		// 其他语言
		{"es first person", "creo que tengo un ataque al corazón", "ataque al corazón", "es", models.CategoryMedical, nil},
		{"es third party", "mi padre tuvo un infarto", "infarto", "es", models.CategoryMedical, []Suppressor{SuppressorThirdParty}},
		{"es past", "tuve un infarto el año pasado", "infarto", "es", models.CategoryMedical, []Suppressor{SuppressorPastEvent}},
		{"fr educational", "quels sont les symptômes d'une crise cardiaque", "crise cardiaque", "fr", models.CategoryMedical, []Suppressor{SuppressorEducational}},
		{"de third party", "mein Vater hat einen Herzinfarkt", "Herzinfarkt", "de", models.CategoryMedical, []Suppressor{SuppressorThirdParty}},
		{"explain governs clause", "can you explain what a heart attack feels like", "heart attack", "en", models.CategoryMedical, []Suppressor{SuppressorEducational}},

		{"it first person", "non riesco a respirare", "non riesco a respirare", "it", models.CategoryMedical, nil},
		{"it third party past", "mio padre ha avuto un infarto l'anno scorso", "infarto", "it", models.CategoryMedical, []Suppressor{SuppressorPastEvent, SuppressorThirdParty}},
		{"it hypothetical", "e se avessi un infarto da solo", "infarto", "it", models.CategoryMedical, []Suppressor{SuppressorHypothetical}},
		{"pt first person", "não consigo respirar", "não consigo respirar", "pt", models.CategoryMedical, nil},
		{"pt third party", "minha mãe teve um infarto", "infarto", "pt", models.CategoryMedical, []Suppressor{SuppressorThirdParty}},
		{"pt past", "tive um infarto há dois anos", "infarto", "pt", models.CategoryMedical, []Suppressor{SuppressorPastEvent}},
		{"zh first person", "我摔倒了", "摔倒了", "zh", models.CategoryPhysical, nil},
		{"zh first person after father", "我爸爸说我心脏病发作了", "心脏病发作", "zh", models.CategoryMedical, nil},
		{"zh third party past", "我爸爸去年心脏病发作了", "心脏病发作", "zh", models.CategoryMedical, []Suppressor{SuppressorPastEvent, SuppressorThirdParty}},
		{"zh hypothetical", "如果我心脏病发作了怎么办", "心脏病发作", "zh", models.CategoryMedical, []Suppressor{SuppressorHypothetical}},
		{"zh past in earlier clause", "我去年摔倒过，现在胸口痛", "胸口痛", "zh", models.CategoryMedical, nil},
		{"ja first person", "息ができない", "息ができない", "ja", models.CategoryMedical, nil},
		{"ja third party", "父が心臓発作を起こした", "心臓発作", "ja", models.CategoryMedical, []Suppressor{SuppressorThirdParty}},
		{"ja trailing condition", "心臓発作が起きたらどうしよう", "心臓発作", "ja", models.CategoryMedical, []Suppressor{SuppressorHypothetical}},
		{"ko first person", "숨이 막혀", "숨이 막혀", "ko", models.CategoryMedical, nil},
		{"ko third party past", "아빠가 작년에 심장마비가 왔어", "심장마비", "ko", models.CategoryMedical, []Suppressor{SuppressorPastEvent, SuppressorThirdParty}},
		{"ru first person", "я не могу дышать", "не могу дышать", "ru", models.CategoryMedical, nil},
		{"ru third party", "у моего отца инфаркт", "инфаркт", "ru", models.CategoryMedical, []Suppressor{SuppressorThirdParty}},
		{"ru past", "у меня был инфаркт пять лет назад", "инфаркт", "ru", models.CategoryMedical, []Suppressor{SuppressorPastEvent}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := candidate(t, tt.utterance, tt.span, tt.language, models.SeverityHigh, tt.category)
			v := f.Evaluate(c, tt.utterance)
			assert.Equal(t, tt.want, v.Suppressors)
			assert.Equal(t, len(tt.want) > 0, v.Suppressed)
		})
	}
}

func TestFilter_FilterKeepsOrderAndDropsSuppressed(t *testing.T) {
	f := New()
	utterance := "my friend fell. help me"
	fell := candidate(t, utterance, "fell", "en", models.SeverityHigh, models.CategoryPhysical)
	help := candidate(t, utterance, "help me", "en", models.SeverityHigh, models.CategoryRequest)
	help.PhraseID = "help"

	kept := f.Filter([]models.MatchCandidate{fell, help}, utterance)
	require.Len(t, kept, 1)
	assert.Equal(t, "help", kept[0].PhraseID)

	kept, dropped := f.Partition([]models.MatchCandidate{fell, help}, utterance)
	require.Len(t, kept, 1)
	require.Len(t, dropped, 1)
	assert.Equal(t, "suppressed by context filter: third_party", dropped[0].Verdict.Reason())

	assert.Empty(t, f.Filter(nil, utterance))
}

func TestFilter_Deterministic(t *testing.T) {
	f := New()
	utterance := "my dad had a heart attack last year"
	c := candidate(t, utterance, "heart attack", "en", models.SeverityCritical, models.CategoryMedical)

	first := f.Evaluate(c, utterance)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, f.Evaluate(c, utterance))
	}
	assert.Contains(t, first.Reason(), "third_party")
	assert.Contains(t, first.Reason(), "past_event")
}

func TestSegmentAt(t *testing.T) {
	en := []*markerTable{markerTables["en"]}
	zh := []*markerTable{markerTables["zh"], markerTables["en"]}

	u := "My son is away. I can't breathe, help"
	assert.Equal(t, " I can't breathe, help", segmentAt(en, u, 20, false).text(u))
	assert.Equal(t, " I can't breathe,", segmentAt(en, u, 20, true).text(u))

	u = "I fell last year and now I'm dizzy"
	assert.Equal(t, "now I'm dizzy", segmentAt(en, u, strings.Index(u, "dizzy"), true).text(u))
	assert.Equal(t, "I fell last year", segmentAt(en, u, 2, true).text(u))

	u = "my husband fell and can't get up"
	assert.Equal(t, u, segmentAt(en, u, strings.Index(u, "can't"), true).text(u))

	u = "他很好。我摔倒了"
	assert.Equal(t, "我摔倒了", segmentAt(zh, u, len("他很好。"), false).text(u))
	assert.Equal(t, "他很好。", segmentAt(zh, u, 0, false).text(u))
}
