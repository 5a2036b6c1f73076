package contextfilter

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"wisefido-sos/internal/models"
)

// Suppressor 抑制器名称
type Suppressor string

const (
	SuppressorHypothetical Suppressor = "hypothetical"
	SuppressorPastEvent    Suppressor = "past_event"
	SuppressorThirdParty   Suppressor = "third_party"
	SuppressorEducational  Suppressor = "educational"
)

// Verdict 单个候选的过滤结论
type Verdict struct {
	Suppressed  bool
	Suppressors []Suppressor // 按 hypothetical, past_event, third_party, educational 顺序
}

// Reason 人类可读的抑制原因
func (v Verdict) Reason() string {
	if !v.Suppressed {
		return ""
	}
	names := make([]string, len(v.Suppressors))
	for i, s := range v.Suppressors {
		names[i] = string(s)
	}
	return fmt.Sprintf("suppressed by context filter: %s", strings.Join(names, ", "))
}

// Rejection 被抑制的候选及其结论
type Rejection struct {
	Candidate models.MatchCandidate
	Verdict   Verdict
}

// Filter 语境过滤器：无状态、确定性，可并发调用
type Filter struct {
	tables map[string]*markerTable
}

// New 创建语境过滤器
func New() *Filter {
	return &Filter{tables: markerTables}
}

// Filter 返回通过全部四个抑制器的候选（保持原顺序）
func (f *Filter) Filter(candidates []models.MatchCandidate, utterance string) []models.MatchCandidate {
	kept, _ := f.Partition(candidates, utterance)
	return kept
}

// Partition 拆分为保留与被抑制两部分
func (f *Filter) Partition(candidates []models.MatchCandidate, utterance string) ([]models.MatchCandidate, []Rejection) {
	var kept []models.MatchCandidate
	var dropped []Rejection
	for _, c := range candidates {
		v := f.Evaluate(c, utterance)
		if v.Suppressed {
			dropped = append(dropped, Rejection{Candidate: c, Verdict: v})
			continue
		}
		kept = append(kept, c)
	}
	return kept, dropped
}

// Evaluate 对单个候选运行四个抑制器。
// 假设标记须出现在命中之前（同一句内）；过去事件与科普提问限定在命中所在分句；
// 第三方主语看同一句内命中之前的文本。
func (f *Filter) Evaluate(candidate models.MatchCandidate, utterance string) Verdict {
	tables := f.tablesFor(candidate.Language)
	pos := candidate.MatchedSpan.Start
	if pos < 0 || pos > len(utterance) {
		pos = 0
	}
	sentence := segmentAt(tables, utterance, pos, false)
	clause := segmentAt(tables, utterance, pos, true).text(utterance)

	var fired []Suppressor
	if hypothetical(tables, utterance, sentence, clause, pos) {
		fired = append(fired, SuppressorHypothetical)
	}
	if anyMatch(tables, clause, func(t *markerTable) []*regexp.Regexp { return t.pastEvent }) {
		fired = append(fired, SuppressorPastEvent)
	}
	if f.thirdParty(tables, candidate, utterance[sentence.start:pos]) {
		fired = append(fired, SuppressorThirdParty)
	}
	if anyMatch(tables, clause, func(t *markerTable) []*regexp.Regexp { return t.educational }) {
		fired = append(fired, SuppressorEducational)
	}

	return Verdict{Suppressed: len(fired) > 0, Suppressors: fired}
}

// tablesFor 候选语言的标记表，英文表始终参与
func (f *Filter) tablesFor(language string) []*markerTable {
	en := f.tables[models.DefaultLanguage]
	if t, ok := f.tables[language]; ok && language != models.DefaultLanguage {
		return []*markerTable{t, en}
	}
	return []*markerTable{en}
}

func anyMatch(tables []*markerTable, text string, pick func(*markerTable) []*regexp.Regexp) bool {
	for _, t := range tables {
		for _, re := range pick(t) {
			if re.MatchString(text) {
				return true
			}
		}
	}
	return false
}

// hypothetical "call an ambulance if I pass out" 中的条件从句在命中之后，不抑制
func hypothetical(tables []*markerTable, utterance string, sentence segment, clause string, pos int) bool {
	text := sentence.text(utterance)
	for _, t := range tables {
		for _, re := range t.hypothetical {
			for _, loc := range re.FindAllStringIndex(text, -1) {
				if sentence.start+loc[0] < pos {
					return true
				}
			}
		}
		for _, re := range t.hypotheticalTail {
			if re.MatchString(clause) {
				return true
			}
		}
	}
	return false
}

// thirdParty prefix 为同一句内命中之前的文本；最后出现的主语为第三方（且其后没有第一人称）时成立。
// Safety 类不适用：第三方往往是威胁本身（"he is breaking in"）。
func (f *Filter) thirdParty(tables []*markerTable, candidate models.MatchCandidate, prefix string) bool {
	if candidate.Category == models.CategorySafety || prefix == "" {
		return false
	}

	for _, t := range tables {
		last := -1
		for _, re := range t.thirdParty {
			for _, loc := range re.FindAllStringIndex(prefix, -1) {
				if loc[0] > last {
					last = loc[0]
				}
			}
		}
		if last < 0 {
			continue
		}
		if t.firstPerson != nil && t.firstPerson.MatchString(prefix[last:]) {
			continue
		}
		return true
	}
	return false
}

// segment utterance 中的 [start, end) 区间
type segment struct {
	start, end int
}

func (s segment) text(utterance string) string {
	return utterance[s.start:s.end]
}

// segmentAt 返回包含 pos 的句子；clauses 为 true 时逗号与开启新主语的连词也作为边界。
// 结尾的标点保留在片段内（科普提问依赖问号）。
func segmentAt(tables []*markerTable, utterance string, pos int, clauses bool) segment {
	seg := segment{end: len(utterance)}
	for i, r := range utterance {
		if !isSentenceBreak(r) && !(clauses && isClauseBreak(r)) {
			continue
		}
		next := i + utf8.RuneLen(r)
		if next <= pos {
			seg.start = next
			continue
		}
		seg.end = next
		break
	}
	if !clauses {
		return seg
	}

	for _, t := range tables {
		if t.conjunction == nil {
			continue
		}
		for _, loc := range t.conjunction.FindAllStringSubmatchIndex(utterance, -1) {
			switch {
			case loc[2] <= pos && loc[2] > seg.start:
				seg.start = loc[2]
			case loc[0] > pos && loc[0] < seg.end:
				seg.end = loc[0]
			}
		}
	}
	return seg
}

func isSentenceBreak(r rune) bool {
	switch r {
	case '.', '!', '?', ';', '。', '！', '？', '；':
		return true
	}
	return false
}

func isClauseBreak(r rune) bool {
	switch r {
	case ',', ':', '，', '、', '：':
		return true
	}
	return false
}
