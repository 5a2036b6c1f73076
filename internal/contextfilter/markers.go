package contextfilter

import "regexp"

// markerTable 某语言的语境标记
type markerTable struct {
	hypothetical     []*regexp.Regexp // 须出现在命中之前（同一句内）
	hypotheticalTail []*regexp.Regexp // 后置条件（日/韩语），命中所在分句内任意位置
	pastEvent        []*regexp.Regexp
	educational      []*regexp.Regexp
	thirdParty       []*regexp.Regexp // 第三方主语
	firstPerson      *regexp.Regexp   // 第一人称主语（出现在第三方主语之后时视为本人自述）
	conjunction      *regexp.Regexp   // 开启新分句的连词，第一个子组的起点即新分句起点
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile("(?i)"+p))
	}
	return out
}

// 非 ASCII 字母旁不使用 \b（RE2 的 \b 只识别 ASCII 单词字符）
var markerTables = map[string]*markerTable{
	"en": {
		hypothetical: compileAll(
			`\bwhat if\b`,
			`\bif (i|i['’]d|i were|i was|i had|i ever|someone)\b`,
			`\b(suppose|supposing|imagine|hypothetically|pretend)\b`,
			`\bwhat would (happen|you do) if\b`,
		),
		pastEvent: compileAll(
			`\blast (year|month|week|decade|summer|winter|spring|christmas)\b`,
			`\b(\d+|a|one|two|three|four|five|ten|many|several|few) (years|months|weeks|decades) ago\b`,
			`\b(years|months|weeks|decades|a long time) ago\b`,
			`\b(i|we|he|she|they|you|it) used to\b`,
			`\bused to (be|get|have|feel|fall|suffer)\b`,
			`\bwhen i was (young|younger|a (kid|child|boy|girl)|little|in my)\b`,
			`\bin the past\b`,
			`\bback in (\d{4}|the day|the (\d{2}|seventies|eighties|nineties))`,
			`\bin (19|20)\d{2}\b`,
		),
		educational: compileAll(
			`\bwhat (are|were) (the )?(symptoms|signs|warning signs|causes)\b`,
			`\bwhat(['’]s| is| are) an? \w+( \w+)?\s*\??$`,
			`\bhow (do|can|would|does) (you|i|one|someone) (know|tell|recognize|recognise|spot)\b`,
			`\b(signs|symptoms) of an?\b.*\?`,
			`\bwhat (causes|happens (during|in))\b`,
			`^\W*((can|could|would) you |please )*(tell me about|explain|define)\b`,
			`\bdefinition of\b`,
			`\bis it (normal|true|common) (that|to|for)\b`,
		),
		thirdParty: compileAll(
			`\b(my|his|her|their|our|your|a|the) (dad|father|mom|mum|mother|husband|wife|son|daughter|brother|sister|friend|neighbou?r|grand(ma|mother|pa|father|son|daughter)|uncle|aunt|cousin|partner|roommate|boyfriend|girlfriend|colleague|patient)s?\b`,
			`\b(he|she|they)(['’](s|d|ve|re|ll))?\b`,
			`\b(someone|somebody) else\b`,
		),
		firstPerson: regexp.MustCompile(`(?i)\b(i|i['’]m|i['’]ve|i['’]d|i['’]ll|me|myself)\b`),
		conjunction: regexp.MustCompile(`(?i)\s(?:and|but|so)\s+((?:right )?now\b|then\b|(?:i|i['’]m|i['’]ve|i['’]d|i['’]ll|we|my)\b)`),
	},
	"es": {
		hypothetical: compileAll(`\bsi (yo )?(tuviera|estuviera|fuera|me)\b`, `\bqu[ée] (pasa|pasar[íi]a) si\b`, `\bimagina\b`),
		pastEvent:    compileAll(`\bel a[ñn]o pasado`, `\bhace (\d+ |muchos |varios )?a[ñn]os`, `\bsol[íi]a\b`, `\bcuando era (joven|ni[ñn])`),
		educational:  compileAll(`\bcu[áa]les son los s[íi]ntomas`, `\bqu[ée] es una?\b`),
		thirdParty:   compileAll(`\bmi (padre|madre|pap[áa]|mam[áa]|amig[oa]|herman[oa]|espos[oa]|marido|hij[oa]|abuel[oa]|vecin[oa])`, `\b([ée]l|ella|ellos)\s`),
		firstPerson:  regexp.MustCompile(`(?i)\b(yo|me)\b`),
		conjunction:  regexp.MustCompile(`(?i)\s(?:y|pero)\s+((?:ahora|yo)\b)`),
	},
	"fr": {
		hypothetical: compileAll(`\bsi j['’](avais|étais)`, `\bet si\b`, `\bimagine[zs]?\b`),
		pastEvent:    compileAll(`\bl['’]ann[ée]e derni[èe]re`, `\bil y a (\d+ |des |plusieurs )?ans\b`, `\bautrefois`, `\bquand j['’][ée]tais (jeune|petit)`),
		educational:  compileAll(`\bquels sont les sympt[ôo]mes`, `\bqu['’]est-ce qu['’]une?\b`),
		thirdParty:   compileAll(`\bmon (p[èe]re|mari|ami|fr[èe]re|fils|voisin|grand-p[èe]re)`, `\bma (m[èe]re|femme|amie|s[œo]eur|fille|voisine|grand-m[èe]re)`, `\b(il|elle|ils|elles)\s`),
		firstPerson:  regexp.MustCompile(`(?i)\b(je|j['’]|moi|me)`),
		conjunction:  regexp.MustCompile(`(?i)\s(?:et|mais)\s+((?:maintenant|je|j['’]))`),
	},
	"de": {
		hypothetical: compileAll(`\bwenn ich\b.*\b(h[äa]tte|w[äa]re)\b`, `\bwas w[äa]re,? wenn\b`, `\bstell dir vor\b`),
		pastEvent:    compileAll(`\bletztes jahr\b`, `\bvor (\d+ |vielen |einigen )?jahren\b`, `\bfr[üu]her\b`, `\bals ich (jung|klein|kind)`),
		educational:  compileAll(`\bwas sind die symptome\b`, `\bwas ist ein(e)?\b`),
		thirdParty:   compileAll(`\bmein (vater|mann|freund|bruder|sohn|nachbar|opa|gro(ß|ss)vater)\b`, `\bmeine (mutter|frau|freundin|schwester|tochter|nachbarin|oma|gro(ß|ss)mutter)\b`, `\b(er|sie)\s(hat|ist|hatte|war|kann)\b`),
		firstPerson:  regexp.MustCompile(`(?i)\b(ich|mir|mich)\b`),
		conjunction:  regexp.MustCompile(`(?i)\s(?:und|aber)\s+((?:jetzt|ich)\b)`),
	},
	"it": {
		hypothetical: compileAll(`\bse (io )?(avessi|fossi|mi venisse)\b`, `\be se\b`, `\bimmagina\b`, `\bcosa succede(rebbe)? se\b`),
		pastEvent:    compileAll(`\bl['’]anno scorso\b`, `\b(\d+|molti|alcuni|tanti) anni fa\b`, `\banni fa\b`, `\bil mese scorso\b`, `\bla settimana scorsa\b`, `\bquando ero (giovane|piccol[oa]|bambin[oa])`),
		educational:  compileAll(`\bquali sono i sintomi`, `\bche cos['’]`, `\bcos['’][èe] (un|una|l['’])`),
		thirdParty:   compileAll(`\b(mio|mia) (padre|madre|pap[àa]|mamma|marito|moglie|figli[oa]|fratello|sorella|amic[oa]|vicin[oa]|nonn[oa])`, `\b(lui|lei|loro)\s`),
		firstPerson:  regexp.MustCompile(`(?i)\b(io|mi|me)\b`),
		conjunction:  regexp.MustCompile(`(?i)\s(?:e|ma)\s+((?:adesso|ora|io)\b)`),
	},
	"pt": {
		hypothetical: compileAll(`\bse eu (tivesse|estivesse|fosse|tiver)\b`, `\be se\b`, `\bimagin[ae]\b`, `\bo que acontece(ria)? se\b`),
		pastEvent:    compileAll(`\bano passado\b`, `\bh[áa] (\d+ |\w+ )?anos\b`, `\bm[êe]s passado\b`, `\bsemana passada\b`, `\bantigamente\b`, `\bquando eu era (jovem|crian[çc]a|pequen[oa])`),
		educational:  compileAll(`\bquais s[ãa]o os sintomas`, `\bo que [ée] (um|uma)\b`),
		thirdParty:   compileAll(`\b(meu|minha) (pai|m[ãa]e|marido|esposa|mulher|filh[oa]|irm[ãa]|irm[ãa]o|amig[oa]|vizinh[oa]|av[ôóo]|vov[ôó])`, `\b(ele|ela|eles|elas)\s`),
		firstPerson:  regexp.MustCompile(`(?i)\b(eu|me|mim)\b`),
		conjunction:  regexp.MustCompile(`(?i)\s(?:e|mas)\s+((?:agora|eu)\b)`),
	},
	"zh": {
		hypothetical: compileAll(`如果`, `假如`, `要是`, `万一`, `假设`),
		pastEvent:    compileAll(`去年`, `前年`, `上个?月`, `上周`, `(\d+|几|好几|很多)年前`, `以前`, `小时候`, `曾经`),
		educational:  compileAll(`什么是`, `症状(是什么|有哪些)`, `是什么[?？]?$`, `怎么(知道|判断)`),
		thirdParty:   compileAll(`(爸爸|妈妈|父亲|母亲|老公|丈夫|老婆|妻子|儿子|女儿|哥哥|姐姐|弟弟|妹妹|朋友|邻居|爷爷|奶奶|外公|外婆)`, `(他|她)(们)?`),
		firstPerson:  regexp.MustCompile(`我`),
		conjunction:  regexp.MustCompile(`(但是|可是|而且|现在)`),
	},
	"ja": {
		hypothetical:     compileAll(`もし`, `仮に`),
		hypotheticalTail: compileAll(`(たら|れば|としたら)(どう|どうしよう|どうなる)`),
		pastEvent:        compileAll(`去年`, `昨年`, `先月`, `先週`, `(\d+|何)年(も)?前`, `昔`, `以前`, `子供の頃`),
		educational:      compileAll(`症状は(何|なん)`, `とは(何|なん)`, `どうやって(わかる|分かる)`),
		thirdParty:       compileAll(`(お父さん|お母さん|父|母|夫|妻|主人|息子|娘|兄|姉|弟|妹|友達|友人|隣の人|祖父|祖母|おじいちゃん|おばあちゃん|彼女|彼)(は|が)`),
		firstPerson:      regexp.MustCompile(`(私|僕|俺|わたし)`),
		conjunction:      regexp.MustCompile(`(でも|けど|今)`),
	},
	"ko": {
		hypothetical:     compileAll(`만약`, `만일`),
		hypotheticalTail: compileAll(`(면|다면|라면) (어떡|어떻게)`),
		pastEvent:        compileAll(`작년`, `예전에`, `옛날에`, `지난 ?(달|주|해)`, `(\d+|몇) ?년 전`, `어렸을 때`),
		educational:      compileAll(`증상(이|은) (뭐|무엇)`, `(이|가|란) (뭐|무엇)(예요|야|인가요)[?？]?$`, `어떻게 알`),
		thirdParty:       compileAll(`(아버지|아빠|어머니|엄마|남편|아내|아들|딸|형|누나|오빠|언니|동생|친구|이웃|할아버지|할머니|그녀|그)(가|이|는|은|께서)`),
		firstPerson:      regexp.MustCompile(`(나는|내가|저는|제가)`),
		conjunction:      regexp.MustCompile(`(그런데|근데|지금)`),
	},
	"ru": {
		hypothetical: compileAll(`(^|\s)(если|представь|представьте|допустим|предположим)(\s|,)`, `что будет,? если`),
		pastEvent:    compileAll(`в прошлом (году|месяце)`, `на прошлой неделе`, `(лет|год|года|месяц|месяца|месяцев) назад`, `(^|\s)раньше(\s|$|,)`, `когда я был(а)? (молод|маленьк|ребёнком|ребенком)`, `в детстве`),
		educational:  compileAll(`какие (симптомы|признаки)`, `что такое`, `как (понять|узнать)`),
		thirdParty:   compileAll(`(^|\s)(мой|моя) (отец|папа|мать|мама|муж|жена|сын|дочь|брат|сестра|друг|подруга|сосед|соседка|дедушка|бабушка)`, `(^|\s)у (моего|моей) (отца|папы|матери|мамы|мужа|жены|сына|дочери|брата|сестры|друга|подруги|соседа|соседки|дедушки|бабушки)`, `(^|\s)(он|она|они)\s`),
		firstPerson:  regexp.MustCompile(`(?i)(^|\s)(я|меня|мне)(\s|$|,)`),
		conjunction:  regexp.MustCompile(`(?i)\s(?:и|но|а)\s+((?:сейчас|теперь|я)(\s|$))`),
	},
}
