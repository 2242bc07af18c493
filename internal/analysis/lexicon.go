package analysis

import (
	"strings"
	"unicode"
)

const labelThreshold = 0.15

var positiveWords = wordSet(`
	amazing appreciate appreciated awesome beautiful best better brilliant
	cheers clear convenient delighted easy excellent fantastic fast fine
	glad good grateful great happy helpful impressed love lovely nice perfect
	pleasant pleased quick quickly recommend resolved satisfied smooth solved
	sorted super thank thanks thankful wonderful works worked`)

var negativeWords = wordSet(`
	angry annoyed annoying awful bad broken cancel cancelled charged
	complain complaint confused confusing crash crashed delay delayed
	disappointed disappointing error expensive fail failed failing failure
	frustrated frustrating horrible issue issues late lost missing never
	overcharged poor problem problems refund rude slow stuck terrible
	unacceptable unhappy upset useless waiting worst wrong`)

var negators = wordSet(`not no never cannot dont doesnt didnt isnt wasnt wont cant hardly`)

var stopWords = wordSet(`
	about above after again against also although always among another anyone
	anything around because been before being below between both cannot could
	did does doing done down during each either else even ever every from
	further give going gonna have having hello here hers herself himself how
	however into itself just know like make maybe more most much must myself
	need only other ours ourselves over please really right said same should
	since some something still such sure take than that thats their theirs
	them themselves then there these they thing think this those though
	through today under until upon very want wanted wanna well were what
	whatever when where whether which while will with within without would
	yeah your yours yourself yourselves okay alright thank thanks`)

// topicKeywords maps a theme to the words that signal it.
var topicKeywords = map[string][]string{
	"billing":         {"bill", "billing", "invoice", "charge", "charged", "overcharged", "payment", "pay", "paid", "refund", "receipt"},
	"scheduling":      {"appointment", "schedule", "scheduled", "reschedule", "booking", "book", "booked", "availability", "calendar"},
	"delivery":        {"delivery", "deliver", "delivered", "shipping", "shipped", "package", "tracking", "courier", "order"},
	"account access":  {"password", "login", "log", "account", "locked", "reset", "username", "verify", "verification"},
	"technical issue": {"error", "bug", "crash", "crashed", "broken", "outage", "down", "glitch", "app", "website"},
	"pricing":         {"price", "pricing", "cost", "discount", "plan", "upgrade", "subscription", "quote", "expensive"},
	"cancellation":    {"cancel", "cancelled", "cancellation", "terminate", "close"},
}

var keywordTopics = invertTopics(topicKeywords)

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(text) {
		set[w] = struct{}{}
	}
	return set
}

func invertTopics(topics map[string][]string) map[string]string {
	out := make(map[string]string)
	for topic, words := range topics {
		for _, w := range words {
			out[w] = topic
		}
	}
	return out
}

// tokenize lowercases text and splits it into letter runs. Apostrophes are
// dropped so "don't" becomes "dont".
func tokenize(text string) []string {
	text = strings.ReplaceAll(strings.ToLower(text), "'", "")
	text = strings.ReplaceAll(text, "’", "")
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

// scoreText returns a sentiment score in [-1, 1] and whether any sentiment
// word was found. A negator flips the polarity of the next sentiment word
// within three tokens.
func scoreText(text string) (float64, bool) {
	var pos, neg int
	negateFor := 0
	for _, token := range tokenize(text) {
		if _, ok := negators[token]; ok {
			negateFor = 3
			continue
		}
		polarity := 0
		if _, ok := positiveWords[token]; ok {
			polarity = 1
		} else if _, ok := negativeWords[token]; ok {
			polarity = -1
		}
		if polarity != 0 && negateFor > 0 {
			polarity = -polarity
			negateFor = 0
		}
		switch polarity {
		case 1:
			pos++
		case -1:
			neg++
		}
		if negateFor > 0 {
			negateFor--
		}
	}
	if pos+neg == 0 {
		return 0, false
	}
	return float64(pos-neg) / float64(pos+neg), true
}

func labelFor(score float64) string {
	switch {
	case score > labelThreshold:
		return LabelPositive
	case score < -labelThreshold:
		return LabelNegative
	default:
		return LabelNeutral
	}
}

func (d *Distribution) add(score float64) {
	switch labelFor(score) {
	case LabelPositive:
		d.Positive++
	case LabelNegative:
		d.Negative++
	default:
		d.Neutral++
	}
}
