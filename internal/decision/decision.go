// Package decision implements the Decision Envelope: parses the
// final structured trading decision — action, confidence, target price,
// reasoning — out of the free-text final trade decision a run produces,
// using shopspring/decimal for the target price instead of a float so
// downstream report rendering never loses precision.
package decision

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Action is the final recommendation's direction.
type Action string

const (
	Buy  Action = "BUY"
	Hold Action = "HOLD"
	Sell Action = "SELL"
)

// Envelope is the run's public output.
type Envelope struct {
	Action       Action
	Confidence   float64
	TargetPrice  *decimal.Decimal
	Reasoning    string
}

var (
	tagPattern = regexp.MustCompile(`(?is)FINAL\s+TRANSACTION\s+PROPOSAL\s*:\s*\*{0,2}\s*(BUY|HOLD|SELL)\s*\*{0,2}`)
	actionWord = regexp.MustCompile(`(?i)\b(BUY|HOLD|SELL)\b`)

	confidencePattern = regexp.MustCompile(`(?i)confidence\s*[:=]?\s*(\d+(?:\.\d+)?)\s*(%)?`)

	// Matches the first number following a "target" mention, optionally
	// preceded by a currency symbol (₹, $, HK$, ¥), so the parse stays
	// agnostic to which currency's symbol appears.
	targetPattern = regexp.MustCompile(`(?i)target[^0-9\-]{0,24}([¥$₹]|HK\$)?\s*(-?\d[\d,]*\.?\d*)`)
)

// Parse extracts the Decision Envelope from a run's final_trade_decision
// text. It never fails: absent or unparseable fields fall back to
// documented defaults (HOLD action, 0.5 confidence, nil target price).
func Parse(finalTradeDecision string) Envelope {
	return Envelope{
		Action:      parseAction(finalTradeDecision),
		Confidence:  parseConfidence(finalTradeDecision),
		TargetPrice: parseTargetPrice(finalTradeDecision),
		Reasoning:   finalParagraph(finalTradeDecision),
	}
}

// parseAction applies a fixed priority order: the explicit
// "FINAL TRANSACTION PROPOSAL: **X**" tag, then the first of
// {BUY, SELL, HOLD} in the final paragraph, then HOLD.
func parseAction(text string) Action {
	if m := tagPattern.FindStringSubmatch(text); m != nil {
		return Action(strings.ToUpper(m[1]))
	}
	para := finalParagraph(text)
	if m := actionWord.FindString(para); m != "" {
		return Action(strings.ToUpper(m))
	}
	return Hold
}

func parseConfidence(text string) float64 {
	m := confidencePattern.FindStringSubmatch(text)
	if m == nil {
		return 0.5
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0.5
	}
	if m[2] == "%" || v > 1.0 {
		v /= 100.0
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v
}

func parseTargetPrice(text string) *decimal.Decimal {
	m := targetPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	raw := strings.ReplaceAll(m[2], ",", "")
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil
	}
	return &d
}

// finalParagraph returns the last non-empty \n\n-delimited paragraph.
func finalParagraph(text string) string {
	paras := strings.Split(strings.TrimSpace(text), "\n\n")
	for i := len(paras) - 1; i >= 0; i-- {
		p := strings.TrimSpace(paras[i])
		if p != "" {
			return p
		}
	}
	return strings.TrimSpace(text)
}
