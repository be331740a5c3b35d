package invoice

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	smallNumbers = []string{
		"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
		"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen",
		"seventeen", "eighteen", "nineteen",
	}
	tensNames = []string{"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety"}
	scales    = []string{"", "thousand", "million", "billion", "trillion", "quadrillion", "quintillion"}
)

// AmountInWords spells the whole-rupee part of amount, e.g.
// "Three Thousand, Two Hundred And Sixteen Rupees Only". Paise are dropped.
func AmountInWords(amount decimal.Decimal) string {
	n := amount.Abs().IntPart()
	words := spell(n)
	if amount.IsNegative() && n > 0 {
		words = "minus " + words
	}
	return cases.Title(language.English).String(words) + " Rupees Only"
}

func spell(n int64) string {
	if n == 0 {
		return smallNumbers[0]
	}
	var groups []int64
	for n > 0 {
		groups = append(groups, n%1000)
		n /= 1000
	}
	var parts []string
	for i := len(groups) - 1; i >= 0; i-- {
		g := groups[i]
		if g == 0 {
			continue
		}
		text := spellHundreds(g)
		if i < len(scales) && scales[i] != "" {
			text += " " + scales[i]
		}
		parts = append(parts, text)
	}
	if len(parts) == 1 {
		return parts[0]
	}
	last := len(parts) - 1
	head := strings.Join(parts[:last], ", ")
	if groups[0] != 0 && groups[0] < 100 {
		return head + " and " + parts[last]
	}
	return head + ", " + parts[last]
}

func spellHundreds(n int64) string {
	hundreds, rest := n/100, n%100
	switch {
	case hundreds == 0:
		return spellTens(rest)
	case rest == 0:
		return smallNumbers[hundreds] + " hundred"
	default:
		return smallNumbers[hundreds] + " hundred and " + spellTens(rest)
	}
}

func spellTens(n int64) string {
	if n < 20 {
		return smallNumbers[n]
	}
	tens, ones := n/10, n%10
	if ones == 0 {
		return tensNames[tens]
	}
	return tensNames[tens] + "-" + smallNumbers[ones]
}
