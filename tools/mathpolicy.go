package tools

import (
	"regexp"
	"strings"
)

var (
	mathOperator = regexp.MustCompile(`[+\-*/]`)
	largeNumber  = regexp.MustCompile(`\d{3,}`)
)

// MathPolicy decides whether an arithmetic request must go through the
// calculate tool.
type MathPolicy struct {
	Operators    int  `json:"operators"`
	HasDivision  bool `json:"hasDivision"`
	LargeNumber  bool `json:"largeNumber"`
	RequiresTool bool `json:"requiresTool"`
}

// ClassifyMath treats an expression as simple when it has exactly one
// operator, no division and no number of three or more digits. Anything
// else requires the tool.
func ClassifyMath(input string) MathPolicy {
	cleaned := strings.Join(strings.Fields(input), "")
	p := MathPolicy{
		Operators:   len(mathOperator.FindAllString(cleaned, -1)),
		HasDivision: strings.Contains(cleaned, "/"),
		LargeNumber: largeNumber.MatchString(cleaned),
	}
	simple := p.Operators == 1 && !p.HasDivision && !p.LargeNumber
	p.RequiresTool = !simple
	return p
}
