// Package selftest holds tables of (span, text, expected) recovery cases and runs them
// against a recovery function.
package selftest

import (
	"os"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"
)

// Case is one recovery scenario: Span, taken from Text and containing placeholders, should be
// recovered as Expected.
type Case struct {
	Span     string `yaml:"span"`
	Text     string `yaml:"text"`
	Expected string `yaml:"expected"`
}

// Result of running one Case.
type Result struct {
	Case
	Got    string
	Passed bool
}

// Report of a Run.
type Report struct {
	Results        []Result
	Passed, Failed int
}

// OK returns whether all cases passed.
func (r Report) OK() bool { return r.Failed == 0 }

// DefaultCases returns the built-in cases, using the "<unk>" placeholder.
func DefaultCases() []Case {
	return []Case{
		{
			Span:     "<unk> colo e Bengo",
			Text:     "At 159 meters above sea level , Angola International Airport is located at Ícolo e Bengo , part of Luanda Province , in Angola .",
			Expected: "Ícolo e Bengo",
		},
		{
			Span:     "<unk> colo e Bengo",
			Text:     "Ícolo e Bengo , part of Luanda Province , in Angola .",
			Expected: "Ícolo e Bengo",
		},
		{
			Span:     "Arr<unk> s negre",
			Text:     "The main ingredients of Arròs negre , which is from Spain , are white rice , cuttlefish or squid , cephalopod ink , cubanelle and cubanelle peppers . Arròs negre is from the Catalonia region .",
			Expected: "Arròs negre",
		},
		{
			Span:     "colo <unk>",
			Text:     "At 159 meters above sea level , Angola International Airport is located at e Bengo , part of Luanda Province , in Angola . coloÍ",
			Expected: "coloÍ",
		},
		{Span: "Tarō As<unk>", Text: "The leader of Japan is Tarō Asō .", Expected: "Tarō Asō"},
		{Span: "Tar<unk> As<unk>", Text: "The leader of Japan is Tarō Asō .", Expected: "Tarō Asō"},
		{Span: "<unk>Tar As<unk>", Text: "The leader of Japan is ōTar Asō .", Expected: "ōTar Asō"},
		{
			Span:     "Atatürk Monument ( <unk> zmir )",
			Text:     "The Atatürk Monument ( İzmir ) can be found in Turkey .",
			Expected: "Atatürk Monument ( İzmir )",
		},
		{
			Span:     "The Atatürk Monument [ <unk> zmir ]",
			Text:     "The Atatürk Monument [ İzmir ] can be found in Turkey .",
			Expected: "The Atatürk Monument [ İzmir ]",
		},
	}
}

// caseFile is the layout of YAML case files.
type caseFile struct {
	Cases []Case `yaml:"cases"`
}

// ParseCases parses a YAML document of the form:
//
//	cases:
//	  - span: "Tarō As<unk>"
//	    text: "The leader of Japan is Tarō Asō ."
//	    expected: "Tarō Asō"
func ParseCases(content []byte) ([]Case, error) {
	var file caseFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, errors.Wrap(err, "failed to parse cases")
	}
	for ii, c := range file.Cases {
		if c.Span == "" {
			return nil, errors.Errorf("case #%d has no span", ii)
		}
	}
	return file.Cases, nil
}

// LoadCases reads the cases stored in the YAML file filePath. See ParseCases for the format.
func LoadCases(filePath string) ([]Case, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read cases from %q", filePath)
	}
	cases, err := ParseCases(content)
	if err != nil {
		return nil, errors.WithMessagef(err, "in %q", filePath)
	}
	return cases, nil
}

// Run fix on every case and report which recovered the expected span.
func Run(cases []Case, fix func(span, text string) string) Report {
	report := Report{Results: make([]Result, 0, len(cases))}
	for _, c := range cases {
		got := fix(c.Span, c.Text)
		passed := got == c.Expected
		if passed {
			report.Passed++
		} else {
			report.Failed++
		}
		report.Results = append(report.Results, Result{Case: c, Got: got, Passed: passed})
	}
	return report
}
