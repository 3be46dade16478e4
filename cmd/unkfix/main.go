// unkfix recovers the original text of spans where a tokenizer round-trip replaced characters
// by an unknown-token placeholder.
//
// Usage:
//
//	unkfix fix --span "Tarō As<unk>" --text "The leader of Japan is Tarō Asō ."
//	unkfix fix --span "Tarō As<unk>" --text "..." --tokenizer tokenizer.json --tokenizer-config tokenizer_config.json
//	unkfix selftest [--cases cases.yaml] [--tokenizer tokenizer.model]
package main

import (
	goflag "flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/unkfix/internal/selftest"
	"github.com/gomlx/unkfix/tokenizers"
	"github.com/gomlx/unkfix/tokenizers/api"
	"github.com/gomlx/unkfix/unkfix"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

func main() {
	defer klog.Flush()
	if err := newRootCmd().Execute(); err != nil {
		klog.Errorf("%+v", err)
		os.Exit(1)
	}
}

// fixerFlags configure the unkfix.Fixer shared by all commands.
type fixerFlags struct {
	unk             string
	tokenizerPath   string
	tokenizerConfig string
	matchTimeout    time.Duration
}

func (ff *fixerFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&ff.unk, "unk", "", `Unknown-token placeholder. Defaults to the "unk_token" of --tokenizer-config, or "`+unkfix.DefaultUnknown+`".`)
	flags.StringVar(&ff.tokenizerPath, "tokenizer", "", "Optional tokenizer.json, SentencePiece .model or .gguf file used to locate the span.")
	flags.StringVar(&ff.tokenizerConfig, "tokenizer-config", "", "Optional tokenizer_config.json, used for the placeholder and special tokens.")
	flags.DurationVar(&ff.matchTimeout, "match-timeout", 0, "Limit on the duration of each pattern search. 0 means no limit.")
}

// build the unkfix.Fixer from the flags.
func (ff *fixerFlags) build() (*unkfix.Fixer, error) {
	var config *api.Config
	if ff.tokenizerConfig != "" {
		var err error
		config, err = api.LoadConfig(ff.tokenizerConfig)
		if err != nil {
			return nil, err
		}
	}
	unk := ff.unk
	if unk == "" && config != nil {
		unk = config.UnkToken
	}
	fixer := unkfix.New().WithUnknown(unk).WithMatchTimeout(ff.matchTimeout)
	if ff.tokenizerPath != "" {
		tok, err := tokenizers.Load(ff.tokenizerPath, config)
		if err != nil {
			return nil, err
		}
		fixer = fixer.WithTokenizer(tok)
	}
	klog.V(1).Infof("unkfix: placeholder %q, tokenizer %q", fixer.Unknown(), ff.tokenizerPath)
	return fixer, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "unkfix",
		Short:         "Recover text replaced by unknown-token placeholders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	klogFlags := goflag.NewFlagSet("klog", goflag.ContinueOnError)
	klog.InitFlags(klogFlags)
	root.PersistentFlags().AddGoFlagSet(klogFlags)

	root.AddCommand(newFixCmd(), newSelfTestCmd())
	return root
}

func newFixCmd() *cobra.Command {
	var ff fixerFlags
	var span, text string
	cmd := &cobra.Command{
		Use:   "fix",
		Short: "Recover one span from the text it was taken from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fixer, err := ff.build()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), fixer.Fix(span, text))
			return err
		},
	}
	cmd.Flags().StringVar(&span, "span", "", "Span containing placeholders.")
	cmd.Flags().StringVar(&text, "text", "", "Original text the span was taken from.")
	_ = cmd.MarkFlagRequired("span")
	_ = cmd.MarkFlagRequired("text")
	ff.register(cmd)
	return cmd
}

func newSelfTestCmd() *cobra.Command {
	var ff fixerFlags
	var casesPath string
	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Run recovery cases and report which pass",
		Long: "Run recovery cases and report which pass. Without --cases the built-in cases are used, " +
			`which use the "` + unkfix.DefaultUnknown + `" placeholder.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cases := selftest.DefaultCases()
			if casesPath != "" {
				var err error
				cases, err = selftest.LoadCases(casesPath)
				if err != nil {
					return err
				}
			}
			fixer, err := ff.build()
			if err != nil {
				return err
			}
			report := selftest.Run(cases, fixer.Fix)
			printReport(cmd.OutOrStdout(), report)
			if !report.OK() {
				return errors.Errorf("%d of %d cases failed", report.Failed, len(report.Results))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&casesPath, "cases", "", "YAML file with the cases to run.")
	ff.register(cmd)
	return cmd
}

var (
	passStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	failStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	detailStyle = lipgloss.NewStyle().Faint(true).PaddingLeft(7)
)

func printReport(w io.Writer, report selftest.Report) {
	for _, r := range report.Results {
		if r.Passed {
			fmt.Fprintf(w, "%s %q -> %q\n", passStyle.Render("[PASS]"), r.Span, r.Got)
			continue
		}
		fmt.Fprintf(w, "%s %q -> %q\n", failStyle.Render("[FAIL]"), r.Span, r.Got)
		fmt.Fprintln(w, detailStyle.Render(fmt.Sprintf("expected %q", r.Expected)))
	}
	summary := fmt.Sprintf("%d passed, %d failed", report.Passed, report.Failed)
	if report.OK() {
		fmt.Fprintln(w, passStyle.Render(summary))
	} else {
		fmt.Fprintln(w, failStyle.Render(summary))
	}
}
