// Package filtergraph builds the declarative compositing graph handed to the
// render engine. Building is pure: equal Params always yield equal Specs and
// nothing here touches the filesystem or the network.
package filtergraph

import (
	"fmt"
	"strconv"
	"strings"
)

// Value is a filter parameter: a number or a symbolic expression such as
// "(ow-iw)/2" or "black".
type Value struct {
	num   float64
	sym   string
	isNum bool
}

func Number(v float64) Value { return Value{num: v, isNum: true} }

func Symbol(s string) Value { return Value{sym: s} }

// IsNumber reports whether v was built with Number.
func (v Value) IsNumber() bool { return v.isNum }

func (v Value) String() string {
	if v.isNum {
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
	return v.sym
}

type Param struct {
	Name  string
	Value Value
}

// Stage is one filter. A stage with no Inputs continues the previous stage's
// unlabeled output; a stage with no Outputs feeds the next one.
type Stage struct {
	Filter  string
	Inputs  []string
	Outputs []string
	Params  []Param
}

// Spec is an ordered, immutable filter graph. Output names the label the
// engine should map to the output file.
type Spec struct {
	Stages []Stage
	Output string
}

// Input slot labels, in the order the engine receives inputs.
const (
	VideoInput = "0:v"
	ImageInput = "1:v"

	// InputCount is the number of fetched inputs every preset consumes.
	InputCount = 2
)

// Inputs returns the distinct input slots the graph reads, in first-use
// order.
func (s Spec) Inputs() []int {
	var (
		out  []int
		seen = map[int]bool{}
	)
	for _, st := range s.Stages {
		for _, label := range st.Inputs {
			if slot, ok := inputSlot(label); ok && !seen[slot] {
				seen[slot] = true
				out = append(out, slot)
			}
		}
	}
	return out
}

// Validate checks that the graph only reads slots below available, that
// every label is produced before it is consumed, and that Output exists.
func (s Spec) Validate(available int) error {
	if len(s.Stages) == 0 {
		return fmt.Errorf("filter graph has no stages")
	}
	produced := map[string]bool{}

	for i, st := range s.Stages {
		if st.Filter == "" {
			return fmt.Errorf("stage %d has no filter name", i)
		}
		if len(st.Inputs) == 0 {
			if i == 0 || len(s.Stages[i-1].Outputs) != 0 {
				return fmt.Errorf("stage %d (%s) has no input", i, st.Filter)
			}
		}
		for _, label := range st.Inputs {
			if slot, ok := inputSlot(label); ok {
				if slot >= available {
					return fmt.Errorf("stage %d (%s) reads input %d but only %d fetched", i, st.Filter, slot, available)
				}
				continue
			}
			if !produced[label] {
				return fmt.Errorf("stage %d (%s) reads unknown label [%s]", i, st.Filter, label)
			}
			delete(produced, label)
		}
		if len(st.Outputs) == 0 && i == len(s.Stages)-1 {
			return fmt.Errorf("last stage (%s) has no output label", st.Filter)
		}
		for _, label := range st.Outputs {
			produced[label] = true
		}
	}

	if !produced[s.Output] {
		return fmt.Errorf("output label [%s] is never produced", s.Output)
	}
	return nil
}

// String renders the graph in -filter_complex syntax.
func (s Spec) String() string {
	var b strings.Builder
	for i, st := range s.Stages {
		if i > 0 {
			if len(st.Inputs) == 0 {
				b.WriteByte(',')
			} else {
				b.WriteByte(';')
			}
		}
		for _, in := range st.Inputs {
			b.WriteString("[" + in + "]")
		}
		b.WriteString(st.Filter)
		for j, p := range st.Params {
			if j == 0 {
				b.WriteByte('=')
			} else {
				b.WriteByte(':')
			}
			b.WriteString(p.Name)
			b.WriteByte('=')
			b.WriteString(quote(p.Value.String()))
		}
		for _, out := range st.Outputs {
			b.WriteString("[" + out + "]")
		}
	}
	return b.String()
}

// Values pass through two parsers: the graph parser splits on "[],;" and
// the filter's option parser splits on ":". Each level unescapes once.
var (
	optionEscaper = newEscaper(`\':`)
	graphEscaper  = newEscaper(`\'[],;`)
)

func newEscaper(special string) *strings.Replacer {
	var pairs []string
	for _, r := range special + " " {
		pairs = append(pairs, string(r), `\`+string(r))
	}
	return strings.NewReplacer(pairs...)
}

// quote escapes v for both levels.
func quote(v string) string {
	return graphEscaper.Replace(optionEscaper.Replace(v))
}

func inputSlot(label string) (int, bool) {
	idx, kind, ok := strings.Cut(label, ":")
	if !ok || (kind != "v" && kind != "a") {
		return 0, false
	}
	n, err := strconv.Atoi(idx)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
