package sampler

import (
	"math"
	"sort"
)

// Candidate is one vocabulary entry under consideration.
type Candidate struct {
	ID    int32
	Logit float32
	P     float32
}

// Candidates is the working set threaded through the stages.
type Candidates struct {
	Items  []Candidate
	Sorted bool
	// Selected is the index into Items chosen by the final stage, or -1.
	Selected int
}

func (c *Candidates) reset(logits []float32) {
	if cap(c.Items) < len(logits) {
		c.Items = make([]Candidate, len(logits))
	}
	c.Items = c.Items[:len(logits)]
	for i, l := range logits {
		c.Items[i] = Candidate{ID: int32(i), Logit: l}
	}
	c.Sorted = false
	c.Selected = -1
}

func (c *Candidates) sortDesc() {
	if c.Sorted {
		return
	}
	sort.SliceStable(c.Items, func(i, j int) bool { return c.Items[i].Logit > c.Items[j].Logit })
	c.Sorted = true
}

// softmax sorts the set and fills P from the logits.
func (c *Candidates) softmax() {
	c.sortDesc()
	if len(c.Items) == 0 {
		return
	}
	maxl := c.Items[0].Logit
	var sum float64
	for i := range c.Items {
		e := math.Exp(float64(c.Items[i].Logit - maxl))
		c.Items[i].P = float32(e)
		sum += e
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		for i := range c.Items {
			c.Items[i].P = 0
		}
		c.Items[0].P = 1
		return
	}
	for i := range c.Items {
		c.Items[i].P = float32(float64(c.Items[i].P) / sum)
	}
}

func (c *Candidates) truncate(n int) {
	if n < len(c.Items) {
		c.Items = c.Items[:n]
	}
}
