package sampler

import (
	"math"
	"math/rand"
)

// Stage transforms the candidate set. Stages run in a fixed order.
type Stage interface {
	Name() string
	Apply(c *Candidates)
	Accept(tok int32)
	Reset()
}

type stateless struct{}

func (stateless) Accept(int32) {}
func (stateless) Reset()       {}

type topK struct {
	stateless
	k int
}

func (topK) Name() string { return "top-k" }

func (s topK) Apply(c *Candidates) {
	if s.k <= 0 || s.k >= len(c.Items) {
		return
	}
	c.sortDesc()
	c.truncate(s.k)
}

type topP struct {
	stateless
	p       float32
	minKeep int
}

func (topP) Name() string { return "top-p" }

// Apply keeps the smallest prefix whose cumulative mass reaches p.
func (s topP) Apply(c *Candidates) {
	if s.p >= 1 {
		return
	}
	c.softmax()
	var cum float64
	last := len(c.Items)
	for i := range c.Items {
		cum += float64(c.Items[i].P)
		if cum >= float64(s.p) && i+1 >= s.minKeep {
			last = i + 1
			break
		}
	}
	c.truncate(last)
}

type minP struct {
	stateless
	p       float32
	minKeep int
}

func (minP) Name() string { return "min-p" }

// Apply drops candidates whose probability is below p times the best one.
func (s minP) Apply(c *Candidates) {
	if s.p <= 0 || len(c.Items) == 0 {
		return
	}
	c.sortDesc()
	threshold := c.Items[0].Logit + float32(math.Log(float64(s.p)))
	keep := len(c.Items)
	for i := range c.Items {
		if c.Items[i].Logit < threshold && i >= s.minKeep {
			keep = i
			break
		}
	}
	c.truncate(keep)
}

// penalties applies repeat, frequency and presence penalties over a sliding
// window of accepted tokens.
type penalties struct {
	lastN    int
	repeat   float32
	freq     float32
	presence float32

	ring   []int32
	head   int
	counts map[int32]int
}

func newPenalties(lastN int, repeat, freq, presence float32) *penalties {
	return &penalties{
		lastN:    lastN,
		repeat:   repeat,
		freq:     freq,
		presence: presence,
		counts:   make(map[int32]int),
	}
}

func (*penalties) Name() string { return "penalties" }

func (s *penalties) Apply(c *Candidates) {
	if s.lastN == 0 || len(s.counts) == 0 {
		return
	}
	for i := range c.Items {
		n, ok := s.counts[c.Items[i].ID]
		if !ok {
			continue
		}
		l := c.Items[i].Logit
		if l <= 0 {
			l *= s.repeat
		} else {
			l /= s.repeat
		}
		l -= float32(n)*s.freq + s.presence
		c.Items[i].Logit = l
	}
	c.Sorted = false
}

func (s *penalties) Accept(tok int32) {
	if s.lastN <= 0 {
		return
	}
	if len(s.ring) < s.lastN {
		s.ring = append(s.ring, tok)
	} else {
		old := s.ring[s.head]
		if s.counts[old]--; s.counts[old] <= 0 {
			delete(s.counts, old)
		}
		s.ring[s.head] = tok
		s.head = (s.head + 1) % s.lastN
	}
	s.counts[tok]++
}

func (s *penalties) Reset() {
	s.ring = s.ring[:0]
	s.head = 0
	clear(s.counts)
}

type temperature struct {
	stateless
	t float32
}

func (temperature) Name() string { return "temperature" }

// Apply scales logits by 1/t. A non-positive t keeps only the best candidate.
func (s temperature) Apply(c *Candidates) {
	if s.t <= 0 {
		c.sortDesc()
		c.truncate(1)
		return
	}
	if s.t == 1 {
		return
	}
	for i := range c.Items {
		c.Items[i].Logit /= s.t
	}
}

// dist draws one candidate from the softmax distribution.
type dist struct {
	seed uint32
	rng  *rand.Rand
}

func newDist(seed uint32) *dist {
	return &dist{seed: seed, rng: rand.New(rand.NewSource(int64(seed)))}
}

func (*dist) Name() string { return "dist" }

func (s *dist) Apply(c *Candidates) {
	if len(c.Items) == 0 {
		return
	}
	c.softmax()
	r := s.rng.Float64()
	var cum float64
	for i := range c.Items {
		cum += float64(c.Items[i].P)
		if r < cum {
			c.Selected = i
			return
		}
	}
	c.Selected = len(c.Items) - 1
}

func (*dist) Accept(int32) {}

func (s *dist) Reset() { s.rng.Seed(int64(s.seed)) }
