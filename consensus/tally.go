package consensus

import (
	"strings"
	"time"

	"github.com/BaSui01/agentquorum/agent"
	"github.com/BaSui01/agentquorum/recovery"
)

// Method 决议方式
type Method string

const (
	MethodConsensus      Method = "consensus"
	MethodMajority       Method = "majority"
	MethodBestConfidence Method = "best_confidence"
	MethodSingleAgent    Method = "single_agent"
	MethodNone           Method = "none"
)

const (
	majorityFactor        = 0.8
	bestConfidenceFactor  = 0.7
	singleAgentConfidence = 0.3
)

// Vote is one collected opinion.
type Vote struct {
	Index       int           `json:"index"`
	Perspective string        `json:"perspective"`
	Response    string        `json:"response"`
	Candidate   string        `json:"candidate,omitempty"`
	Confidence  float64       `json:"confidence"`
	Valid       bool          `json:"valid"`
	Duration    time.Duration `json:"duration_ns"`
	Error       string        `json:"error,omitempty"`
}

// VotingResult 投票结果
type VotingResult struct {
	ConsensusReached bool                  `json:"consensus_reached"`
	SelectedAgent    *agent.Agent          `json:"-"`
	Selected         string                `json:"selected_agent,omitempty"`
	VoteCount        map[string]int        `json:"vote_count"`
	Confidence       float64               `json:"confidence"`
	Elapsed          time.Duration         `json:"elapsed_ns"`
	ErrorPattern     recovery.ErrorPattern `json:"error_pattern,omitempty"`
	RawVotes         []Vote                `json:"raw_votes"`
	Method           Method                `json:"method"`
}

// MatchCandidate returns the candidate whose name occurs earliest in the
// response, case-insensitively. Equal positions go to the longer name.
func MatchCandidate(response string, candidates []*agent.Agent) (*agent.Agent, bool) {
	lower := strings.ToLower(response)
	var best *agent.Agent
	bestPos := -1
	for _, c := range candidates {
		if c == nil || c.Name == "" {
			continue
		}
		pos := strings.Index(lower, strings.ToLower(c.Name))
		if pos < 0 {
			continue
		}
		if bestPos < 0 || pos < bestPos || (pos == bestPos && len(c.Name) > len(best.Name)) {
			best, bestPos = c, pos
		}
	}
	return best, best != nil
}

// tally accumulates votes in arrival order.
type tally struct {
	winning    int
	counts     map[string]int
	confSum    map[string]float64
	firstSeen  map[string]int
	arrivals   int
	valid      int
	winner     string
	votes      []Vote
	byName     map[string]*agent.Agent
	candidates []*agent.Agent
}

func newTally(candidates []*agent.Agent, winning int) *tally {
	t := &tally{
		winning:    winning,
		counts:     make(map[string]int, len(candidates)),
		confSum:    make(map[string]float64, len(candidates)),
		firstSeen:  make(map[string]int, len(candidates)),
		byName:     make(map[string]*agent.Agent, len(candidates)),
		candidates: candidates,
	}
	for _, c := range candidates {
		t.counts[c.Name] = 0
		t.byName[c.Name] = c
	}
	return t
}

func (t *tally) add(v Vote) {
	t.votes = append(t.votes, v)
	if !v.Valid {
		return
	}
	t.valid++
	t.counts[v.Candidate]++
	t.confSum[v.Candidate] += v.Confidence
	if _, ok := t.firstSeen[v.Candidate]; !ok {
		t.firstSeen[v.Candidate] = t.arrivals
		t.arrivals++
	}
	if t.winner == "" && t.counts[v.Candidate] >= t.winning {
		t.winner = v.Candidate
	}
}

func (t *tally) meanConfidence(name string) float64 {
	if t.counts[name] == 0 {
		return 0
	}
	return t.confSum[name] / float64(t.counts[name])
}

// ranked returns the voted candidates ordered by first vote arrival.
func (t *tally) ranked() []string {
	out := make([]string, len(t.firstSeen))
	for name, i := range t.firstSeen {
		out[i] = name
	}
	return out
}

func (t *tally) plurality() string {
	best := ""
	for _, name := range t.ranked() {
		if best == "" || t.counts[name] > t.counts[best] {
			best = name
		}
	}
	return best
}

func (t *tally) bestConfidence() string {
	best := ""
	for _, name := range t.ranked() {
		if best == "" || t.meanConfidence(name) > t.meanConfidence(best) {
			best = name
		}
	}
	return best
}

// resolve applies the resolution chain. interrupted marks a collection cut
// short by the deadline or cancellation, classified as pattern.
func (t *tally) resolve(cfg VotingConfig, interrupted bool, pattern recovery.ErrorPattern) *VotingResult {
	res := &VotingResult{
		VoteCount: make(map[string]int, len(t.counts)),
		RawVotes:  append([]Vote(nil), t.votes...),
		Method:    MethodNone,
	}
	for name, n := range t.counts {
		res.VoteCount[name] = n
	}
	choose := func(name string, conf float64, m Method) *VotingResult {
		res.SelectedAgent = t.byName[name]
		res.Selected = name
		res.Confidence = clamp01(conf)
		res.Method = m
		return res
	}

	if t.winner != "" {
		res.ConsensusReached = true
		return choose(t.winner, t.meanConfidence(t.winner), MethodConsensus)
	}

	failure := recovery.PatternConsensusFailure
	if interrupted {
		failure = pattern
	} else {
		if cfg.FallbackToMajority && t.valid > 0 {
			name := t.plurality()
			return choose(name, t.meanConfidence(name)*majorityFactor, MethodMajority)
		}
		if cfg.FallbackToBestConfidence && t.valid > 0 {
			name := t.bestConfidence()
			if conf := t.meanConfidence(name); conf >= cfg.ConfidenceThreshold {
				return choose(name, conf*bestConfidenceFactor, MethodBestConfidence)
			}
		}
	}

	res.ErrorPattern = failure
	if cfg.AllowSingleAgentFallback && cfg.DefaultAgent != "" {
		if _, ok := t.byName[cfg.DefaultAgent]; ok {
			return choose(cfg.DefaultAgent, singleAgentConfidence, MethodSingleAgent)
		}
	}
	return res
}
