package validation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScores(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    Scores
		wantErr bool
	}{
		{
			name:  "plain",
			reply: `{"issues":["x"],"relevance":0.5,"completeness":0.6,"clarity":0.7}`,
			want:  Scores{Issues: []string{"x"}, Relevance: 0.5, Completeness: 0.6, Clarity: 0.7},
		},
		{
			name:  "fenced",
			reply: "ok\n```json\n{\"relevance\":1,\"completeness\":1,\"clarity\":0.5}\n```",
			want:  Scores{Relevance: 1, Completeness: 1, Clarity: 0.5},
		},
		{
			name:  "ten point scale",
			reply: `Scores: {"relevance":8,"completeness":6,"clarity":10}`,
			want:  Scores{Relevance: 0.8, Completeness: 0.6, Clarity: 1},
		},
		{
			name:  "negative clamped",
			reply: `{"relevance":-1,"completeness":0.5,"clarity":0.5}`,
			want:  Scores{Relevance: 0, Completeness: 0.5, Clarity: 0.5},
		},
		{name: "no json", reply: "great answer", wantErr: true},
		{name: "missing field", reply: `{"relevance":0.5}`, wantErr: true},
		{name: "broken json", reply: `{"relevance": }`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseScores(tt.reply)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Issues, got.Issues)
			assert.InDelta(t, tt.want.Relevance, got.Relevance, 1e-9)
			assert.InDelta(t, tt.want.Completeness, got.Completeness, 1e-9)
			assert.InDelta(t, tt.want.Clarity, got.Clarity, 1e-9)
		})
	}
}

func TestAgreement(t *testing.T) {
	variance, agree := agreement([]float64{0.5, 0.5})
	assert.InDelta(t, 0, variance, 1e-9)
	assert.InDelta(t, 1, agree, 1e-9)

	variance, agree = agreement([]float64{1, 0})
	assert.InDelta(t, 0.25, variance, 1e-9)
	assert.InDelta(t, 0, agree, 1e-9)
}

func TestLevel(t *testing.T) {
	for i, name := range []string{"basic", "semantic", "consensus", "comprehensive"} {
		l, err := ParseLevel(name)
		require.NoError(t, err)
		assert.Equal(t, Level(i), l)
		assert.Equal(t, name, l.String())
	}
	_, err := ParseLevel("paranoid")
	assert.Error(t, err)

	assert.Equal(t, 0.5, LevelBasic.Threshold())
	assert.Equal(t, 0.75, LevelComprehensive.Threshold())

	data, err := json.Marshal(struct{ L Level }{LevelConsensus})
	require.NoError(t, err)
	assert.JSONEq(t, `{"L":"consensus"}`, string(data))

	var decoded struct{ L Level }
	require.NoError(t, json.Unmarshal([]byte(`{"L":"Semantic"}`), &decoded))
	assert.Equal(t, LevelSemantic, decoded.L)
}
