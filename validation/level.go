package validation

import (
	"fmt"
	"strings"
)

// Level 验证级别
type Level int

const (
	LevelBasic Level = iota
	LevelSemantic
	LevelConsensus
	LevelComprehensive
)

var levelNames = [...]string{"basic", "semantic", "consensus", "comprehensive"}

// passThresholds 各级别的通过阈值
var passThresholds = [...]float64{0.5, 0.6, 0.7, 0.75}

func (l Level) String() string {
	if l < LevelBasic || l > LevelComprehensive {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// Threshold returns the confidence a result needs to pass at this level.
func (l Level) Threshold() float64 {
	return passThresholds[l.clamp()]
}

func (l Level) clamp() Level {
	return max(LevelBasic, min(LevelComprehensive, l))
}

// ParseLevel 解析级别名称（大小写不敏感）
func ParseLevel(s string) (Level, error) {
	for i, name := range levelNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Level(i), nil
		}
	}
	return LevelBasic, fmt.Errorf("unknown validation level %q", s)
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
