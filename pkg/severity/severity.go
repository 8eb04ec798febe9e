// Package severity maps scanner scores and labels to a common severity
// level used in search documents.
package severity

import "strings"

// Level is a severity level.
type Level string

const (
	Critical Level = "critical"
	High     Level = "high"
	Medium   Level = "medium"
	Low      Level = "low"
	Info     Level = "info"
	Unknown  Level = "unknown"
)

// String returns the string representation of the severity level.
func (l Level) String() string {
	return string(l)
}

// Priority returns the numeric priority of the level. Higher is more severe.
func (l Level) Priority() int {
	switch l {
	case Critical:
		return 5
	case High:
		return 4
	case Medium:
		return 3
	case Low:
		return 2
	case Info:
		return 1
	default:
		return 0
	}
}

// IsHigherThan returns true if this severity is higher than the other.
func (l Level) IsHigherThan(other Level) bool {
	return l.Priority() > other.Priority()
}

// FromString normalizes scanner severity labels.
func FromString(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CRITICAL", "CRIT":
		return Critical
	case "HIGH", "SEVERE":
		return High
	case "MEDIUM", "MODERATE", "MED":
		return Medium
	case "LOW":
		return Low
	case "INFO", "INFORMATIONAL", "NONE":
		return Info
	default:
		return Unknown
	}
}

// FromCVSS converts a CVSS base score (0.0-10.0) to a level using the
// CVSS v3 rating bands.
func FromCVSS(score float64) Level {
	switch {
	case score >= 9.0:
		return Critical
	case score >= 7.0:
		return High
	case score >= 4.0:
		return Medium
	case score > 0:
		return Low
	default:
		return Info
	}
}

// FromScanner converts the vulnerability scanner's numeric severity
// (0 informational through 4 critical).
func FromScanner(n int64) Level {
	switch n {
	case 4:
		return Critical
	case 3:
		return High
	case 2:
		return Medium
	case 1:
		return Low
	case 0:
		return Info
	default:
		return Unknown
	}
}

// Max returns the higher severity of two levels.
func Max(a, b Level) Level {
	if a.IsHigherThan(b) {
		return a
	}
	return b
}

// CountBySeverity counts findings by severity level.
type CountBySeverity struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
	Unknown  int `json:"unknown"`
	Total    int `json:"total"`
}

// Increment increases the count for the given severity.
func (c *CountBySeverity) Increment(level Level) {
	c.Total++
	switch level {
	case Critical:
		c.Critical++
	case High:
		c.High++
	case Medium:
		c.Medium++
	case Low:
		c.Low++
	case Info:
		c.Info++
	default:
		c.Unknown++
	}
}

// Highest returns the highest level with a non-zero count.
func (c *CountBySeverity) Highest() Level {
	switch {
	case c.Critical > 0:
		return Critical
	case c.High > 0:
		return High
	case c.Medium > 0:
		return Medium
	case c.Low > 0:
		return Low
	case c.Info > 0:
		return Info
	}
	return Unknown
}
