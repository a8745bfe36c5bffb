package hedge

import "strings"

// Plan is a rule-derived hedge ratio in [0,1]; 1 means fully hedge the
// directional exposure.
type Plan struct {
	Ratio  float64
	Reason string
}

// Interrupt is a kill-switch style decision.
type Interrupt struct {
	Triggered bool
	Reason    string
}

// DynamicRatio derives a hedge ratio from historical-extreme style
// thresholds on the vol index, skew deviation and running drawdown.
func DynamicRatio(dvol float64, skewZ *float64, drawdownPct float64) Plan {
	ratio := 0.2
	var reasons []string

	if dvol >= 65 {
		ratio = maxf(ratio, 0.8)
		reasons = append(reasons, "DVOL extreme>=65")
	} else if dvol >= 55 {
		ratio = maxf(ratio, 0.5)
		reasons = append(reasons, "DVOL elevated>=55")
	}

	if skewZ != nil && abs(*skewZ) >= 2.0 {
		ratio = maxf(ratio, 0.7)
		reasons = append(reasons, "skew 2-sigma deviation")
	}

	if drawdownPct <= -0.06 {
		ratio = 1.0
		reasons = append(reasons, "drawdown breach <= -6%")
	}

	reason := strings.Join(reasons, ", ")
	if reason == "" {
		reason = "baseline"
	}
	return Plan{Ratio: clamp01(ratio), Reason: reason}
}

// CheckInterrupt evaluates the kill-switch rules.
func CheckInterrupt(drawdownPct, dvol, marginUtilization float64) Interrupt {
	switch {
	case drawdownPct <= -0.10:
		return Interrupt{true, "kill-switch: drawdown <= -10%"}
	case dvol >= 75:
		return Interrupt{true, "kill-switch: DVOL panic >= 75"}
	case marginUtilization >= 0.85:
		return Interrupt{true, "kill-switch: margin utilization >= 85%"}
	}
	return Interrupt{}
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
