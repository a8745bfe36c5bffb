package backtest

import "math"

// Row is one observation of the volatility-risk-premium feature set.
type Row struct {
	DVOL        float64
	RealizedVol float64
	Skew        float64
	TermSpread  float64
}

// RegressionSignal is the OLS expectation of VRP with residual context.
type RegressionSignal struct {
	ExpectedVRP        float64
	Residual           float64
	ResidualZ          float64
	Is2SigmaMispricing bool
}

type featureRow struct {
	vrp    float64
	skewL1 float64
	termL1 float64
	dvolL1 float64
}

// FitOLSSignal regresses VRP on one-step-lagged skew, term spread and
// DVOL over the trailing lookback window. Returns nil when fewer than
// max(30, lookback) usable rows exist.
func FitOLSSignal(rows []Row, lookback int) *RegressionSignal {
	features := buildFeatures(rows)
	need := lookback
	if need < 30 {
		need = 30
	}
	if len(features) < need {
		return nil
	}
	sub := features[len(features)-lookback:]

	// Design matrix with intercept: [1, skew_l1, term_l1, dvol_l1].
	const k = 4
	n := len(sub)
	x := make([][k]float64, n)
	y := make([]float64, n)
	for i, f := range sub {
		x[i] = [k]float64{1, f.skewL1, f.termL1, f.dvolL1}
		y[i] = f.vrp
	}

	beta, ok := solveNormalEquations(x, y)
	if !ok {
		return nil
	}

	resid := make([]float64, n)
	for i := range x {
		yHat := 0.0
		for j := 0; j < k; j++ {
			yHat += x[i][j] * beta[j]
		}
		resid[i] = y[i] - yHat
	}

	residStd := 0.0
	if n > 2 {
		mean := 0.0
		for _, r := range resid {
			mean += r
		}
		mean /= float64(n)
		ss := 0.0
		for _, r := range resid {
			d := r - mean
			ss += d * d
		}
		residStd = math.Sqrt(ss / float64(n-1))
	}

	lastResid := resid[n-1]
	z := 0.0
	if residStd > 1e-12 {
		z = lastResid / residStd
	}

	expected := 0.0
	for j := 0; j < k; j++ {
		expected += x[n-1][j] * beta[j]
	}

	return &RegressionSignal{
		ExpectedVRP:        expected,
		Residual:           lastResid,
		ResidualZ:          z,
		Is2SigmaMispricing: math.Abs(z) >= 2.0,
	}
}

func buildFeatures(rows []Row) []featureRow {
	if len(rows) < 2 {
		return nil
	}
	features := make([]featureRow, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		features = append(features, featureRow{
			vrp:    rows[i].DVOL - rows[i].RealizedVol,
			skewL1: rows[i-1].Skew,
			termL1: rows[i-1].TermSpread,
			dvolL1: rows[i-1].DVOL,
		})
	}
	return features
}

// solveNormalEquations solves (XᵀX)β = Xᵀy for the 4-column design matrix
// by Gaussian elimination with partial pivoting.
func solveNormalEquations(x [][4]float64, y []float64) ([4]float64, bool) {
	const k = 4
	var a [k][k + 1]float64
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			s := 0.0
			for r := range x {
				s += x[r][i] * x[r][j]
			}
			a[i][j] = s
		}
		s := 0.0
		for r := range x {
			s += x[r][i] * y[r]
		}
		a[i][k] = s
	}

	for col := 0; col < k; col++ {
		pivot := col
		for r := col + 1; r < k; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return [4]float64{}, false
		}
		a[col], a[pivot] = a[pivot], a[col]

		for r := 0; r < k; r++ {
			if r == col {
				continue
			}
			factor := a[r][col] / a[col][col]
			for c := col; c <= k; c++ {
				a[r][c] -= factor * a[col][c]
			}
		}
	}

	var beta [4]float64
	for i := 0; i < k; i++ {
		beta[i] = a[i][k] / a[i][i]
	}
	return beta, true
}
