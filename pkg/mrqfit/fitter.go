// Package mrqfit implements a Levenberg-Marquardt least-squares engine for
// arbitrary models with analytic derivatives.
//
// A Fitter owns all optimizer scratch state, so independent fits may run
// concurrently. The damping parameter doubles as the mode flag: it is
// negative before initialization, positive while iterating and zero once
// the fit has been finalized.
package mrqfit

import (
	"errors"
	"fmt"
)

const (
	initialLambda = 0.001
	lambdaDown    = 0.1
	lambdaUp      = 10.0
)

// Point is one evaluated data point.
type Point struct {
	Observed float64
	Model    float64
	Weight   float64 // 1/σ² of the observation
}

// Model supplies data points and model derivatives to the fitter.
type Model interface {
	// Len returns the number of data points.
	Len() int
	// Eval evaluates data point i for parameters a and stores the partial
	// derivatives of the model value in dyda. It returns ErrSkip to ignore
	// the point; any other error aborts the evaluation pass.
	Eval(i int, a, dyda []float64) (Point, error)
}

// Fitter is the state of one Levenberg-Marquardt fit.
type Fitter struct {
	model Model
	ma    int
	mfit  int
	lista [MaxParams]int

	a    [MaxParams]float64
	atry [MaxParams]float64
	dyda [MaxParams]float64

	lambda  float64
	chisq   float64
	ochisq  float64
	alpha   Matrix
	beta    [MaxParams]float64
	covar   Matrix
	trial   Matrix
	trialB  [MaxParams]float64
	oneda   Matrix
	nsample int
}

// New initializes a fit of model starting from params. active lists the
// indices of the parameters that are varied; all others stay fixed.
// A nil active list fits every parameter.
func New(model Model, params []float64, active []int) (*Fitter, error) {
	ma := len(params)
	if ma > MaxParams {
		return nil, ErrTooManyVariables
	}
	if active == nil {
		active = make([]int, ma)
		for i := range active {
			active[i] = i
		}
	}

	f := &Fitter{model: model, ma: ma, mfit: len(active), lambda: -1}
	if err := f.setPermutation(active); err != nil {
		return nil, err
	}
	copy(f.a[:], params)

	f.lambda = initialLambda
	chisq, n, err := f.mrqcof(f.a[:ma], &f.alpha, &f.beta)
	if err != nil {
		return nil, err
	}
	if chisq <= 0 {
		return nil, ErrNoData
	}
	f.chisq, f.ochisq, f.nsample = chisq, chisq, n
	return f, nil
}

// setPermutation fills lista with the active indices followed by the fixed
// ones and checks that together they form a permutation of 0..ma-1.
func (f *Fitter) setPermutation(active []int) error {
	if f.mfit < 1 || f.mfit > f.ma {
		return ErrBadPermutation
	}
	for i, j := range active {
		if j < 0 || j >= f.ma {
			return ErrBadPermutation
		}
		f.lista[i] = j
	}
	kk := f.mfit
	for j := 0; j < f.ma; j++ {
		hits := 0
		for k := 0; k < f.mfit; k++ {
			if f.lista[k] == j {
				hits++
			}
		}
		switch {
		case hits == 0:
			f.lista[kk] = j
			kk++
		case hits > 1:
			return ErrBadPermutation
		}
	}
	if kk != f.ma {
		return ErrBadPermutation
	}
	return nil
}

// Iterate performs one damped step. It reports whether the step lowered
// chi-square and was accepted.
func (f *Fitter) Iterate() (bool, error) {
	if f.lambda == 0 {
		return false, ErrFinalized
	}

	for j := 0; j < f.mfit; j++ {
		for k := 0; k < f.mfit; k++ {
			f.covar[j][k] = f.alpha[j][k]
		}
		f.covar[j][j] = f.alpha[j][j] * (1.0 + f.lambda)
		f.oneda[j][0] = f.beta[j]
	}
	if err := GaussJordan(&f.covar, f.mfit, &f.oneda, 1); err != nil {
		return false, err
	}

	f.atry = f.a
	for j := 0; j < f.mfit; j++ {
		f.atry[f.lista[j]] = f.a[f.lista[j]] + f.oneda[j][0]
	}

	chisq, n, err := f.mrqcof(f.atry[:f.ma], &f.trial, &f.trialB)
	if err != nil && !errors.Is(err, ErrInvalidParams) {
		return false, err
	}
	if err == nil && chisq < f.ochisq && chisq > 0 {
		f.lambda *= lambdaDown
		f.ochisq = chisq
		f.chisq = chisq
		f.nsample = n
		f.alpha = f.trial
		f.beta = f.trialB
		f.a = f.atry
		return true, nil
	}

	f.lambda *= lambdaUp
	f.chisq = f.ochisq
	return false, nil
}

// Finalize re-evaluates the curvature matrix at the current parameters and
// inverts it into the covariance matrix. Rows and columns of fixed
// parameters are zero. No further iterations are possible afterwards.
func (f *Fitter) Finalize() error {
	f.lambda = 0
	chisq, n, err := f.mrqcof(f.a[:f.ma], &f.alpha, &f.beta)
	if err != nil {
		return fmt.Errorf("final evaluation: %w", err)
	}
	f.chisq, f.ochisq, f.nsample = chisq, chisq, n

	f.covar = f.alpha
	var rhs Matrix
	if err := GaussJordan(&f.covar, f.mfit, &rhs, 0); err != nil {
		return err
	}
	f.covsrt()
	return nil
}

// mrqcof evaluates every data point at a and accumulates the curvature
// matrix and gradient vector over the active parameters.
func (f *Fitter) mrqcof(a []float64, alpha *Matrix, beta *[MaxParams]float64) (float64, int, error) {
	for j := 0; j < f.mfit; j++ {
		for k := 0; k <= j; k++ {
			alpha[j][k] = 0
		}
		beta[j] = 0
	}

	chisq := 0.0
	used := 0
	dyda := f.dyda[:f.ma]
	for i, n := 0, f.model.Len(); i < n; i++ {
		p, err := f.model.Eval(i, a, dyda)
		if errors.Is(err, ErrSkip) {
			continue
		}
		if err != nil {
			return 0, 0, err
		}
		dy := p.Observed - p.Model
		for j := 0; j < f.mfit; j++ {
			wt := dyda[f.lista[j]] * p.Weight
			for k := 0; k <= j; k++ {
				alpha[j][k] += wt * dyda[f.lista[k]]
			}
			beta[j] += dy * wt
		}
		chisq += dy * dy * p.Weight
		used++
	}

	for j := 1; j < f.mfit; j++ {
		for k := 0; k < j; k++ {
			alpha[k][j] = alpha[j][k]
		}
	}
	return chisq, used, nil
}

// covsrt spreads the mfit×mfit covariance of the active parameters into the
// full ma×ma matrix in the caller's parameter order.
func (f *Fitter) covsrt() {
	c := &f.covar
	for j := 0; j < f.ma-1; j++ {
		for i := j + 1; i < f.ma; i++ {
			c[i][j] = 0
		}
	}
	for i := 0; i < f.mfit-1; i++ {
		for j := i + 1; j < f.mfit; j++ {
			if f.lista[j] > f.lista[i] {
				c[f.lista[j]][f.lista[i]] = c[i][j]
			} else {
				c[f.lista[i]][f.lista[j]] = c[i][j]
			}
		}
	}
	swap := c[0][0]
	for j := 0; j < f.ma; j++ {
		c[0][j] = c[j][j]
		c[j][j] = 0
	}
	c[f.lista[0]][f.lista[0]] = swap
	for j := 1; j < f.mfit; j++ {
		c[f.lista[j]][f.lista[j]] = c[0][j]
	}
	for j := 1; j < f.ma; j++ {
		for i := 0; i < j; i++ {
			c[i][j] = c[j][i]
		}
	}
}

// Params returns the live parameter vector. Callers may adjust values
// between iterations; the curvature matrix is refreshed on the next
// accepted step.
func (f *Fitter) Params() []float64 { return f.a[:f.ma] }

// Lambda returns the current damping parameter.
func (f *Fitter) Lambda() float64 { return f.lambda }

// ChiSquare returns chi-square at the current parameters.
func (f *Fitter) ChiSquare() float64 { return f.chisq }

// Samples returns the number of data points used in the last accepted
// evaluation.
func (f *Fitter) Samples() int { return f.nsample }

// Covariance returns element (i, j) of the covariance matrix. It is only
// meaningful after Finalize.
func (f *Fitter) Covariance(i, j int) float64 { return f.covar[i][j] }

// Active returns the number of varied parameters.
func (f *Fitter) Active() int { return f.mfit }
