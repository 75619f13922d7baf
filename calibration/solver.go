package calibration

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const (
	transformRows   = 4
	transformCols   = 3
	transformParams = transformRows * transformCols

	lmMaxIterations  = 200
	lmInitialDamping = 1e-3
	lmMaxDamping     = 1e16
	lmGradientTol    = 1e-15
	lmCostTol        = 1e-24

	lbfgsMaxIterations = 1000

	// minDenominator keeps the homogeneous division finite during refinement.
	minDenominator = 1e-12
)

// project maps a camera point through a row-major 4x3 transform to a laser coordinate.
func project(params []float64, p r3.Vector) r2.Point {
	h := [transformRows]float64{p.X, p.Y, p.Z, 1}
	var q [transformCols]float64
	for j := 0; j < transformCols; j++ {
		for k := 0; k < transformRows; k++ {
			q[j] += h[k] * params[k*transformCols+j]
		}
	}
	w := q[2]
	if math.Abs(w) < minDenominator {
		w = math.Copysign(minDenominator, w)
	}
	return r2.Point{X: q[0] / w, Y: q[1] / w}
}

// residuals fills dst (length 2n) with the per-component laser coordinate errors.
func residuals(dst, params []float64, cameraPoints []r3.Vector, laserCoords []r2.Point) {
	for i, p := range cameraPoints {
		predicted := project(params, p)
		dst[2*i] = predicted.X - laserCoords[i].X
		dst[2*i+1] = predicted.Y - laserCoords[i].Y
	}
}

func sumSquaredError(params []float64, cameraPoints []r3.Vector, laserCoords []r2.Point) float64 {
	r := make([]float64, 2*len(cameraPoints))
	residuals(r, params, cameraPoints, laserCoords)
	return floats.Dot(r, r)
}

// reprojectionDistances returns the per-correspondence Euclidean distance between measured and
// predicted laser coords.
func reprojectionDistances(params []float64, cameraPoints []r3.Vector, laserCoords []r2.Point) []float64 {
	distances := make([]float64, len(cameraPoints))
	for i, p := range cameraPoints {
		distances[i] = project(params, p).Sub(laserCoords[i]).Norm()
	}
	return distances
}

// linearLeastSquares solves C·T ≈ L for T, where C stacks the homogeneous camera points (n×4)
// and L the homogeneous laser coordinates (n×3, third column ones). The minimum norm solution is
// returned when the system is rank deficient.
func linearLeastSquares(cameraPoints []r3.Vector, laserCoords []r2.Point) ([]float64, error) {
	n := len(cameraPoints)
	if n == 0 || n != len(laserCoords) {
		return nil, errors.Errorf("need matching non-empty correspondences, got %d camera points and %d laser coords",
			n, len(laserCoords))
	}
	c := mat.NewDense(n, transformRows, nil)
	l := mat.NewDense(n, transformCols, nil)
	for i := range cameraPoints {
		c.SetRow(i, []float64{cameraPoints[i].X, cameraPoints[i].Y, cameraPoints[i].Z, 1})
		l.SetRow(i, []float64{laserCoords[i].X, laserCoords[i].Y, 1})
	}

	var svd mat.SVD
	if ok := svd.Factorize(c, mat.SVDThin); !ok {
		return nil, errors.New("failed to factorize camera point matrix")
	}
	// matches numpy's default lstsq cutoff.
	rcond := float64(max(n, transformRows)) * 2.220446049250313e-16
	rank := svd.Rank(rcond)
	if rank == 0 {
		return nil, errors.New("zero rank system")
	}
	var t mat.Dense
	svd.SolveTo(&t, l, rank)
	return flatten(&t), nil
}

// levenbergMarquardt refines the transform by minimizing the sum of squared reprojection
// residuals with a damped Gauss-Newton (trust region) iteration, starting from seed.
func levenbergMarquardt(seed []float64, cameraPoints []r3.Vector, laserCoords []r2.Point) []float64 {
	m := 2 * len(cameraPoints)
	f := func(y, x []float64) {
		residuals(y, x, cameraPoints, laserCoords)
	}

	params := append([]float64(nil), seed...)
	r := make([]float64, m)
	f(r, params)
	cost := floats.Dot(r, r)

	jac := mat.NewDense(m, transformParams, nil)
	candidate := make([]float64, transformParams)
	candidateResiduals := make([]float64, m)
	damping := lmInitialDamping

	for iter := 0; iter < lmMaxIterations && cost > lmCostTol; iter++ {
		fd.Jacobian(jac, f, params, &fd.JacobianSettings{Formula: fd.Central})

		var jtj mat.SymDense
		jtj.SymOuterK(1, jac.T())
		var grad mat.VecDense
		grad.MulVec(jac.T(), mat.NewVecDense(m, r))
		if mat.Norm(&grad, math.Inf(1)) < lmGradientTol {
			break
		}

		improved := false
		for damping < lmMaxDamping {
			a := mat.NewSymDense(transformParams, nil)
			a.CopySym(&jtj)
			for i := 0; i < transformParams; i++ {
				a.SetSym(i, i, jtj.At(i, i)+damping*math.Max(jtj.At(i, i), 1e-12))
			}

			var chol mat.Cholesky
			if ok := chol.Factorize(a); !ok {
				damping *= 10
				continue
			}
			var step mat.VecDense
			if err := chol.SolveVecTo(&step, &grad); err != nil {
				damping *= 10
				continue
			}
			for i := range candidate {
				candidate[i] = params[i] - step.AtVec(i)
			}
			f(candidateResiduals, candidate)
			candidateCost := floats.Dot(candidateResiduals, candidateResiduals)
			if candidateCost < cost {
				copy(params, candidate)
				copy(r, candidateResiduals)
				cost = candidateCost
				damping = math.Max(damping/10, 1e-12)
				improved = true
				break
			}
			damping *= 10
		}
		if !improved {
			break
		}
	}
	return params
}

// bundleAdjustment refines the transform by minimizing the mean squared reprojection error
// with L-BFGS, starting from seed. The seed is returned if no better solution is found.
func bundleAdjustment(seed []float64, cameraPoints []r3.Vector, laserCoords []r2.Point) ([]float64, error) {
	n := float64(len(cameraPoints))
	cost := func(x []float64) float64 {
		return sumSquaredError(x, cameraPoints, laserCoords) / n
	}
	problem := optimize.Problem{
		Func: cost,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, cost, x, &fd.Settings{Formula: fd.Central})
		},
	}
	result, err := optimize.Minimize(problem, seed, &optimize.Settings{
		MajorIterations:   lbfgsMaxIterations,
		GradientThreshold: 1e-14,
	}, &optimize.LBFGS{})
	if result == nil {
		return nil, errors.Errorf("bundle adjustment failed: %v", err)
	}
	// line search failures near the optimum still leave a usable location.
	if cost(result.X) > cost(seed) {
		return append([]float64(nil), seed...), nil
	}
	return result.X, nil
}

// flatten returns the row-major parameters of a 4x3 transform.
func flatten(t mat.Matrix) []float64 {
	params := make([]float64, transformParams)
	for i := 0; i < transformRows; i++ {
		for j := 0; j < transformCols; j++ {
			params[i*transformCols+j] = t.At(i, j)
		}
	}
	return params
}
