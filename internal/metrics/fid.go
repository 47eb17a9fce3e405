package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"eeg-forge/internal/autograd"
)

// FID is the Fréchet distance between Gaussian fits of real and generated
// feature embeddings.
type FID struct {
	extractor FeatureExtractor
	width     int
	real      *gaussian
	fake      *gaussian
}

// NewFID returns an FID accumulator over width-dimensional features.
func NewFID(extractor FeatureExtractor, width int) (*FID, error) {
	if extractor == nil {
		return nil, fmt.Errorf("%w: fid needs a feature extractor", ErrMissingDependency)
	}
	if width <= 0 {
		return nil, fmt.Errorf("fid: feature width must be > 0 (got %d)", width)
	}
	return &FID{
		extractor: extractor,
		width:     width,
		real:      newGaussian(width),
		fake:      newGaussian(width),
	}, nil
}

// Width returns the feature dimension.
func (f *FID) Width() int {
	return f.width
}

// Update embeds x and adds it to the real or generated population.
func (f *FID) Update(x *autograd.Tensor, real bool) error {
	var feats *autograd.Tensor
	err := autograd.WithGrad(false, func() error {
		var err error
		feats, err = f.extractor.Features(x)
		return err
	})
	if err != nil {
		return fmt.Errorf("fid: extract features: %w", err)
	}
	if feats.Dims() != 2 || feats.Rows() != x.Rows() || feats.Len() != x.Rows()*f.width {
		return fmt.Errorf("%w: fid expects %d features per sample, got shape %v", autograd.ErrShapeMismatch, f.width, feats.Shape())
	}
	pop := f.fake
	if real {
		pop = f.real
	}
	for i := 0; i < feats.Rows(); i++ {
		pop.add(feats.Row(i))
	}
	return nil
}

// Compute returns ||mu_r - mu_f||^2 + Tr(S_r + S_f - 2 (S_r^1/2 S_f S_r^1/2)^1/2).
func (f *FID) Compute() (float64, error) {
	if f.real.n == 0 && f.fake.n == 0 {
		return 0, ErrEmptyAccumulator
	}
	if f.real.n < 2 || f.fake.n < 2 {
		return 0, fmt.Errorf("%w: fid needs 2 samples per population (real %d, fake %d)", ErrInsufficientSamples, f.real.n, f.fake.n)
	}
	muR, covR := f.real.stats()
	muF, covF := f.fake.stats()

	var diff mat.VecDense
	diff.SubVec(muR, muF)
	meanTerm := mat.Dot(&diff, &diff)

	rootR, err := sqrtSym(covR)
	if err != nil {
		return 0, err
	}
	var tmp, prod mat.Dense
	tmp.Mul(rootR, covF)
	prod.Mul(&tmp, rootR)
	vals, err := eigenvalues(symmetrize(&prod))
	if err != nil {
		return 0, err
	}
	traceRoot := 0.0
	for _, v := range vals {
		traceRoot += math.Sqrt(math.Max(v, 0))
	}
	return meanTerm + mat.Trace(covR) + mat.Trace(covF) - 2*traceRoot, nil
}

// Reset clears both populations.
func (f *FID) Reset() {
	f.real = newGaussian(f.width)
	f.fake = newGaussian(f.width)
}

// gaussian keeps the running first and second moments of a population.
type gaussian struct {
	n     int
	sum   *mat.VecDense
	outer *mat.SymDense
}

func newGaussian(width int) *gaussian {
	return &gaussian{
		sum:   mat.NewVecDense(width, nil),
		outer: mat.NewSymDense(width, nil),
	}
}

func (g *gaussian) add(row []float64) {
	v := mat.NewVecDense(len(row), row)
	g.sum.AddVec(g.sum, v)
	g.outer.SymRankOne(g.outer, 1, v)
	g.n++
}

// stats returns the mean and unbiased covariance.
func (g *gaussian) stats() (*mat.VecDense, *mat.SymDense) {
	n := float64(g.n)
	mu := mat.NewVecDense(g.sum.Len(), nil)
	mu.ScaleVec(1/n, g.sum)
	cov := mat.NewSymDense(g.sum.Len(), nil)
	cov.SymRankOne(g.outer, -n, mu)
	cov.ScaleSym(1/(n-1), cov)
	return mu, cov
}

func eigenvalues(s *mat.SymDense) ([]float64, error) {
	var eig mat.EigenSym
	if !eig.Factorize(s, false) {
		return nil, fmt.Errorf("fid: eigen decomposition failed")
	}
	return eig.Values(nil), nil
}

// sqrtSym returns the principal square root of a symmetric PSD matrix.
// Negative eigenvalues from round-off are clamped to zero.
func sqrtSym(s *mat.SymDense) (*mat.Dense, error) {
	var eig mat.EigenSym
	if !eig.Factorize(s, true) {
		return nil, fmt.Errorf("fid: eigen decomposition failed")
	}
	vals := eig.Values(nil)
	for i, v := range vals {
		vals[i] = math.Sqrt(math.Max(v, 0))
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	var scaled, root mat.Dense
	scaled.Mul(&vecs, mat.NewDiagDense(len(vals), vals))
	root.Mul(&scaled, vecs.T())
	return &root, nil
}

func symmetrize(m *mat.Dense) *mat.SymDense {
	n, _ := m.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, (m.At(i, j)+m.At(j, i))/2)
		}
	}
	return s
}
