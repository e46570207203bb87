package preprocessing

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/YuminosukeSato/airpressure/core/parallel"
	"github.com/YuminosukeSato/airpressure/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// SMOTE は少数クラスを合成サンプルで多数クラスの件数までオーバーサンプリングする。
//
// 合成サンプルは、同じクラスの元サンプルとその k 近傍の1つを結ぶ線分上に
// 一様乱数で生成される。元サンプルは順序を保って先頭に残り、合成サンプルは
// クラスラベルの昇順でその後ろに追加される。
type SMOTE struct {
	KNeighbors  int
	RandomState int64
}

// NewSMOTE は新しいSMOTEを作成する
func NewSMOTE(kNeighbors int, randomState int64) *SMOTE {
	return &SMOTE{KNeighbors: kNeighbors, RandomState: randomState}
}

// FitResample は (X, y) をリサンプリングした新しい行列とラベルを返す。
// y はクラスラベル（整数値）で X と同じ行数を持つ。
func (s *SMOTE) FitResample(X mat.Matrix, y []float64) (*mat.Dense, []float64, error) {
	r, c := X.Dims()
	if r != len(y) {
		return nil, nil, errors.NewDimensionError("SMOTE.FitResample", r, len(y), 0)
	}
	if s.KNeighbors < 1 {
		return nil, nil, errors.NewValidationError("k_neighbors", "must be at least 1", s.KNeighbors)
	}

	members := make(map[float64][]int)
	for i, label := range y {
		members[label] = append(members[label], i)
	}
	if len(members) < 2 {
		return nil, nil, errors.NewImbalanceReasonError("SMOTE.FitResample",
			fmt.Sprintf("at least two classes are required, got %d", len(members)))
	}

	classes := make([]float64, 0, len(members))
	majority := 0
	for label, idx := range members {
		classes = append(classes, label)
		if len(idx) > majority {
			majority = len(idx)
		}
	}
	sort.Float64s(classes)

	for _, label := range classes {
		if n := len(members[label]); n < majority && n <= s.KNeighbors {
			return nil, nil, errors.NewImbalanceError("SMOTE.FitResample",
				fmt.Sprintf("%g", label), n, s.KNeighbors+1)
		}
	}

	rng := rand.New(rand.NewSource(s.RandomState))
	var synthetic [][]float64
	var syntheticY []float64
	for _, label := range classes {
		idx := members[label]
		need := majority - len(idx)
		if need == 0 {
			continue
		}
		rows := make([][]float64, len(idx))
		for i, src := range idx {
			rows[i] = mat.Row(nil, src, X)
		}
		neighbors := s.nearestNeighbors(rows)
		for n := 0; n < need; n++ {
			base := rng.Intn(len(rows))
			nn := neighbors[base][rng.Intn(s.KNeighbors)]
			gap := rng.Float64()

			sample := make([]float64, c)
			floats.SubTo(sample, rows[nn], rows[base])
			floats.Scale(gap, sample)
			floats.Add(sample, rows[base])
			synthetic = append(synthetic, sample)
			syntheticY = append(syntheticY, label)
		}
	}

	out := mat.NewDense(r+len(synthetic), c, nil)
	out.Slice(0, r, 0, c).(*mat.Dense).Copy(X)
	for i, sample := range synthetic {
		out.SetRow(r+i, sample)
	}
	outY := make([]float64, 0, r+len(syntheticY))
	outY = append(outY, y...)
	outY = append(outY, syntheticY...)
	return out, outY, nil
}

// nearestNeighbors returns, for every row, the indices of its KNeighbors
// nearest rows by Euclidean distance, excluding the row itself.
func (s *SMOTE) nearestNeighbors(rows [][]float64) [][]int {
	out := make([][]int, len(rows))
	parallel.ParallelizeWithThreshold(len(rows), 128, func(start, end int) {
		for i := start; i < end; i++ {
			order := make([]int, 0, len(rows)-1)
			dist := make([]float64, len(rows))
			for j := range rows {
				if j == i {
					continue
				}
				dist[j] = floats.Distance(rows[i], rows[j], 2)
				order = append(order, j)
			}
			sort.SliceStable(order, func(a, b int) bool { return dist[order[a]] < dist[order[b]] })
			out[i] = order[:s.KNeighbors]
		}
	})
	return out
}
