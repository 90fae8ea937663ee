package data

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/gossiplearn/gossiplearn/src/common"
)

// LoadClassificationCSV reads a numeric CSV classification dataset in the
// UCI layout: one example per row, features first, integer class label in
// the last column. Features are standardized to zero mean and unit variance.
func LoadClassificationCSV(path string) ([][]float64, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, common.NewSimErr("data", common.InvalidConfig, "empty dataset "+path)
	}

	dim := len(records[0]) - 1
	if dim < 1 {
		return nil, nil, common.NewSimErr("data", common.InvalidConfig,
			fmt.Sprintf("%s has %d columns", path, len(records[0])))
	}

	X := make([][]float64, len(records))
	y := make([]int, len(records))
	for i, rec := range records {
		if len(rec) != dim+1 {
			return nil, nil, common.NewSimErr("data", common.InvalidConfig,
				fmt.Sprintf("%s row %d has %d columns, want %d", path, i, len(rec), dim+1))
		}
		X[i] = make([]float64, dim)
		for j := 0; j < dim; j++ {
			v, err := strconv.ParseFloat(rec[j], 64)
			if err != nil {
				return nil, nil, err
			}
			X[i][j] = v
		}
		label, err := strconv.Atoi(rec[dim])
		if err != nil {
			return nil, nil, err
		}
		y[i] = label
	}

	standardize(X)

	return X, y, nil
}

// standardize scales each feature column to zero mean and unit variance in
// place. Constant columns are left centred only.
func standardize(X [][]float64) {
	if len(X) == 0 {
		return
	}
	dim := len(X[0])
	n := float64(len(X))

	for j := 0; j < dim; j++ {
		mean := 0.0
		for i := range X {
			mean += X[i][j]
		}
		mean /= n

		variance := 0.0
		for i := range X {
			d := X[i][j] - mean
			variance += d * d
		}
		std := math.Sqrt(variance / n)

		for i := range X {
			X[i][j] -= mean
			if std > 0 {
				X[i][j] /= std
			}
		}
	}
}
