package pipeline

import (
	"github.com/YuminosukeSato/airpressure/config"
	"github.com/YuminosukeSato/airpressure/pkg/errors"
)

// Mode selects the training or the prediction flavour of a stage.
type Mode string

const (
	ModeTrain Mode = "train"
	ModePred  Mode = "pred"
)

// ParseMode accepts "train" and "pred".
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeTrain, ModePred:
		return Mode(s), nil
	}
	return "", errors.NewValidationError("mode", "must be 'train' or 'pred'", s)
}

// dataset is the storage layout of one mode.
type dataset struct {
	mode       Mode
	bucket     string
	goodDir    string
	badDir     string
	exportKey  string
	db         string
	collection string
	// labelColumn is empty for prediction data.
	labelColumn string
}

func datasetFor(p *config.Params, mode Mode) dataset {
	if mode == ModePred {
		return dataset{
			mode:       ModePred,
			bucket:     p.S3Bucket.PredData,
			goodDir:    p.Data.Pred.GoodDataDir,
			badDir:     p.Data.Pred.BadDataDir,
			exportKey:  p.ExportCSVFile.Pred,
			db:         p.MongoDB.PredDBName,
			collection: p.MongoDB.PredCollection,
		}
	}
	return dataset{
		mode:        ModeTrain,
		bucket:      p.S3Bucket.TrainData,
		goodDir:     p.Data.Train.GoodDataDir,
		badDir:      p.Data.Train.BadDataDir,
		exportKey:   p.ExportCSVFile.Train,
		db:          p.MongoDB.TrainDBName,
		collection:  p.MongoDB.TrainCollection,
		labelColumn: p.TargetCol,
	}
}
