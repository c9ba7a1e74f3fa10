package participant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/absmach/fedround/pkg/dataset"
	"github.com/absmach/fedround/pkg/fl"
	"github.com/absmach/fedround/pkg/model"
)

func ID(index int) string {
	return fmt.Sprintf("participant-%d", index)
}

// Federation is the set of local participants of one run together with
// the splits they were built from.
type Federation struct {
	Participants []*Participant
	Splits       []dataset.Split
	Features     int
}

// Build loads one split per participant and gives each its own model and
// privacy transform. All splits must agree on the feature count.
func Build(ctx context.Context, cfg fl.RunConfig, src dataset.Source, logger *slog.Logger) (Federation, error) {
	kind, err := model.ParseKind(cfg.Model)
	if err != nil {
		return Federation{}, err
	}

	fed := Federation{
		Participants: make([]*Participant, 0, cfg.Participants),
		Splits:       make([]dataset.Split, 0, cfg.Participants),
	}
	for i := range cfg.Participants {
		split, err := src.Load(ctx, i)
		if err != nil {
			return Federation{}, fmt.Errorf("load data for %s: %w", ID(i), err)
		}
		switch {
		case i == 0:
			fed.Features = split.NumFeatures()
		case split.NumFeatures() != fed.Features:
			return Federation{}, fmt.Errorf("%w: %s has %d features, want %d", fl.ErrShapeMismatch, ID(i), split.NumFeatures(), fed.Features)
		}

		m, err := model.New(kind, split.NumFeatures())
		if err != nil {
			return Federation{}, err
		}
		tr, err := fl.NewTransform(cfg.Privacy, nil)
		if err != nil {
			return Federation{}, err
		}

		fed.Participants = append(fed.Participants, New(ID(i), m, split, tr, logger))
		fed.Splits = append(fed.Splits, split)
	}

	return fed, nil
}
