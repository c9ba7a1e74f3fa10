package cli

import (
	"errors"
	"strconv"

	"github.com/absmach/fedround/pkg/fl"
	"github.com/absmach/fedround/pkg/model"
	"github.com/charmbracelet/huh"
)

var errNotPositive = errors.New("must be a positive whole number")

// promptRunConfig edits the choices a user most often changes between runs.
// The current values are preselected.
func promptRunConfig(cfg *fl.RunConfig) error {
	kind := cfg.Model
	aggregation := string(cfg.Aggregation)
	technique := string(cfg.Privacy.Technique)
	participants := strconv.Itoa(cfg.Participants)
	rounds := strconv.Itoa(cfg.Rounds)
	baseline := cfg.Baseline

	kinds := make([]string, len(model.Kinds))
	for i, k := range model.Kinds {
		kinds[i] = string(k)
	}
	strategies := make([]string, len(fl.Strategies))
	for i, s := range fl.Strategies {
		strategies[i] = string(s)
	}
	techniques := make([]string, len(fl.Techniques))
	for i, t := range fl.Techniques {
		techniques[i] = string(t)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Model").
				Options(huh.NewOptions(kinds...)...).
				Value(&kind),
			huh.NewSelect[string]().
				Title("Aggregation strategy").
				Options(huh.NewOptions(strategies...)...).
				Value(&aggregation),
			huh.NewSelect[string]().
				Title("Privacy technique").
				Options(huh.NewOptions(techniques...)...).
				Value(&technique),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Participants").
				Value(&participants).
				Validate(positive),
			huh.NewInput().
				Title("Rounds").
				Value(&rounds).
				Validate(positive),
			huh.NewConfirm().
				Title("Train a centralised baseline too?").
				Value(&baseline),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	cfg.Model = kind
	cfg.Aggregation = fl.Strategy(aggregation)
	cfg.Privacy.Technique = fl.Technique(technique)
	cfg.Participants, _ = strconv.Atoi(participants)
	cfg.Rounds, _ = strconv.Atoi(rounds)
	cfg.Baseline = baseline

	return nil
}

func positive(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return errNotPositive
	}

	return nil
}
