package batch

import (
	"context"

	"go.uber.org/zap"
)

// Evaluate anonymizes labelled records and scores the detected entity
// texts against each record's expected entities. Matching is exact on
// surface text and computed per record.
func (p *Pipeline) Evaluate(ctx context.Context, records []*Record) (*Evaluation, error) {
	slots, _, err := p.run(ctx, records)
	if err != nil {
		return nil, err
	}

	eval := &Evaluation{}
	for i, rec := range records {
		res := slots[i]
		if res == nil {
			continue
		}
		eval.Records++

		expected := toSet(rec.Entities)
		detected := make(map[string]bool, len(res.Explanations))
		for _, e := range res.Explanations {
			detected[e.Entity] = true
		}

		eval.Expected += len(expected)
		eval.Detected += len(detected)
		for text := range detected {
			if expected[text] {
				eval.Correct++
			}
		}
	}
	eval.score()

	p.logger.Info("Evaluation completed",
		zap.Int("records", eval.Records),
		zap.Int("expected", eval.Expected),
		zap.Int("detected", eval.Detected),
		zap.Int("correct", eval.Correct),
		zap.Float64("precision", eval.Precision),
		zap.Float64("recall", eval.Recall),
	)

	return eval, nil
}

// score derives precision, recall and F1, treating empty denominators as zero
func (e *Evaluation) score() {
	e.Precision, e.Recall, e.F1 = 0, 0, 0
	if e.Detected > 0 {
		e.Precision = float64(e.Correct) / float64(e.Detected)
	}
	if e.Expected > 0 {
		e.Recall = float64(e.Correct) / float64(e.Expected)
	}
	if e.Precision+e.Recall > 0 {
		e.F1 = 2 * e.Precision * e.Recall / (e.Precision + e.Recall)
	}
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
