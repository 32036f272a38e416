package ner

// argmaxLabels picks the highest scoring label per token from a flat
// [seq, numLabels] logits buffer.
func argmaxLabels(logits []float32, seqLen, numLabels int, names []string) []string {
	labels := make([]string, seqLen)
	for t := 0; t < seqLen; t++ {
		row := logits[t*numLabels : (t+1)*numLabels]
		best := 0
		for j := 1; j < numLabels; j++ {
			if row[j] > row[best] {
				best = j
			}
		}
		labels[t] = names[best]
	}
	return labels
}
