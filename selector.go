package kcomp

import (
	"errors"
	"math"
)

// Analysis summarizes the byte statistics the selector decides on.
type Analysis struct {
	Length      int
	Histogram   [256]int
	Entropy     float64 // Shannon entropy in bits per byte, 0..8
	RunFraction float64 // share of bytes inside runs of at least minRun equal bytes
}

// Analyze computes the histogram, entropy and run fraction of block.
func Analyze(block []byte, minRun int) Analysis {
	a := Analysis{Length: len(block)}
	if len(block) == 0 {
		return a
	}
	if minRun < 1 {
		minRun = 1
	}

	inRuns := 0
	for i := 0; i < len(block); {
		j := i + 1
		for j < len(block) && block[j] == block[i] {
			j++
		}
		if j-i >= minRun {
			inRuns += j - i
		}
		a.Histogram[block[i]] += j - i
		i = j
	}

	n := float64(len(block))
	for _, count := range a.Histogram {
		if count > 0 {
			p := float64(count) / n
			a.Entropy -= p * math.Log2(p)
		}
	}
	a.RunFraction = float64(inRuns) / n
	return a
}

// Choose applies the adaptive policy: long runs favour RLE, low entropy
// favours the dictionary coder, moderate entropy favours Huffman and
// anything else is stored.
func (t Thresholds) Choose(a Analysis) Algorithm {
	switch {
	case a.Length == 0:
		return AlgorithmStore
	case a.RunFraction > t.RunFraction:
		return AlgorithmRLE
	case a.Entropy < t.DictionaryEntropy:
		return AlgorithmDictionary
	case a.Entropy < t.HuffmanEntropy:
		return AlgorithmHuffman
	default:
		return AlgorithmStore
	}
}

// SelectAlgorithm returns the algorithm the adaptive strategy would try for
// block. The result depends only on the block bytes and t.
func SelectAlgorithm(block []byte, t Thresholds) Algorithm {
	return t.Choose(Analyze(block, t.MinRunLength))
}

// encodeSelected chooses and applies a codec for one block. It returns
// the tag to persist alongside the codec the strategy selected: the two
// differ when the selected codec did not strictly shrink the block and the
// raw bytes are stored instead. On error, selected is the failing codec.
func encodeSelected(cfg *Config, data []byte) (tag, selected Algorithm, payload []byte, err error) {
	switch cfg.Strategy {
	case StrategyExhaustive:
		selected = AlgorithmStore
		for _, candidate := range cfg.Candidates {
			p, err := EncodeBlock(data, candidate, cfg.Level)
			if err != nil {
				// A failing candidate is simply not a contender.
				continue
			}
			if payload == nil || len(p) < len(payload) || (len(p) == len(payload) && candidate < selected) {
				selected, payload = candidate, p
			}
		}
	case StrategyFixed:
		selected = cfg.Algorithm
		payload, err = EncodeBlock(data, selected, cfg.Level)
	default:
		selected = SelectAlgorithm(data, cfg.Thresholds)
		payload, err = EncodeBlock(data, selected, cfg.Level)
	}
	if errors.Is(err, ErrIncompressible) {
		err, payload = nil, nil
	}
	if err != nil {
		return selected, selected, nil, err
	}
	if selected == AlgorithmStore || payload == nil || len(payload) >= len(data) {
		return AlgorithmStore, selected, data, nil
	}
	return selected, selected, payload, nil
}
