package processor

import (
	"strings"
)

type ProcessorConfig struct {
	// ChunkSize is the window length in characters.
	ChunkSize int
	// OverlapRatio of the window shared by consecutive chunks.
	OverlapRatio float64
}

type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 1200
	}
	if config.OverlapRatio <= 0 || config.OverlapRatio >= 1 {
		config.OverlapRatio = 0.15
	}

	return Processor{
		config: config,
	}
}

// Overlap is floor(ChunkSize * OverlapRatio).
func (p Processor) Overlap() int {
	return int(float64(p.config.ChunkSize) * p.config.OverlapRatio)
}

func (p Processor) ChunkSize() int {
	return p.config.ChunkSize
}

// Process normalizes text and splits it into overlapping chunks.
func (p Processor) Process(text string) []string {
	return p.splitIntoChunks(Normalize(text))
}

// Normalize collapses horizontal whitespace inside lines and drops blank lines.
func Normalize(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// splitIntoChunks slides a window of ChunkSize runes, advancing by
// ChunkSize-Overlap, until the start passes the end of the text. Trailing
// windows that are pure overlap are still emitted.
func (p Processor) splitIntoChunks(text string) []string {
	runes := []rune(text)
	size := p.config.ChunkSize
	step := size - p.Overlap()
	if step < 1 {
		step = 1
	}

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
	}

	return chunks
}
