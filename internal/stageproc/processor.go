package stageproc

import "context"

// Input describes a file handed to a pipeline stage.
type Input struct {
	Table string
	Path  string
}

// Processor runs one external pipeline stage (clean, transform) over an
// input file and returns the path of the produced file. Implementations
// stream progress lines through logf as they happen, not after completion.
type Processor interface {
	Run(ctx context.Context, in Input, logf func(line string)) (string, error)
}
