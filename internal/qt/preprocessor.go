package qt

import (
	"context"

	"github.com/qobs-build/qtkit/internal/graph"
)

// Preprocessor runs a C++ program through the preprocessor of the toolkit.
//
//go:generate mockgen -source=preprocessor.go -destination=mocks/mock_preprocessor.go -package=mocks
type Preprocessor interface {
	Preprocess(ctx context.Context, program string, cfg graph.CompileConfig) (string, error)
}
