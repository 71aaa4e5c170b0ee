package genetic

import (
	"context"

	"metis/internal/plan"
)

type Operator interface {
	Name() string
	Apply(ctx context.Context, p plan.Plan) (plan.Plan, error)
}
