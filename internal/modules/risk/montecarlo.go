package risk

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/hrninfomeet-wq/riskengine/internal/domain"
	"github.com/hrninfomeet-wq/riskengine/pkg/formulas"
)

// checkInterval controls how often the simulation loop polls the context.
const checkInterval = 512

// monteCarlo estimates VaR/CVaR by bootstrap simulation: each path compounds
// horizonDays returns resampled (with replacement) from the empirical
// distribution. The generator is seeded from configuration so identical
// inputs produce identical results.
func (c *Calculator) monteCarlo(ctx context.Context, returns []float64, confidence float64, horizonDays int) (varPct, cvarPct float64, err error) {
	if len(returns) == 0 {
		return 0, 0, fmt.Errorf("%w: no returns available for simulation", domain.ErrInsufficientData)
	}

	rng := rand.New(rand.NewSource(c.cfg.MonteCarloSeed))
	simulated := make([]float64, 0, c.cfg.MonteCarloSims)

	for i := 0; i < c.cfg.MonteCarloSims; i++ {
		if i%checkInterval == 0 {
			select {
			case <-ctx.Done():
				return 0, 0, fmt.Errorf("%w: monte carlo aborted after %d of %d paths", domain.ErrComputationTimeout, i, c.cfg.MonteCarloSims)
			default:
			}
		}

		growth := 1.0
		for d := 0; d < horizonDays; d++ {
			growth *= 1 + returns[rng.Intn(len(returns))]
		}
		simulated = append(simulated, growth-1)
	}

	// Horizon compounding is already in the simulated distribution, so no
	// sqrt-of-time scaling here.
	varPct = formulas.ValueAtRisk(simulated, confidence)
	cvarPct = formulas.ConditionalVaR(simulated, confidence)
	return varPct, cvarPct, nil
}
