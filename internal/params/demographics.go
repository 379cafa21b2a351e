package params

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Gompertz hazard used when no mortality schedule is supplied.
const (
	gompertzLevel = 0.0005
	gompertzSlope = 0.085
)

// ageMidpoints returns the age at the middle of each model period.
func (p *Specifications) ageMidpoints() []float64 {
	step := p.YearsPerPeriod()
	ages := make([]float64, p.S)
	for s := range ages {
		ages[s] = p.StartingAge + step*(float64(s)+0.5)
	}
	return ages
}

// defaultMortality converts an annual Gompertz hazard into the probability of
// dying within each model period. The last age dies with certainty.
func (p *Specifications) defaultMortality() []float64 {
	years := p.YearsPerPeriod()
	rho := make([]float64, p.S)
	for s, age := range p.ageMidpoints() {
		annual := math.Min(gompertzLevel*math.Exp(gompertzSlope*(age-p.StartingAge)), 1)
		rho[s] = 1 - math.Pow(1-annual, years)
	}
	rho[p.S-1] = 1
	return rho
}

// stationaryWeights returns population shares proportional to the
// probability of surviving to each age.
func stationaryWeights(rho []float64) []float64 {
	w := make([]float64, len(rho))
	w[0] = 1
	for s := 1; s < len(rho); s++ {
		w[s] = w[s-1] * (1 - rho[s-1])
	}
	floats.Scale(1/floats.Sum(w), w)
	return w
}

// defaultAbility builds a hump-shaped age-earnings profile per ability type,
// normalized so that aggregate effective labor at full time equals one.
func (p *Specifications) defaultAbility(omega []float64) [][]float64 {
	levels := p.AbilityLevels
	if len(levels) != p.J() {
		levels = make([]float64, p.J())
		for j := range levels {
			levels[j] = 0.5 + float64(j)/float64(max(p.J()-1, 1))
		}
	}

	e := make([][]float64, p.S)
	total := 0.0
	for s, age := range p.ageMidpoints() {
		x := age - p.StartingAge
		profile := math.Exp(0.06*x - 0.00085*x*x)
		e[s] = make([]float64, p.J())
		for j := range e[s] {
			e[s][j] = levels[j] * profile
			total += omega[s] * p.Lambdas[j] * e[s][j]
		}
	}
	for s := range e {
		floats.Scale(1/total, e[s])
	}
	return e
}

// constantDemographics tiles the stationary distribution over the whole path.
func (p *Specifications) constantDemographics() {
	p.OmegaSS = stationaryWeights(p.Rho)
	p.Omega = make([][]float64, p.T+p.S)
	for t := range p.Omega {
		p.Omega[t] = clone1(p.OmegaSS)
	}
	p.OmegaSPreTP = clone1(p.OmegaSS)
	p.GN = make([]float64, p.T+p.S)
	p.GNSS = 0
}
