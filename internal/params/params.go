// Package params holds the parameter bundle shared by every solver.
//
// A Specifications value is filled from defaults and optional YAML
// overrides, then completed by Compute, which derives model-period rates,
// extends time-path parameters to T+S periods, builds demographic weights and
// fits the elliptical labor disutility. After Compute the bundle is treated as
// read-only and may be shared across goroutines.
package params

// Specifications is the full parameter bundle of one model run.
type Specifications struct {
	// Dimensions. J is implied by len(Lambdas).
	S           int     `yaml:"S" json:"S"`
	T           int     `yaml:"T" json:"T"`
	StartingAge float64 `yaml:"starting_age" json:"startingAge"`
	EndingAge   float64 `yaml:"ending_age" json:"endingAge"`

	// Ability types.
	Lambdas       []float64   `yaml:"lambdas" json:"lambdas"`
	AbilityLevels []float64   `yaml:"ability_levels" json:"abilityLevels,omitempty"`
	E             [][]float64 `yaml:"e" json:"-"`

	// Household preferences.
	BetaAnnual float64   `yaml:"beta_annual" json:"betaAnnual"`
	Sigma      float64   `yaml:"sigma" json:"sigma"`
	Frisch     float64   `yaml:"frisch" json:"frisch"`
	Ltilde     float64   `yaml:"ltilde" json:"ltilde"`
	ChiN       []float64 `yaml:"chi_n" json:"chiN"`
	ChiB       []float64 `yaml:"chi_b" json:"chiB"`
	GYAnnual   float64   `yaml:"g_y_annual" json:"gYAnnual"`

	// Elliptical utility; fitted in Compute when either is non-positive.
	BEllipse float64 `yaml:"b_ellipse" json:"bEllipse"`
	Upsilon  float64 `yaml:"upsilon" json:"upsilon"`

	// Demographics.
	ConstantDemographics bool        `yaml:"constant_demographics" json:"constantDemographics"`
	Rho                  []float64   `yaml:"rho" json:"-"`
	Omega                [][]float64 `yaml:"omega" json:"-"`
	OmegaSS              []float64   `yaml:"omega_SS" json:"-"`
	OmegaSPreTP          []float64   `yaml:"omega_S_preTP" json:"-"`
	GN                   []float64   `yaml:"g_n" json:"-"`
	GNSS                 float64     `yaml:"g_n_ss" json:"gNSS"`

	// Firms.
	Z           []float64 `yaml:"Z" json:"-"`
	Gamma       float64   `yaml:"gamma" json:"gamma"`
	Epsilon     float64   `yaml:"epsilon" json:"epsilon"`
	DeltaAnnual float64   `yaml:"delta_annual" json:"deltaAnnual"`

	// Open economy.
	WorldIntRateAnnual []float64 `yaml:"world_int_rate_annual" json:"-"`
	ZetaK              []float64 `yaml:"zeta_K" json:"-"`
	ZetaD              []float64 `yaml:"zeta_D" json:"-"`

	// Fiscal policy.
	BudgetBalance      bool          `yaml:"budget_balance" json:"budgetBalance"`
	ZeroTaxes          bool          `yaml:"zero_taxes" json:"zeroTaxes"`
	AlphaT             []float64     `yaml:"alpha_T" json:"-"`
	AlphaG             []float64     `yaml:"alpha_G" json:"-"`
	DebtRatioSS        float64       `yaml:"debt_ratio_ss" json:"debtRatioSS"`
	InitialDebtRatio   float64       `yaml:"initial_debt_ratio" json:"initialDebtRatio"`
	TG1                int           `yaml:"tG1" json:"tG1"`
	TG2                int           `yaml:"tG2" json:"tG2"`
	RhoG               float64       `yaml:"rho_G" json:"rhoG"`
	RGovScale          float64       `yaml:"r_gov_scale" json:"rGovScale"`
	RGovShift          float64       `yaml:"r_gov_shift" json:"rGovShift"`
	CitRate            []float64     `yaml:"cit_rate" json:"-"`
	CCorpShareOfAssets float64       `yaml:"c_corp_share_of_assets" json:"cCorpShareOfAssets"`
	DeltaTauAnnual     []float64     `yaml:"delta_tau_annual" json:"-"`
	TauC               [][][]float64 `yaml:"tau_c" json:"-"`
	ETRParams          [][][]float64 `yaml:"etr_params" json:"-"`
	MTRxParams         [][][]float64 `yaml:"mtrx_params" json:"-"`
	MTRyParams         [][][]float64 `yaml:"mtry_params" json:"-"`

	// Universal basic income, per household by age group.
	UBINom017    float64 `yaml:"ubi_nom_017" json:"ubiNom017"`
	UBINom1864   float64 `yaml:"ubi_nom_1864" json:"ubiNom1864"`
	UBINom65p    float64 `yaml:"ubi_nom_65p" json:"ubiNom65p"`
	UBINomMax    float64 `yaml:"ubi_nom_max" json:"ubiNomMax"`
	UBIGrowthAdj bool    `yaml:"ubi_growthadj" json:"ubiGrowthAdj"`

	// Derived by Compute.
	Beta         float64   `yaml:"-" json:"-"`
	Delta        float64   `yaml:"-" json:"-"`
	GY           float64   `yaml:"-" json:"-"`
	WorldIntRate []float64 `yaml:"-" json:"-"`
	DeltaTau     []float64 `yaml:"-" json:"-"`
	TauB         []float64 `yaml:"-" json:"-"`
	UBIPath      []float64 `yaml:"-" json:"-"`

	computed bool
}

// J returns the number of ability types.
func (p *Specifications) J() int {
	return len(p.Lambdas)
}

// YearsPerPeriod returns the length of one model period in years.
func (p *Specifications) YearsPerPeriod() float64 {
	return (p.EndingAge - p.StartingAge) / float64(p.S)
}

// Computed reports whether Compute has completed successfully.
func (p *Specifications) Computed() bool {
	return p.computed
}

// Default returns the baseline calibration: 80 one-year ages, seven ability
// types and a 320-period transition.
func Default() *Specifications {
	return &Specifications{
		S:           80,
		T:           320,
		StartingAge: 20,
		EndingAge:   100,

		Lambdas:       []float64{0.25, 0.25, 0.2, 0.1, 0.1, 0.09, 0.01},
		AbilityLevels: []float64{0.3, 0.6, 0.9, 1.2, 1.6, 2.4, 5.0},

		BetaAnnual: 0.96,
		Sigma:      1.5,
		Frisch:     0.4,
		Ltilde:     1.0,
		ChiN:       []float64{1.0},
		ChiB:       []float64{1.0},
		GYAnnual:   0.03,

		ConstantDemographics: true,

		Z:           []float64{1.0},
		Gamma:       0.35,
		Epsilon:     1.0,
		DeltaAnnual: 0.05,

		WorldIntRateAnnual: []float64{0.04},
		ZetaK:              []float64{0.0},
		ZetaD:              []float64{0.0},

		BudgetBalance:      false,
		AlphaT:             []float64{0.09},
		AlphaG:             []float64{0.05},
		DebtRatioSS:        1.0,
		InitialDebtRatio:   0.78,
		TG1:                20,
		TG2:                256,
		RhoG:               0.1,
		RGovScale:          1.0,
		RGovShift:          0.02,
		CitRate:            []float64{0.21},
		CCorpShareOfAssets: 0.55,
		DeltaTauAnnual:     []float64{0.0275},
		TauC:               [][][]float64{{{0.0}}},
		ETRParams:          [][][]float64{{{0.3, 0.8, 0.5}}},
		MTRxParams:         [][][]float64{{{0.35, 0.8, 0.5}}},
		MTRyParams:         [][][]float64{{{0.25, 0.8, 0.5}}},

		UBINomMax:    1e9,
		UBIGrowthAdj: false,
	}
}

// Small returns a coarse calibration (20 four-year ages, two ability types,
// a 50-period transition) that solves in well under a second.
//
// Debt ratios are relative to one period's output, so the annual ratios of
// Default are divided by the period length. A four-year return on debt far
// exceeds four years of growth, and spending a fixed share of output lets
// debt outgrow household wealth within a few periods; spending therefore
// targets the debt ratio from the first period.
func Small() *Specifications {
	p := Default()
	p.S = 20
	p.T = 50
	p.Lambdas = []float64{0.5, 0.5}
	p.AbilityLevels = []float64{0.6, 1.4}
	p.DebtRatioSS = 0.25
	p.InitialDebtRatio = 0.195
	p.TG1 = 0
	p.TG2 = 40
	return p
}

// Clone returns a deep copy. Derived fields are copied as well, so a computed
// bundle stays computed.
func (p *Specifications) Clone() *Specifications {
	c := *p
	c.Lambdas = clone1(p.Lambdas)
	c.AbilityLevels = clone1(p.AbilityLevels)
	c.E = clone2(p.E)
	c.ChiN = clone1(p.ChiN)
	c.ChiB = clone1(p.ChiB)
	c.Rho = clone1(p.Rho)
	c.Omega = clone2(p.Omega)
	c.OmegaSS = clone1(p.OmegaSS)
	c.OmegaSPreTP = clone1(p.OmegaSPreTP)
	c.GN = clone1(p.GN)
	c.Z = clone1(p.Z)
	c.WorldIntRateAnnual = clone1(p.WorldIntRateAnnual)
	c.ZetaK = clone1(p.ZetaK)
	c.ZetaD = clone1(p.ZetaD)
	c.AlphaT = clone1(p.AlphaT)
	c.AlphaG = clone1(p.AlphaG)
	c.CitRate = clone1(p.CitRate)
	c.DeltaTauAnnual = clone1(p.DeltaTauAnnual)
	c.TauC = clone3(p.TauC)
	c.ETRParams = clone3(p.ETRParams)
	c.MTRxParams = clone3(p.MTRxParams)
	c.MTRyParams = clone3(p.MTRyParams)
	c.WorldIntRate = clone1(p.WorldIntRate)
	c.DeltaTau = clone1(p.DeltaTau)
	c.TauB = clone1(p.TauB)
	c.UBIPath = clone1(p.UBIPath)
	return &c
}

func clone1(s []float64) []float64 {
	if s == nil {
		return nil
	}
	return append([]float64(nil), s...)
}

func clone2(m [][]float64) [][]float64 {
	if m == nil {
		return nil
	}
	out := make([][]float64, len(m))
	for i := range m {
		out[i] = clone1(m[i])
	}
	return out
}

func clone3(c [][][]float64) [][][]float64 {
	if c == nil {
		return nil
	}
	out := make([][][]float64, len(c))
	for i := range c {
		out[i] = clone2(c[i])
	}
	return out
}
