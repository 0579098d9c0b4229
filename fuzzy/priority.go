package fuzzy

// Names of the scholarship model variables.
const (
	VarGPA         = "gpa"
	VarIncome      = "income"
	VarAchievement = "achievement"
	VarFinancial   = "financial"
	VarPriority    = "priority"
)

// PriorityInputs builds the input map for the scholarship model.
func PriorityInputs(gpa, income, achievement, financial float64) map[string]float64 {
	return map[string]float64{
		VarGPA:         gpa,
		VarIncome:      income,
		VarAchievement: achievement,
		VarFinancial:   financial,
	}
}

// InferPriority scores one applicant against an engine built over the
// gpa, income, achievement and financial variables.
func (e *Engine) InferPriority(gpa, income, achievement, financial float64) (float64, error) {
	res, err := e.Infer(PriorityInputs(gpa, income, achievement, financial))
	if err != nil {
		return 0, err
	}
	return res.Score, nil
}
