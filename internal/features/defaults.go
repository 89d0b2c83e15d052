package features

// Disease identifiers as returned by the prediction service
const (
	DiseaseStroke        = "stroke"
	DiseaseHypertension  = "hypertension"
	DiseaseHeartFailure  = "heart_failure"
	DiseaseHeartAttack   = "heart_attack"
	DiseaseCoronaryHeart = "cad"
)

// DefaultDiseases is the feature layout the hosted models were trained on.
// Names are kept exactly as the service expects them, including the case variants
// (Sex/sex, Fasting_bs/fasting_bs, Hypertension/hypertension) that different models use.
var DefaultDiseases = []Disease{
	{
		Name:  DiseaseStroke,
		Title: "Stroke",
		Features: []string{
			"Age", "heart_disease", "Married", "BMI", "Hypertension",
			"glucose_level", "Sex", "smoking_status",
		},
	},
	{
		Name:  DiseaseHypertension,
		Title: "Hypertension",
		Features: []string{
			"systolic_bp", "BP_Medications", "diastolic_bp", "sex",
			"diabetes", "heart_rate", "cigsPerDay", "cholesterol", "smokes",
		},
	},
	{
		Name:  DiseaseHeartFailure,
		Title: "Heart Failure",
		Features: []string{
			"oldpeak", "cholesterol", "max_hr", "resting_bp", "fasting_bs",
			"Chest_pain_type", "Resting_ecg", "Fasting_bs", "St_slope",
		},
	},
	{
		Name:     DiseaseHeartAttack,
		Title:    "Heart Attack",
		Features: []string{"Troponin", "CK_MB", "blood_sugar"},
	},
	{
		Name:  DiseaseCoronaryHeart,
		Title: "Coronary Artery Disease",
		Features: []string{
			"typical_angina", "Region", "RWMA", "K", "EF-TTE", "hypertension",
			"FH", "Tinversion", "HDL", "ESR", "Lymph", "HB", "WBC", "Weight",
			"CR", "triglycerides", "FBS", "Na", "LDL", "PLT", "BUN", "Neut",
			"Length",
		},
	},
}

// DefaultSchema returns the built-in schema
func DefaultSchema() *Schema {
	return MustSchema(DefaultDiseases)
}
