package descriptions

// Tool descriptions shown to MCP clients

const (
	CardioSchemaDescription = `List the clinical features the risk model needs, grouped by disease.

**When to use:** Before asking the user for values, or to explain why a feature is required.

**Examples:**
• "Which values do you need for a stroke prediction?"
• "List every feature the heart failure model uses"

**Best practices:** Pass 'disease' to narrow the list to one model.`

	CardioExtractReportDescription = `Read a medical report PDF and pull out the clinical features it contains.

**When to use:** To preview what a report provides before running a prediction, or to see which values are still missing.

**What it returns:** JSON with the extracted record (feature → value) and the list of missing features in schema order.

**Examples:**
• "What lab values are in reports/2026-03-checkup.pdf?"
• "Which features are missing from this blood test?"

**Common workflows:**
1. cardio_extract_report → ask the user for the missing values → cardio_predict with 'values'

**Best practices:** Paths are resolved inside the configured report directory. Values are matched by feature name, so check them against the report when they look off.`

	CardioPredictDescription = `Predict heart disease risk from a medical report PDF.

**When to use:** When the user wants risk estimates for stroke, hypertension, heart failure, heart attack and coronary artery disease.

**How it works:** The report is extracted and matched against the feature schema. Values in 'values' fill features the report lacks. Only a complete record is sent to the prediction service.

**What it returns:** Per-disease risk category (Low, Moderate, High) and score, or a per-disease error. When features are still missing, the list of missing features instead.

**Examples:**
• "Predict my risk from reports/checkup.pdf"
• "Use reports/checkup.pdf with smoking_status=never and BMI=24.1"

**Best practices:** Requires a signed-in session ('cardiopredict login'). Call cardio_extract_report first to learn which values to ask for.`

	CardioHistoryDescription = `Show previous predictions for the signed-in user, newest first.

**When to use:** To compare a new result with earlier ones or to review past risk levels.

**Examples:**
• "Show my last 10 predictions"
• "Has my stroke risk changed since last month?"`
)
