package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldOperation  = "operation"

	FieldOwnerID     = "owner_id"
	FieldExpenseID   = "expense_id"
	FieldCategoryID  = "category_id"
	FieldTemplateID  = "template_id"
	FieldChallengeID = "challenge_id"
	FieldBudgetID    = "budget_id"
	FieldAmountCents = "amount_cents"
	FieldMonth       = "month"
	FieldFrequency   = "frequency"
	FieldStatus      = "status"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentHTTP       = "http"
	ComponentStorage    = "storage"
	ComponentEvents     = "events"
	ComponentLLM        = "llm"
	ComponentRoller     = "roller"
	ComponentForecast   = "forecast"
	ComponentChallenges = "challenges"
	ComponentAdvisor    = "advisor"
	ComponentAuth       = "auth"
	ComponentWorker     = "worker"
	ComponentMirror     = "mirror"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpProcess  = "process"
	OpForecast = "forecast"
	OpGenerate = "generate"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)
