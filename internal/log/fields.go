package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldDurationHuman = "duration_human"
	FieldUserAgent     = "user_agent"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldErrorType     = "error_type"
	FieldOperation     = "operation"
	FieldPayslipID     = "payslip_id"
	FieldEmployee      = "employee"
	FieldPeriod        = "period"
	FieldVersion       = "version"
	FieldLineIndex     = "line_index"
	FieldMode          = "contribution_mode"
	FieldNetPayable    = "net_payable"
	FieldExportRef     = "export_ref"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentPayslip = "payslip"
	ComponentExport  = "export"
	ComponentWorker  = "worker"
)

// Operations defines standard operation names
const (
	OpCreate = "create"
	OpRead   = "read"
	OpUpdate = "update"
	OpDelete = "delete"
	OpList   = "list"
	OpSync   = "sync"
	OpRender = "render"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithPayslip adds payslip identification fields
func (f LogFields) WithPayslip(id, employee, period string, version int64) LogFields {
	f[FieldPayslipID] = id
	f[FieldEmployee] = employee
	f[FieldPeriod] = period
	f[FieldVersion] = version
	return f
}

// WithTotals adds the net payable of a recomputation pass
func (f LogFields) WithTotals(mode, netPayable string) LogFields {
	f[FieldMode] = mode
	f[FieldNetPayable] = netPayable
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
