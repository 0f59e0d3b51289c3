package domain

type AlertType string

const (
	AlertChargerFaulted AlertType = "CHARGER_FAULTED"
	AlertChargerOffline AlertType = "CHARGER_OFFLINE"
)

type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "INFO"
	SeverityWarning  AlertSeverity = "WARNING"
	SeverityCritical AlertSeverity = "CRITICAL"
)

type AlertRule struct {
	Type      AlertType
	Severity  AlertSeverity
	Evaluator func(obs *Observation) bool
}

var DefaultAlertRules = []AlertRule{
	{
		Type:     AlertChargerFaulted,
		Severity: SeverityCritical,
		Evaluator: func(o *Observation) bool {
			return o.State == StateFaulted
		},
	},
	{
		Type:     AlertChargerOffline,
		Severity: SeverityWarning,
		Evaluator: func(o *Observation) bool {
			return o.State == StateOffline
		},
	},
}
