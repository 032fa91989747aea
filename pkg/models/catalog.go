package models

// TypeDescriptor is a static catalog entry describing one trigger or
// action type for UI building.
type TypeDescriptor struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// TriggerTypeCatalog enumerates the available trigger types.
func TriggerTypeCatalog() []TypeDescriptor {
	return []TypeDescriptor{
		{
			Type:        string(TriggerTypeEntityCreated),
			Name:        "Entity Created",
			Description: "Fires when an entity of the declared type is created.",
		},
		{
			Type:        string(TriggerTypeStatusChanged),
			Name:        "Status Changed",
			Description: "Fires when an entity's status transitions.",
		},
		{
			Type:        string(TriggerTypeManual),
			Name:        "Manual",
			Description: "Fired explicitly by an operator or an API caller.",
		},
		{
			Type:        string(TriggerTypeSchedule),
			Name:        "Schedule",
			Description: "Fires on a recurring cron schedule.",
		},
	}
}

// ActionTypeCatalog enumerates the available action types.
func ActionTypeCatalog() []TypeDescriptor {
	return []TypeDescriptor{
		{
			Type:        string(ActionTypeSendEmail),
			Name:        "Send Email",
			Description: "Delivers a templated email to the subject entity's contact.",
		},
		{
			Type:        string(ActionTypeSendWhatsApp),
			Name:        "Send WhatsApp",
			Description: "Delivers a templated WhatsApp message.",
		},
		{
			Type:        string(ActionTypeSendNotification),
			Name:        "Send Notification",
			Description: "Creates an in-app notification.",
		},
		{
			Type:        string(ActionTypeUpdateStatus),
			Name:        "Update Entity Status",
			Description: "Mutates the subject entity's status in the entity store.",
		},
		{
			Type:        string(ActionTypeWebhook),
			Name:        "Webhook",
			Description: "Posts the execution context to an external URL; non-2xx is a failure.",
		},
		{
			Type:        string(ActionTypeDelay),
			Name:        "Delay",
			Description: "Pauses the execution for a configured number of seconds without occupying a worker.",
		},
		{
			Type:        string(ActionTypeCondition),
			Name:        "Condition",
			Description: "Evaluates predicates over the execution context and branches on the result.",
		},
	}
}
