package rotation

// Message keys resolved to localized text by the presentation layer.
const (
	MessageRegenerated       = "pteroca.crud.user.api_key_regenerated_successfully"
	MessageUserNotFound      = "pteroca.crud.user.pterodactyl_user_not_found"
	MessageGenerationFailed  = "pteroca.crud.user.api_key_generation_failed"
	MessageRegenerationError = "pteroca.crud.user.api_key_regeneration_error"
)

// UnknownErrorDetail stands in for failures that carry no message.
const UnknownErrorDetail = "unknown error"

// Outcome labels used for metrics and history.
const (
	OutcomeSuccess            = "success"
	OutcomeNotLinked          = "not_linked"
	OutcomeProvisioningFailed = "provisioning_failed"
	OutcomeUnexpectedError    = "unexpected_error"
)

// Result is the outcome of a single Rotate call. It is a closed set:
// Success, NotLinked, ProvisioningFailed and UnexpectedError are the only
// implementations.
type Result interface {
	// Outcome returns a stable label for the variant.
	Outcome() string
	// Payload renders the variant in its wire shape.
	Payload() Payload

	isResult()
}

// Payload is the externally observable shape of a Result.
type Payload struct {
	Success   bool   `json:"success" yaml:"success"`
	Message   string `json:"message" yaml:"message"`
	MaskedKey string `json:"masked_key,omitempty" yaml:"masked_key,omitempty"`
	FullKey   string `json:"full_key,omitempty" yaml:"full_key,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Success means the new key is stored and usable.
type Success struct {
	MaskedKey string
	FullKey   string
}

// NotLinked means the account has no Pterodactyl identity. Nothing was changed.
type NotLinked struct{}

// ProvisioningFailed means the panel refused to create a key. Nothing was changed.
type ProvisioningFailed struct{}

// UnexpectedError carries the message of any other failure. The new key may
// already be committed when this is returned from the audit step.
type UnexpectedError struct {
	Detail string
}

func (Success) isResult()            {}
func (NotLinked) isResult()          {}
func (ProvisioningFailed) isResult() {}
func (UnexpectedError) isResult()    {}

func (Success) Outcome() string            { return OutcomeSuccess }
func (NotLinked) Outcome() string          { return OutcomeNotLinked }
func (ProvisioningFailed) Outcome() string { return OutcomeProvisioningFailed }
func (UnexpectedError) Outcome() string    { return OutcomeUnexpectedError }

func (r Success) Payload() Payload {
	return Payload{
		Success:   true,
		Message:   MessageRegenerated,
		MaskedKey: r.MaskedKey,
		FullKey:   r.FullKey,
	}
}

func (NotLinked) Payload() Payload {
	return Payload{Message: MessageUserNotFound}
}

func (ProvisioningFailed) Payload() Payload {
	return Payload{Message: MessageGenerationFailed}
}

// Payload always carries an error field; an empty Detail renders as
// UnknownErrorDetail.
func (r UnexpectedError) Payload() Payload {
	detail := r.Detail
	if detail == "" {
		detail = UnknownErrorDetail
	}
	return Payload{
		Message: MessageRegenerationError,
		Error:   detail,
	}
}

// String keeps the full key out of %v formatting.
func (r Success) String() string {
	return "Success{MaskedKey: " + r.MaskedKey + "}"
}
