// Package wizard holds the client form contract: the versioned form data
// record and the step-indexed state machine that validates it. It has no
// presentation dependencies, so the flow is testable without a rendered UI,
// and the server's create path reuses the same validators.
package wizard

import "encoding/json"

const CurrentSchemaVersion = 1

// Resolution preferences a customer can pick.
const (
	ResolutionRefund = "refund"
	ResolutionResend = "resend"
)

type Address struct {
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

// FormData is the structured answer set collected by the wizard. It is stored
// as jsonb on the return request and tagged with a schema version so the
// validators and the receipt generator share one contract.
type FormData struct {
	SchemaVersion      int     `json:"schema_version"`
	FullName           string  `json:"full_name"`
	Document           string  `json:"document"`
	Phone              string  `json:"phone"`
	ReceiveDate        string  `json:"receive_date"`
	Reason             string  `json:"reason"`
	Description        string  `json:"description"`
	WhenNoticed        string  `json:"when_noticed"`
	TriedResolve       string  `json:"tried_resolve"`
	ResolutionAttempts string  `json:"resolution_attempts"`
	ProductUsed        string  `json:"product_used"`
	Address            Address `json:"address"`
	ResolutionType     string  `json:"resolution_type"`
	AdditionalComments string  `json:"additional_comments"`
	Signature          string  `json:"signature"`
}

// Parse decodes a raw form_data blob. Blobs without a schema_version are
// treated as version 1 records.
func Parse(raw json.RawMessage) (*FormData, error) {
	var form FormData
	if err := json.Unmarshal(raw, &form); err != nil {
		return nil, err
	}
	if form.SchemaVersion == 0 {
		form.SchemaVersion = 1
	}
	return &form, nil
}

type Step int

const (
	StepCustomerInfo Step = iota
	StepReturnDetails
	StepResolution
	StepSignature

	stepCount
)

func (s Step) String() string {
	switch s {
	case StepCustomerInfo:
		return "customer_info"
	case StepReturnDetails:
		return "return_details"
	case StepResolution:
		return "resolution"
	case StepSignature:
		return "signature"
	}
	return "unknown"
}

type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidateStep runs the pure validation for one step.
func ValidateStep(step Step, form *FormData) []Violation {
	var v []Violation
	require := func(field, value string) {
		if value == "" {
			v = append(v, Violation{Field: field, Message: field + " is required"})
		}
	}

	switch step {
	case StepCustomerInfo:
		require("full_name", form.FullName)
		require("document", form.Document)
		require("phone", form.Phone)
	case StepReturnDetails:
		require("receive_date", form.ReceiveDate)
		require("reason", form.Reason)
		require("description", form.Description)
		require("when_noticed", form.WhenNoticed)
	case StepResolution:
		require("address.line1", form.Address.Line1)
		require("address.city", form.Address.City)
		require("address.state", form.Address.State)
		require("address.zip", form.Address.Zip)
		require("address.country", form.Address.Country)
		if form.ResolutionType != ResolutionRefund && form.ResolutionType != ResolutionResend {
			v = append(v, Violation{
				Field:   "resolution_type",
				Message: "resolution_type must be refund or resend",
			})
		}
	case StepSignature:
		require("signature", form.Signature)
	}
	return v
}

// Validate runs every step's validation, as the server does on submission.
func Validate(form *FormData) []Violation {
	var all []Violation
	for step := Step(0); step < stepCount; step++ {
		all = append(all, ValidateStep(step, form)...)
	}
	return all
}

// Machine is the linear wizard flow: advancing past a step requires that
// step's validation to pass; moving back is always allowed.
type Machine struct {
	form *FormData
	step Step
}

func NewMachine(form *FormData) *Machine {
	return &Machine{form: form}
}

func (m *Machine) Step() Step {
	return m.step
}

// Next validates the current step and advances on success. It reports the
// violations that blocked the move, if any.
func (m *Machine) Next() []Violation {
	if violations := ValidateStep(m.step, m.form); len(violations) > 0 {
		return violations
	}
	if m.step < stepCount-1 {
		m.step++
	}
	return nil
}

func (m *Machine) Prev() {
	if m.step > 0 {
		m.step--
	}
}

// Done reports whether the machine sits on the final step with every step
// valid, i.e. the form is ready to submit.
func (m *Machine) Done() bool {
	return m.step == stepCount-1 && len(Validate(m.form)) == 0
}
