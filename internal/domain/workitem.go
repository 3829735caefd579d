package domain

// ItemKind distinguishes the two review lists.
type ItemKind string

const (
	KindProperty ItemKind = "property"
	KindAgent    ItemKind = "agent"
)

// Fields holds the editable form attributes of a work item.
type Fields map[string]string

// Clone returns an independent copy of f.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Form field keys.
const (
	FieldOfferStatus        = "offer_status"
	FieldNotes              = "notes"
	FieldRelationshipStatus = "relationship_status"
	FieldFollowUpStatus     = "follow_up_status"
	FieldFollowUpDate       = "follow_up_date"
	FieldAssignedTo         = "assigned_to"
)

// PropertyRequiredFields must be filled before a property may be advanced past.
var PropertyRequiredFields = []string{FieldOfferStatus, FieldNotes}

// AgentRequiredFields must be filled before an agent may be advanced past.
var AgentRequiredFields = []string{FieldRelationshipStatus, FieldFollowUpStatus, FieldFollowUpDate, FieldAssignedTo}

// Property is a deal under review.
type Property struct {
	ID      string   `json:"id" yaml:"id"`
	Address string   `json:"address" yaml:"address"`
	Price   int64    `json:"price" yaml:"price"`
	ARV     int64    `json:"arv,omitempty" yaml:"arv"`
	Flags   []string `json:"flags,omitempty" yaml:"flags"`
	Status  string   `json:"status,omitempty" yaml:"status"`
}

// ItemID implements review.Item.
func (p Property) ItemID() string { return p.ID }

// Label returns a short human description.
func (p Property) Label() string { return p.Address }

// Agent is a listing agent on the priority outreach list.
type Agent struct {
	ID        string   `json:"id" yaml:"id"`
	Name      string   `json:"name" yaml:"name"`
	Brokerage string   `json:"brokerage,omitempty" yaml:"brokerage"`
	Phone     string   `json:"phone,omitempty" yaml:"phone"`
	Flags     []string `json:"flags,omitempty" yaml:"flags"`
	Status    string   `json:"status,omitempty" yaml:"status"`
}

// ItemID implements review.Item.
func (a Agent) ItemID() string { return a.ID }

// Label returns a short human description.
func (a Agent) Label() string { return a.Name }

// Workload is the configured daily target set referenced by the briefing.
type Workload struct {
	Calls     int `json:"calls" yaml:"calls"`
	Offers    int `json:"offers" yaml:"offers"`
	Campaigns int `json:"campaigns" yaml:"campaigns"`
}
