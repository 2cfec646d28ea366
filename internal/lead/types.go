package lead

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("lead: not found")
	ErrAgentNotFound = errors.New("lead: agent not found")
)

// Type is a lead's position in the funnel.
type Type string

const (
	TypeSuspect  Type = "suspect"
	TypeProspect Type = "prospect"
)

func (t Type) Valid() bool { return t == TypeSuspect || t == TypeProspect }

// Status is the contact state of a lead.
type Status string

const (
	StatusYetToContact           Status = "Yet to Contact"
	StatusContactedDropped       Status = "Contacted & Dropped"
	StatusFirstMeetingScheduled  Status = "1st Meeting Scheduled"
	StatusFirstMeetingCompleted  Status = "1st Meeting Completed"
	StatusSecondMeetingScheduled Status = "2nd Meeting Scheduled"
	StatusCallClosed             Status = "Call Closed"
)

// Statuses lists every status in funnel order.
var Statuses = []Status{
	StatusYetToContact,
	StatusContactedDropped,
	StatusFirstMeetingScheduled,
	StatusFirstMeetingCompleted,
	StatusSecondMeetingScheduled,
	StatusCallClosed,
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Lead is a sales contact owned by a branch.
type Lead struct {
	ID              string     `json:"id"`
	BranchID        string     `json:"branch_id"`
	OrganizationID  string     `json:"organization_id"`
	Type            Type       `json:"type"`
	Status          Status     `json:"status"`
	AssociatedAgent *string    `json:"associated_agent"`
	KnownToAgent    *string    `json:"known_to_agent"`
	MeetingDate     *time.Time `json:"meeting_date"`
	CreatedByID     string     `json:"created_by_id"`
	CreatedByName   string     `json:"created_by_name"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Profile holds the persona attributes a voice agent role-plays. Every
// field is optional.
type Profile struct {
	FullName                  *string `json:"full_name"`
	ContactNumber             *string `json:"contact_number"`
	Email                     *string `json:"email"`
	PhysicalAddress           *string `json:"physical_address"`
	City                      *string `json:"city"`
	State                     *string `json:"state"`
	Country                   *string `json:"country"`
	Designation               *string `json:"designation"`
	Zipcode                   *string `json:"zipcode"`
	Age                       *string `json:"age"`
	Occupation                *string `json:"occupation"`
	Gender                    *string `json:"gender"`
	MaritalStatus             *string `json:"marital_status"`
	Dependents                *int    `json:"dependents"`
	CityTier                  *string `json:"city_tier"`
	EarningMembers            *int    `json:"earning_members"`
	IncomeRange               *string `json:"income_range"`
	Savings                   *string `json:"savings"`
	ExistingInsuranceCoverage *string `json:"existing_insurance_coverage"`
	DesiredInsuranceCoverage  *string `json:"desired_insurance_coverage"`
	CarLoan                   *bool   `json:"car_loan"`
	HomeLoan                  *bool   `json:"home_loan"`
	OtherLoan                 *bool   `json:"other_loan"`
	HealthStatus              *string `json:"health_status"`
	BudgetConscious           *string `json:"budget_conscious"`
	TrustLevel                *string `json:"trust_level"`
	DecisionMakingStyle       *string `json:"decision_making_style"`
	FinancialLiteracy         *string `json:"financial_literacy"`
	Likes                     *string `json:"likes"`
	Dislikes                  *string `json:"dislikes"`
	ConcernsAndPriorities     *string `json:"concerns_and_priorities"`
}

// ProfileRecord is a stored profile.
type ProfileRecord struct {
	ID             string `json:"id"`
	LeadID         string `json:"lead_id"`
	BranchID       string `json:"branch_id"`
	OrganizationID string `json:"organization_id"`
	Profile
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// View pairs a lead with its profile.
type View struct {
	Lead    Lead          `json:"lead"`
	Profile ProfileRecord `json:"profile"`
}

// Agent maps a lead to the voice platform agent that role-plays it.
type Agent struct {
	ID              string    `json:"id"`
	LeadID          string    `json:"lead_id"`
	OrganizationID  string    `json:"organization_id"`
	BranchID        string    `json:"branch_id"`
	LLMID           string    `json:"llm_id"`
	PlatformAgentID string    `json:"platform_agent_id"`
	CreatedAt       time.Time `json:"created_at"`
}
