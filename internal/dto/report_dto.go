package dto

type SubmitReportRequest struct {
	TargetIdentifier string `json:"target_identifier"`
	Category         string `json:"category"`
	Reason           string `json:"reason"`
	Evidence         string `json:"evidence,omitempty"`
}

type VoteRequest struct {
	Vote string `json:"vote"` // "approve" or "reject"
}

type FinalizeRequest struct {
	Outcome string `json:"outcome"` // "validate" or "reject"
}

type RelayRequest struct {
	Content string `json:"content"`
}

type GrantReviewerRequest struct {
	MemberID    string `json:"member_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role,omitempty"`
}
