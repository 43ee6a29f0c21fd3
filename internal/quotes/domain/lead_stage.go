package domain

// Lead pipeline stages driven by quotation status.
const (
	// LeadStageUnchanged means the quotation status prescribes no lead stage.
	LeadStageUnchanged = ""

	LeadStageProposal    = "Proposal"
	LeadStageFulfillment = "Fulfillment"
	LeadStageLost        = "Lost"
)

// LeadStageForStatus maps a quotation status to the stage its lead moves to.
func LeadStageForStatus(s Status) string {
	switch s {
	case StatusSent:
		return LeadStageProposal
	case StatusAccepted:
		return LeadStageFulfillment
	case StatusRejected:
		return LeadStageLost
	default:
		return LeadStageUnchanged
	}
}
