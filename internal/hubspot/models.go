package hubspot

import "github.com/flowpbx/callrouter/internal/phone"

// searchRequest is the body of POST /crm/v3/objects/contacts/search.
type searchRequest struct {
	FilterGroups []filterGroup `json:"filterGroups"`
	Properties   []string      `json:"properties"`
	Limit        int           `json:"limit"`
}

type filterGroup struct {
	Filters []filter `json:"filters"`
}

type filter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

// newOwnerSearch builds the single search used to find a caller's owner:
// phone or mobilephone equal to number, owner property only, one result.
func newOwnerSearch(number phone.Number) searchRequest {
	return searchRequest{
		FilterGroups: []filterGroup{{
			Filters: []filter{
				{PropertyName: "phone", Operator: "EQ", Value: number.String()},
				{PropertyName: "mobilephone", Operator: "EQ", Value: number.String()},
			},
		}},
		Properties: []string{ownerProperty},
		Limit:      1,
	}
}

// searchResponse is the subset of the search response we read. Results is a
// pointer so a body without the array can be told apart from an empty one.
type searchResponse struct {
	Total   int              `json:"total"`
	Results *[]contactResult `json:"results"`
}

type contactResult struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

// errorResponse is HubSpot's standard error body.
type errorResponse struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	Category      string `json:"category"`
	CorrelationID string `json:"correlationId"`
}
